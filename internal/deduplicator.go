package internal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Deduplicator drops saved transcripts whose entries repeat an earlier one
type Deduplicator struct{}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first session for each fingerprint, preserving
// order. Sessions saved without a fingerprint are hashed on the fly.
func (d *Deduplicator) Deduplicate(sessions []*Session) []*Session {
	seen := make(map[string]struct{}, len(sessions))
	unique := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		fp := s.Metadata.Fingerprint
		if fp == "" {
			fp = Fingerprint(s)
		}
		if _, dup := seen[fp]; dup {
			LogDebug("Dropping session %s, same transcript as an earlier one", s.ID)
			continue
		}
		seen[fp] = struct{}{}
		unique = append(unique, s)
	}
	return unique
}

// Fingerprint hashes the entries of a session. Ids, targets and timestamps
// are left out, so one transcript saved under two ids hashes the same.
func Fingerprint(session *Session) string {
	h := sha256.New()
	var size [binary.MaxVarintLen64]byte
	field := func(v string) {
		n := binary.PutUvarint(size[:], uint64(len(v)))
		h.Write(size[:n])
		h.Write([]byte(v))
	}
	for _, e := range session.Entries {
		field(string(e.Role))
		field(string(e.Type))
		field(e.Content)
		field(e.ToolUseID)
		field(e.ToolName)
		field(e.ToolInput)
		field(e.AgentID)
	}
	return hex.EncodeToString(h.Sum(nil))
}
