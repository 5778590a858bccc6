package internal

import (
	"fmt"
	"strings"
	"time"
)

// Normalizer converts engine snapshots to Session format
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSnapshot converts a Snapshot to a Session. The snapshot must
// carry a session id; a transcript with no session is not saveable.
func (n *Normalizer) NormalizeSnapshot(snap Snapshot, target Target, source string, now time.Time) (*Session, error) {
	if snap.CurrentSessionID == "" {
		return nil, fmt.Errorf("snapshot has no session id")
	}
	if len(snap.Entries) == 0 {
		return nil, fmt.Errorf("snapshot has no entries")
	}

	entries := make([]ChatEntry, 0, len(snap.Entries))
	for _, entry := range snap.Entries {
		if err := entry.Validate(); err != nil {
			LogDebug("Skipping invalid entry in session %s: %v", snap.CurrentSessionID, err)
			continue
		}
		entries = append(entries, entry)
	}

	session := &Session{
		ID:      snap.CurrentSessionID,
		Target:  target,
		Source:  source,
		Entries: entries,
		Metadata: Metadata{
			Name:          n.sessionName(entries),
			LinkedQuestID: snap.LinkedQuestID,
			CreatedAt:     formatTimestamp(now),
			UpdatedAt:     formatTimestamp(now),
			EntryCount:    len(entries),
		},
	}
	session.Metadata.Fingerprint = Fingerprint(session)

	return session, nil
}

// sessionName uses the first user line, trimmed, as a display name
func (n *Normalizer) sessionName(entries []ChatEntry) string {
	for _, entry := range entries {
		if entry.Role != RoleUser {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(entry.Content, "\n", 2)[0])
		if len([]rune(name)) > 60 {
			name = string([]rune(name)[:57]) + "..."
		}
		return name
	}
	return ""
}

// formatTimestamp formats a time as ISO8601 in UTC
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp parses a stored RFC 3339 timestamp. Empty or malformed
// input yields the zero time.
func ParseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
