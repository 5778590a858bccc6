package internal

// turn tracks one correlated exchange: its process handle and which
// transcript entry each rendered content block landed in.
type turn struct {
	chatProcessID string

	// slots[i] is the transcript index created for block slot i, or -1 when
	// the block produced no entry. len(slots) is the rendered block count.
	slots []int

	// messageID and base map a multi-message turn onto one slot space:
	// block i of the current message lives in slot base+i.
	messageID string
	base      int
}

func newTurn(handle string) *turn {
	return &turn{chatProcessID: handle}
}

// RenderedBlockCount is the number of block slots already materialised
func (t *turn) RenderedBlockCount() int {
	return len(t.slots)
}

// beginMessage moves the slot base past everything rendered so far when a
// new assistant message id shows up. An empty id keeps the current base.
func (t *turn) beginMessage(id string) {
	if id == "" || id == t.messageID {
		return
	}
	if t.messageID != "" || len(t.slots) > 0 {
		t.base = len(t.slots)
	}
	t.messageID = id
}

// TurnCorrelator holds the live and replay process handles. A fresh
// correlator matches nothing.
type TurnCorrelator struct {
	live   *turn
	replay *turn
}

// NewTurnCorrelator creates an empty correlator
func NewTurnCorrelator() *TurnCorrelator {
	return &TurnCorrelator{}
}

// AdoptLive replaces the live handle and resets its block count
func (c *TurnCorrelator) AdoptLive(handle string) {
	if handle == "" {
		c.live = nil
		return
	}
	c.live = newTurn(handle)
}

// AdoptReplay sets the replay handle
func (c *TurnCorrelator) AdoptReplay(handle string) {
	if handle == "" {
		c.replay = nil
		return
	}
	c.replay = newTurn(handle)
}

// ClearReplay drops the replay handle, leaving the live one alone
func (c *TurnCorrelator) ClearReplay() {
	c.replay = nil
}

// ClearLive drops the live handle
func (c *TurnCorrelator) ClearLive() {
	c.live = nil
}

// Matches reports whether handle is the live or the replay handle
func (c *TurnCorrelator) Matches(handle string) bool {
	return c.MatchesLive(handle) || c.MatchesReplay(handle)
}

// MatchesLive reports whether handle is the live handle
func (c *TurnCorrelator) MatchesLive(handle string) bool {
	return handle != "" && c.live != nil && c.live.chatProcessID == handle
}

// MatchesReplay reports whether handle is the replay handle
func (c *TurnCorrelator) MatchesReplay(handle string) bool {
	return handle != "" && c.replay != nil && c.replay.chatProcessID == handle
}

// LiveHandle returns the live handle or ""
func (c *TurnCorrelator) LiveHandle() string {
	if c.live == nil {
		return ""
	}
	return c.live.chatProcessID
}

// ReplayHandle returns the replay handle or ""
func (c *TurnCorrelator) ReplayHandle() string {
	if c.replay == nil {
		return ""
	}
	return c.replay.chatProcessID
}

// RenderedBlockCount returns the block count for a tracked handle
func (c *TurnCorrelator) RenderedBlockCount(handle string) int {
	if t := c.turnFor(handle); t != nil {
		return t.RenderedBlockCount()
	}
	return 0
}

// turnFor returns the turn owning handle. The live turn wins if a replay
// handle ever collides with it.
func (c *TurnCorrelator) turnFor(handle string) *turn {
	switch {
	case c.MatchesLive(handle):
		return c.live
	case c.MatchesReplay(handle):
		return c.replay
	default:
		return nil
	}
}

// Reset drops every tracked handle
func (c *TurnCorrelator) Reset() {
	c.live = nil
	c.replay = nil
}
