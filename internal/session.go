package internal

// Session is a saved transcript
type Session struct {
	ID       string      `json:"id" yaml:"id"`
	Target   Target      `json:"target" yaml:"target"`
	Source   string      `json:"source" yaml:"source"` // "live", "replay"
	Entries  []ChatEntry `json:"entries" yaml:"entries"`
	Metadata Metadata    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Metadata contains additional session information
type Metadata struct {
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	LinkedQuestID string `json:"linked_quest_id,omitempty" yaml:"linked_quest_id,omitempty"`
	CreatedAt     string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	EntryCount    int    `json:"entry_count" yaml:"entry_count"`
	Fingerprint   string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
}

// Session sources
const (
	SourceLive   = "live"
	SourceReplay = "replay"
)
