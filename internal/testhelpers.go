package internal

import (
	"time"
)

// CreateTestSession creates a test session with sample data
func CreateTestSession(id string) *Session {
	now := time.Now().UTC().Format(time.RFC3339)
	session := &Session{
		ID:     id,
		Target: Target{GuildID: "guild-test"},
		Source: SourceLive,
		Entries: []ChatEntry{
			NewUserEntry("List the open quests"),
			NewAssistantTextEntry("Let me check."),
			NewToolUseEntry("toolu_1", "Read", `{"file_path":"/quests.md"}`),
			NewAssistantTextEntry("There are two open quests."),
		},
		Metadata: Metadata{
			Name:       "List the open quests",
			CreatedAt:  now,
			UpdatedAt:  now,
			EntryCount: 4,
		},
	}
	session.Metadata.Fingerprint = Fingerprint(session)
	return session
}

// CreateTestSessionWithEntries creates a test session with custom entries
func CreateTestSessionWithEntries(id string, entries []ChatEntry) *Session {
	session := &Session{
		ID:      id,
		Target:  Target{GuildID: "guild-test"},
		Source:  SourceLive,
		Entries: entries,
		Metadata: Metadata{
			EntryCount: len(entries),
		},
	}
	session.Metadata.Fingerprint = Fingerprint(session)
	return session
}

// CreateTestQuestions creates a single-question clarification set
func CreateTestQuestions() []ClarificationQuestion {
	return []ClarificationQuestion{
		{
			Question: "Which guild should take the quest?",
			Header:   "Guild",
			Options: []ClarificationOption{
				{Label: "Red", Description: "The red guild"},
				{Label: "Blue", Description: "The blue guild"},
			},
			MultiSelect: false,
		},
	}
}
