package internal

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/iksnae/questchat/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenDatabase(":memory:")
	require.NoError(t, err)
	store := NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	session := CreateTestSession("s-1")
	session.Entries[2].AgentID = "agent-1"
	session.Metadata.Fingerprint = Fingerprint(session)
	session.Metadata.LinkedQuestID = "q-1"

	written, err := store.SaveSession(session)
	require.NoError(t, err)
	assert.True(t, written)

	loaded, err := store.LoadSession("s-1")
	require.NoError(t, err)
	if diff := cmp.Diff(session, loaded); diff != "" {
		t.Errorf("LoadSession() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SaveSkipsUnchanged(t *testing.T) {
	store := newTestStore(t)
	session := CreateTestSession("s-1")

	written, err := store.SaveSession(session)
	require.NoError(t, err)
	require.True(t, written)

	written, err = store.SaveSession(CreateTestSession("s-1"))
	require.NoError(t, err)
	assert.False(t, written, "identical content should not be rewritten")

	grown := CreateTestSession("s-1")
	grown.Entries = append(grown.Entries, NewUserEntry("and closed ones?"))
	grown.Metadata.Fingerprint = ""
	grown.Metadata.CreatedAt = "2030-01-01T00:00:00Z"

	written, err = store.SaveSession(grown)
	require.NoError(t, err)
	assert.True(t, written)

	loaded, err := store.LoadSession("s-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 5)
	assert.Equal(t, Fingerprint(grown), loaded.Metadata.Fingerprint)
	assert.Equal(t, session.Metadata.CreatedAt, loaded.Metadata.CreatedAt, "created_at is kept on update")
}

func TestStore_SaveInvalid(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveSession(nil)
	assert.Error(t, err)

	_, err = store.SaveSession(&Session{})
	var se *StoreError
	assert.True(t, errors.As(err, &se))
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadSession("nope")
	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "load", se.Op)
	assert.Equal(t, "nope", se.SessionID)
}

func TestStore_ListSessions(t *testing.T) {
	store := newTestStore(t)

	for i, id := range []string{"old", "mid", "new"} {
		s := CreateTestSessionWithEntries(id, []ChatEntry{NewUserEntry("message " + id)})
		s.Metadata.Name = "chat " + id
		s.Metadata.UpdatedAt = []string{"2025-01-01T00:00:00Z", "2025-02-01T00:00:00Z", "2025-03-01T00:00:00Z"}[i]
		_, err := store.SaveSession(s)
		require.NoError(t, err)
	}

	all, err := store.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "chat new", all[0].Name)
	assert.Equal(t, 1, all[0].EntryCount)
	assert.Equal(t, Target{GuildID: "guild-test"}, all[0].Target)

	limited, err := store.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_LoadAllSessionsDeduplicates(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveSession(CreateTestSession("a"))
	require.NoError(t, err)
	_, err = store.SaveSession(CreateTestSession("b"))
	require.NoError(t, err)
	_, err = store.SaveSession(CreateTestSessionWithEntries("c", []ChatEntry{NewUserEntry("other")}))
	require.NoError(t, err)

	sessions, err := store.LoadAllSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestStore_DeleteSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveSession(CreateTestSession("s-1"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession("s-1"))

	_, err = store.LoadSession("s-1")
	assert.Error(t, err)

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM entries WHERE session_id = ?", "s-1").Scan(&count))
	assert.Zero(t, count, "entries cascade on delete")

	assert.Error(t, store.DeleteSession("s-1"))
}

func TestOpenStore_File(t *testing.T) {
	path := testutil.HistoryDBPath(t)

	store, err := OpenStore(path)
	require.NoError(t, err)
	_, err = store.SaveSession(CreateTestSession("s-1"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	index, err := reopened.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, index, 1)
	assert.Equal(t, "s-1", index[0].ID)
}
