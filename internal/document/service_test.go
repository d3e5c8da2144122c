package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/protocol"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newTestStore(t), 15, time.Hour)
}

func TestServiceGetOrCreateIsIdempotent(t *testing.T) {
	svc := newTestService(t)

	room := svc.GetOrCreate("doc1")
	require.NotNil(t, room)
	assert.Same(t, room, svc.GetOrCreate("doc1"))
	assert.Same(t, room, svc.GetIfPresent("doc1"))
	assert.Nil(t, svc.GetIfPresent("doc2"))
}

func TestServiceCreateAndList(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.Create("First")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "First", first.Title)

	time.Sleep(5 * time.Millisecond)
	second, err := svc.Create("Second")
	require.NoError(t, err)

	docs := svc.ListDocs()
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID) // most recently updated first
	assert.Equal(t, first.ID, docs[1].ID)
}

func TestServiceOpenSendsSnapshotAndSwitchesRooms(t *testing.T) {
	svc := newTestService(t)
	m := newFakeMember("c1", "alice")

	svc.Open("docA", m)
	assert.Equal(t, "docA", m.CurrentDocID())
	msgs := m.messages()
	require.Len(t, msgs, 2) // empty doc: FULL_SYNC + SYNC_END
	assert.Equal(t, protocol.ModeFullSync, msgs[0].Mode)
	assert.Equal(t, protocol.ModeSyncEnd, msgs[1].Mode)

	svc.Open("docB", m)
	assert.Equal(t, "docB", m.CurrentDocID())
	assert.Equal(t, 0, svc.GetIfPresent("docA").MemberCount())
	assert.Equal(t, 1, svc.GetIfPresent("docB").MemberCount())
}

func TestServiceLeaveClearsCurrentDoc(t *testing.T) {
	svc := newTestService(t)
	m := newFakeMember("c1", "alice")
	svc.Open("docA", m)

	svc.Leave(m)
	assert.Equal(t, "", m.CurrentDocID())
	assert.Equal(t, 0, svc.GetIfPresent("docA").MemberCount())

	svc.Leave(m) // idempotent
	assert.Equal(t, "", m.CurrentDocID())
}

func TestServiceApplyEditDropsStaleRouting(t *testing.T) {
	svc := newTestService(t)
	m := newFakeMember("c1", "alice")
	svc.Open("docA", m)

	// Operation addressed to a document the sender no longer views.
	stale := insertOp(0, "ghost")
	stale.DocID = "docB"
	svc.ApplyEdit(stale, m)

	assert.Nil(t, svc.GetIfPresent("docB"))
	assert.Equal(t, "", svc.GetOrCreate("docA").Text())
}

func TestServiceApplyEditReachesRoom(t *testing.T) {
	svc := newTestService(t)
	alice := newFakeMember("c1", "alice")
	bob := newFakeMember("c2", "bob")
	svc.Open("docA", alice)
	svc.Open("docA", bob)

	op := insertOp(0, "Hello")
	op.DocID = "docA"
	svc.ApplyEdit(op, alice)

	assert.Equal(t, "Hello", svc.GetIfPresent("docA").Text())

	// bob got his snapshot plus the broadcast edit; alice only her snapshot.
	bobMsgs := bob.messages()
	require.NotEmpty(t, bobMsgs)
	assert.Equal(t, protocol.ModeInsert, bobMsgs[len(bobMsgs)-1].Mode)
	for _, msg := range alice.messages() {
		assert.NotEqual(t, protocol.ModeInsert, msg.Mode)
	}
}

func TestServiceDeleteEjectsViewers(t *testing.T) {
	svc := newTestService(t)
	meta, err := svc.Create("Doomed")
	require.NoError(t, err)

	m := newFakeMember("c1", "alice")
	svc.Open(meta.ID, m)

	assert.True(t, svc.Delete(meta.ID))

	assert.Equal(t, "", m.CurrentDocID())
	msgs := m.messages()
	assert.Equal(t, protocol.ModeDocDeleted, msgs[len(msgs)-1].Mode)
	assert.Nil(t, svc.GetIfPresent(meta.ID))

	// Gone from the directory too.
	assert.False(t, svc.Delete(meta.ID))
	assert.Empty(t, svc.ListDocs())
}

func TestServiceBroadcastReachesAllMembers(t *testing.T) {
	svc := newTestService(t)
	alice := newFakeMember("c1", "alice")
	bob := newFakeMember("c2", "bob")
	svc.Open("docA", alice)
	svc.Open("docA", bob)

	lockMsg := protocol.New(protocol.ModeLock, "alice")
	lockMsg.DocID = "docA"
	lockMsg.Offset = 3
	svc.Broadcast("docA", lockMsg)

	for _, m := range []*fakeMember{alice, bob} {
		msgs := m.messages()
		require.NotEmpty(t, msgs)
		assert.Equal(t, protocol.ModeLock, msgs[len(msgs)-1].Mode)
	}

	// No room, no panic.
	svc.Broadcast("nowhere", lockMsg)
}

func TestServiceSaveAll(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, 100, time.Hour)
	m := newFakeMember("c1", "alice")
	svc.Open("docA", m)

	op := insertOp(0, "unsaved")
	op.DocID = "docA"
	svc.ApplyEdit(op, m)
	op2 := insertOp(7, " edits")
	op2.DocID = "docA"
	svc.ApplyEdit(op2, m)

	svc.SaveAll()

	state, err := store.Load("docA")
	require.NoError(t, err)
	assert.Equal(t, "unsaved edits", state.Text)
}
