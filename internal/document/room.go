package document

import (
	"log"
	"sync"
	"time"

	"collab-backend/internal/protocol"
	"collab-backend/internal/storage"
)

// serverUser tags messages originated by the server itself (snapshots,
// ejection notices).
const serverUser = "server"

// Member is one connected viewer of a document. The connection handler's
// client type implements it; Send must be safe to call from any goroutine.
type Member interface {
	ConnID() string
	UserID() string
	CurrentDocID() string
	SetCurrentDocID(docID string)
	Send(msg *protocol.EditMessage)
}

// Room is the single concurrency domain for one document: it owns the state
// machine, the set of viewing connections, and the apply-then-broadcast
// path. At most one apply-and-broadcast is in flight per document at any
// time; rooms for different documents run fully in parallel.
type Room struct {
	docID string
	store *storage.Store

	// mu serializes apply, broadcast, snapshot sends and saves. Broadcasting
	// inside the critical section is what makes the broadcast order identical
	// to the apply order.
	mu         sync.Mutex
	manager    *Manager
	loaded     bool
	dirtyEdits int
	lastSave   time.Time

	membersMu sync.RWMutex
	members   map[string]Member // keyed by connection id

	maxEdits    int
	maxInterval time.Duration
}

func NewRoom(docID string, store *storage.Store, maxEdits int, maxInterval time.Duration) *Room {
	return &Room{
		docID:       docID,
		store:       store,
		manager:     NewManager(),
		members:     make(map[string]Member),
		maxEdits:    maxEdits,
		maxInterval: maxInterval,
	}
}

func (r *Room) DocID() string { return r.docID }

// loadIfNeeded lazily restores state from storage; the first accessor pays
// the load cost. A storage failure is logged and the room keeps serving the
// in-memory (empty) state rather than dying.
func (r *Room) loadIfNeeded() {
	if r.loaded {
		return
	}

	state, err := r.store.Load(r.docID)
	if err != nil {
		log.Printf("[Room %s] load failed, starting empty: %v", r.docID, err)
	} else {
		r.manager.Restore(state)
	}
	r.loaded = true
}

// Join adds the session to the membership and marks it as viewing this
// document.
func (r *Room) Join(m Member) {
	r.membersMu.Lock()
	r.members[m.ConnID()] = m
	r.membersMu.Unlock()

	m.SetCurrentDocID(r.docID)
	log.Printf("[Room %s] member joined: user=%s conn=%s", r.docID, m.UserID(), m.ConnID())
}

// Leave removes the session from the membership; idempotent.
func (r *Room) Leave(m Member) {
	r.membersMu.Lock()
	delete(r.members, m.ConnID())
	r.membersMu.Unlock()
}

// MemberCount returns the number of connected viewers.
func (r *Room) MemberCount() int {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	return len(r.members)
}

func (r *Room) membersSnapshot() []Member {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()

	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// SendSnapshot bootstraps (or re-bootstraps) one viewer: a FULL_SYNC with
// the whole text and title, one IMAGE_INSERT per live block, then a SYNC_END
// marker. Runs under the room mutex so no edit broadcast interleaves with
// the snapshot sequence.
func (r *Room) SendSnapshot(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadIfNeeded()

	full := protocol.New(protocol.ModeFullSync, serverUser)
	full.DocID = r.docID
	full.DocTitle = r.store.Title(r.docID)
	full.Text = r.manager.Text()
	full.Length = r.manager.Len()
	m.Send(full)

	for _, img := range r.manager.BuildImageSyncMessages(r.docID, serverUser) {
		m.Send(img)
	}

	end := protocol.New(protocol.ModeSyncEnd, serverUser)
	end.DocID = r.docID
	m.Send(end)
}

// ApplyAndBroadcast applies one edit to the state machine, forwards the same
// message unmodified to every member except the sender, then evaluates the
// autosave policy.
func (r *Room) ApplyAndBroadcast(msg *protocol.EditMessage, sender Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadIfNeeded()
	r.manager.Apply(msg)

	for _, m := range r.membersSnapshot() {
		if sender != nil && m.ConnID() == sender.ConnID() {
			continue
		}
		m.Send(msg)
	}

	r.autosaveMaybe()
}

// Broadcast forwards a non-edit message (lock traffic, ejection notices) to
// every member, the sender included.
func (r *Room) Broadcast(msg *protocol.EditMessage) {
	for _, m := range r.membersSnapshot() {
		m.Send(msg)
	}
}

// autosaveMaybe coalesces saves: a write happens when enough edits have
// accumulated or enough time has passed since the last one, whichever comes
// first. Called with r.mu held.
func (r *Room) autosaveMaybe() {
	r.dirtyEdits++

	if r.dirtyEdits >= r.maxEdits || time.Since(r.lastSave) >= r.maxInterval {
		r.saveLocked()
	}
}

// saveLocked snapshots to storage. A storage failure must not take the room
// down: the document stays servable in memory and the next trigger retries.
func (r *Room) saveLocked() {
	if err := r.store.Save(r.docID, r.manager.State()); err != nil {
		log.Printf("[Room %s] snapshot save failed: %v", r.docID, err)
		return
	}
	r.dirtyEdits = 0
	r.lastSave = time.Now()
}

// SaveNow flushes unsaved edits immediately. Used on shutdown.
func (r *Room) SaveNow() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded || r.dirtyEdits == 0 {
		return
	}
	r.saveLocked()
}

// EjectAll notifies every member that the document is gone, clears their
// current-document marker, and empties the membership. Used when the
// document is deleted out from under its viewers.
func (r *Room) EjectAll() {
	r.membersMu.Lock()
	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.members = make(map[string]Member)
	r.membersMu.Unlock()

	for _, m := range members {
		gone := protocol.New(protocol.ModeDocDeleted, serverUser)
		gone.DocID = r.docID
		m.Send(gone)
		m.SetCurrentDocID("")
	}
}

// Text returns the current document text under the room's serialization.
func (r *Room) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadIfNeeded()
	return r.manager.Text()
}
