package document

import (
	"log"
	"sync"
	"time"

	"collab-backend/internal/model"
	"collab-backend/internal/protocol"
	"collab-backend/internal/storage"
)

// Service routes document ids to their rooms and exposes the directory
// operations the connection layer dispatches to. Rooms are created lazily on
// first access and evicted on delete.
type Service struct {
	store *storage.Store

	mu    sync.RWMutex
	rooms map[string]*Room

	autosaveMaxEdits    int
	autosaveMaxInterval time.Duration
}

func NewService(store *storage.Store, autosaveMaxEdits int, autosaveMaxInterval time.Duration) *Service {
	return &Service{
		store:               store,
		rooms:               make(map[string]*Room),
		autosaveMaxEdits:    autosaveMaxEdits,
		autosaveMaxInterval: autosaveMaxInterval,
	}
}

// GetOrCreate returns the room for docID, constructing it on first access.
func (s *Service) GetOrCreate(docID string) *Room {
	s.mu.RLock()
	room, ok := s.rooms[docID]
	s.mu.RUnlock()
	if ok {
		return room
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[docID]; ok {
		return room
	}
	room = NewRoom(docID, s.store, s.autosaveMaxEdits, s.autosaveMaxInterval)
	s.rooms[docID] = room
	log.Printf("[Service] created room for document %s", docID)
	return room
}

// GetIfPresent returns the room for docID without creating one.
func (s *Service) GetIfPresent(docID string) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[docID]
}

// ListDocs returns every document's metadata, most recently updated first.
func (s *Service) ListDocs() []model.DocumentMeta {
	return s.store.ListMetas()
}

// Create allocates a new empty document and returns its metadata.
func (s *Service) Create(title string) (*model.DocumentMeta, error) {
	meta, err := s.store.Create(title)
	if err != nil {
		return nil, err
	}
	log.Printf("[Service] created document %s (%q)", meta.ID, meta.Title)
	return meta, nil
}

// Delete ejects every live viewer with a DOC_DELETED notice, evicts the
// room, and removes the persisted state. Returns false when the document did
// not exist.
func (s *Service) Delete(docID string) bool {
	if docID == "" {
		return false
	}

	s.mu.Lock()
	room := s.rooms[docID]
	delete(s.rooms, docID)
	s.mu.Unlock()

	if room != nil {
		room.EjectAll()
	}

	ok := s.store.Delete(docID)
	if ok {
		log.Printf("[Service] deleted document %s", docID)
	}
	return ok
}

// Open moves the session into docID's room: leave whatever it was viewing,
// join the new room, and send it a full snapshot.
func (s *Service) Open(docID string, m Member) {
	if docID == "" || m == nil {
		return
	}

	s.Leave(m)

	room := s.GetOrCreate(docID)
	room.Join(m)
	room.SendSnapshot(m)
}

// Leave removes the session from its current room, if any, and clears its
// current-document marker.
func (s *Service) Leave(m Member) {
	if m == nil {
		return
	}

	docID := m.CurrentDocID()
	if docID == "" {
		return
	}

	if room := s.GetIfPresent(docID); room != nil {
		room.Leave(m)
	}
	m.SetCurrentDocID("")
}

// ApplyEdit forwards an edit to the owning room. Operations whose docId does
// not match the sender's current room are dropped: they arrived after the
// session switched documents and must not land on the wrong one.
func (s *Service) ApplyEdit(msg *protocol.EditMessage, sender Member) {
	if msg == nil || msg.DocID == "" || sender == nil {
		return
	}
	if sender.CurrentDocID() != msg.DocID {
		return
	}

	room := s.GetOrCreate(msg.DocID)
	room.ApplyAndBroadcast(msg, sender)
}

// Broadcast sends a message to every member of docID's room, if the room is
// live. Used for lock traffic, which all viewers must observe.
func (s *Service) Broadcast(docID string, msg *protocol.EditMessage) {
	if room := s.GetIfPresent(docID); room != nil {
		room.Broadcast(msg)
	}
}

// SaveAll flushes every live room's unsaved edits. Called on shutdown so the
// coalescing window is not lost to a clean exit.
func (s *Service) SaveAll() {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	for _, room := range rooms {
		room.SaveNow()
	}
}
