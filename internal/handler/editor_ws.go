package handler

import (
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"collab-backend/internal/document"
	"collab-backend/internal/lock"
	"collab-backend/internal/presence"
	"collab-backend/internal/protocol"
	"collab-backend/internal/session"
)

// serverUser tags replies originated by the server rather than a peer.
const serverUser = "server"

// EditorWSHandler is the connection layer of the sync engine: one websocket
// per client, one blocking read loop per connection. It tags incoming
// operations with the sender's identity and dispatches them by mode;
// disconnects are detected as read failures and cleaned up on the same
// goroutine.
type EditorWSHandler struct {
	service  *document.Service
	locks    *lock.Table
	presence *presence.Manager // may be nil
}

func NewEditorWSHandler(service *document.Service, locks *lock.Table, presence *presence.Manager) *EditorWSHandler {
	return &EditorWSHandler{
		service:  service,
		locks:    locks,
		presence: presence,
	}
}

// editorClient is one connected editor. It implements document.Member;
// writeMu serializes websocket writes since broadcasts arrive from many
// rooms' goroutines.
type editorClient struct {
	*session.Session
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *editorClient) Send(msg *protocol.EditMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[Editor] encode failed for conn %s: %v", c.ConnID(), err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		log.Printf("[Editor] send failed to conn %s: %v", c.ConnID(), err)
	}
}

// HandleWebSocket runs the connection's read loop until the client goes
// away.
func (h *EditorWSHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userId").(string)
	if !ok || userID == "" {
		c.Close()
		return
	}

	client := &editorClient{
		Session: session.New(uuid.NewString(), userID),
		conn:    c,
	}

	log.Printf("[Editor] connected: user=%s conn=%s", userID, client.ConnID())

	if h.presence != nil {
		h.presence.SetOnline(userID)
	}

	defer func() {
		docID := client.CurrentDocID()
		h.service.Leave(client)
		h.locks.ReleaseAllByUser(userID)
		if h.presence != nil {
			h.presence.RemoveViewer(docID, userID)
			h.presence.SetOffline(userID)
		}
		c.Close()
		log.Printf("[Editor] disconnected: user=%s conn=%s", userID, client.ConnID())
	}()

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("[Editor] dropped malformed frame from %s: %v", userID, err)
			continue
		}

		// The sender's identity comes from the connection, never from the
		// frame.
		msg.UserID = userID

		h.dispatch(msg, client)
	}
}

func (h *EditorWSHandler) dispatch(msg *protocol.EditMessage, client *editorClient) {
	switch {
	case msg.Mode.IsEdit():
		h.service.ApplyEdit(msg, client)

	case msg.Mode == protocol.ModeDocList:
		reply := protocol.New(protocol.ModeDocList, serverUser)
		reply.Docs = h.service.ListDocs()
		client.Send(reply)

	case msg.Mode == protocol.ModeDocOpen:
		if msg.DocID == "" {
			return
		}
		prev := client.CurrentDocID()
		h.service.Open(msg.DocID, client)
		if h.presence != nil {
			h.presence.RemoveViewer(prev, client.UserID())
			h.presence.AddViewer(msg.DocID, client.UserID())
		}

	case msg.Mode == protocol.ModeDocCreate:
		meta, err := h.service.Create(msg.DocTitle)
		if err != nil {
			log.Printf("[Editor] create failed for %s: %v", client.UserID(), err)
			return
		}
		reply := protocol.New(protocol.ModeDocCreate, serverUser)
		reply.DocID = meta.ID
		reply.DocTitle = meta.Title
		reply.Docs = h.service.ListDocs()
		client.Send(reply)

	case msg.Mode == protocol.ModeDocDelete:
		if h.service.Delete(msg.DocID) && h.presence != nil {
			h.presence.ClearViewers(msg.DocID)
		}

	case msg.Mode == protocol.ModeDocLeave:
		if h.presence != nil {
			h.presence.RemoveViewer(client.CurrentDocID(), client.UserID())
		}
		h.service.Leave(client)

	case msg.Mode == protocol.ModeLock:
		h.handleLock(msg, client)

	case msg.Mode == protocol.ModeUnlock:
		h.handleUnlock(msg, client)
	}
	// Server-originated modes (SYNC_END, DOC_DELETED) arriving from a
	// client are ignored.
}

// handleLock grants or reports the line lock. The broadcast carries whoever
// owns the line after the attempt, sender included, so every viewer agrees
// on one owner.
func (h *EditorWSHandler) handleLock(msg *protocol.EditMessage, client *editorClient) {
	if msg.DocID == "" || client.CurrentDocID() != msg.DocID {
		return
	}

	owner := h.locks.TryLock(msg.DocID, msg.Offset, client.UserID())

	out := protocol.New(protocol.ModeLock, owner)
	out.DocID = msg.DocID
	out.Offset = msg.Offset
	h.service.Broadcast(msg.DocID, out)
}

func (h *EditorWSHandler) handleUnlock(msg *protocol.EditMessage, client *editorClient) {
	if msg.DocID == "" || client.CurrentDocID() != msg.DocID {
		return
	}

	h.locks.Unlock(msg.DocID, msg.Offset, client.UserID())

	out := protocol.New(protocol.ModeUnlock, client.UserID())
	out.DocID = msg.DocID
	out.Offset = msg.Offset
	h.service.Broadcast(msg.DocID, out)
}
