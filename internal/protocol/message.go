package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"collab-backend/internal/model"
)

// Version is the wire schema version. Frames carrying any other version are
// rejected at decode time.
const Version = 1

// Mode discriminates the operation union carried by EditMessage.
type Mode uint8

const (
	ModeInsert Mode = iota + 1
	ModeDelete
	ModeFullSync
	ModeSyncEnd
	ModeImageInsert
	ModeImageResize
	ModeImageMove
	ModeDocList
	ModeDocOpen
	ModeDocCreate
	ModeDocDelete
	ModeDocLeave
	ModeDocDeleted
	ModeLock
	ModeUnlock
)

var modeNames = map[Mode]string{
	ModeInsert:      "INSERT",
	ModeDelete:      "DELETE",
	ModeFullSync:    "FULL_SYNC",
	ModeSyncEnd:     "SYNC_END",
	ModeImageInsert: "IMAGE_INSERT",
	ModeImageResize: "IMAGE_RESIZE",
	ModeImageMove:   "IMAGE_MOVE",
	ModeDocList:     "DOC_LIST",
	ModeDocOpen:     "DOC_OPEN",
	ModeDocCreate:   "DOC_CREATE",
	ModeDocDelete:   "DOC_DELETE",
	ModeDocLeave:    "DOC_LEAVE",
	ModeDocDeleted:  "DOC_DELETED",
	ModeLock:        "LOCK",
	ModeUnlock:      "UNLOCK",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// IsEdit reports whether the mode mutates document state and therefore goes
// through a room's apply-and-broadcast path.
func (m Mode) IsEdit() bool {
	switch m {
	case ModeInsert, ModeDelete, ModeFullSync, ModeImageInsert, ModeImageResize, ModeImageMove:
		return true
	}
	return false
}

// EditMessage is the single message type exchanged with clients. Only the
// fields relevant to Mode are meaningful; the rest stay at their zero value
// and are omitted from the encoding.
//
// Offsets are character (rune) offsets into the document text. For LOCK and
// UNLOCK, Offset carries the line index.
type EditMessage struct {
	Version int    `cbor:"v"`
	Mode    Mode   `cbor:"mode"`
	UserID  string `cbor:"userId,omitempty"`
	DocID   string `cbor:"docId,omitempty"`

	Text      string `cbor:"text,omitempty"`
	Offset    int    `cbor:"offset,omitempty"`
	Length    int    `cbor:"length,omitempty"`
	BlockID   int    `cbor:"blockId,omitempty"`
	Width     int    `cbor:"width,omitempty"`
	Height    int    `cbor:"height,omitempty"`
	NewOffset int    `cbor:"newOffset,omitempty"`
	Payload   []byte `cbor:"payload,omitempty"`

	DocTitle string               `cbor:"docTitle,omitempty"`
	Docs     []model.DocumentMeta `cbor:"docs,omitempty"`
}

// New returns a message of the given mode stamped with the current schema
// version.
func New(mode Mode, userID string) *EditMessage {
	return &EditMessage{Version: Version, Mode: mode, UserID: userID}
}

func (m *EditMessage) String() string {
	return fmt.Sprintf("[mode=%s user=%s doc=%s offset=%d length=%d blockId=%d]",
		m.Mode, m.UserID, m.DocID, m.Offset, m.Length, m.BlockID)
}

// Encode serializes one message into a single wire frame.
func Encode(m *EditMessage) ([]byte, error) {
	return cbor.Marshal(m)
}

// Decode parses one wire frame and validates its schema version.
func Decode(data []byte) (*EditMessage, error) {
	var m EditMessage
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("unsupported schema version %d", m.Version)
	}
	return &m, nil
}
