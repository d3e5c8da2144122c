// Package document holds the server-side synchronization engine: the
// per-document state machine, the room that serializes and broadcasts edits,
// and the service that routes connections to rooms.
package document

import (
	"sort"

	"collab-backend/internal/model"
	"collab-backend/internal/protocol"
)

// imagePlaceholder is the reserved character occupying the text position of
// an embedded image. Keeping placeholders as ordinary characters in the same
// buffer means every text operation's offset math uniformly repositions
// images relative to surrounding text.
const imagePlaceholder = '￼'

// ImageBlock is one embedded image: its payload, display size, and the
// offset of its placeholder character in the document text.
type ImageBlock struct {
	ID     int
	Offset int
	Width  int
	Height int
	Data   []byte
}

// Manager is the authoritative in-memory representation of one document:
// a character buffer plus the image block map. Offsets are rune offsets and
// are clamped to the current length before use, so a stale client's
// operation degrades to a no-op instead of corrupting shared state.
//
// Manager is not safe for concurrent use; the owning Room serializes all
// access.
type Manager struct {
	text   []rune
	images map[int]*ImageBlock
}

func NewManager() *Manager {
	return &Manager{images: make(map[int]*ImageBlock)}
}

// Apply mutates the document according to one operation message. Unknown or
// non-edit modes are ignored.
func (m *Manager) Apply(msg *protocol.EditMessage) {
	if msg == nil {
		return
	}

	switch msg.Mode {
	case protocol.ModeInsert:
		m.applyInsert(msg)
	case protocol.ModeDelete:
		m.applyDelete(msg)
	case protocol.ModeFullSync:
		m.applyFullSync(msg)
	case protocol.ModeImageInsert:
		m.applyImageInsert(msg)
	case protocol.ModeImageResize:
		m.applyImageResize(msg)
	case protocol.ModeImageMove:
		m.applyImageMove(msg)
	}
}

func (m *Manager) applyInsert(msg *protocol.EditMessage) {
	if msg.Text == "" {
		return
	}
	runes := []rune(msg.Text)
	offset := m.clamp(msg.Offset)

	m.text = append(m.text[:offset], append(append([]rune{}, runes...), m.text[offset:]...)...)
	m.shiftImages(offset, len(runes))
}

func (m *Manager) applyDelete(msg *protocol.EditMessage) {
	start := m.clamp(msg.Offset)
	end := m.clamp(msg.Offset + msg.Length)
	if start >= end {
		return
	}

	m.text = append(m.text[:start], m.text[end:]...)
	delta := end - start

	// Images whose placeholder fell inside the removed range are gone;
	// everything past the range shifts left.
	for id, b := range m.images {
		switch {
		case b.Offset >= start && b.Offset < end:
			delete(m.images, id)
		case b.Offset >= end:
			b.Offset -= delta
		}
	}
}

func (m *Manager) applyFullSync(msg *protocol.EditMessage) {
	// Replaces the text only; the image set is left untouched. Clearing
	// images is the caller's explicit choice via Restore.
	m.text = []rune(msg.Text)
}

func (m *Manager) applyImageInsert(msg *protocol.EditMessage) {
	if len(msg.Payload) == 0 {
		return
	}
	offset := m.clamp(msg.Offset)

	m.text = append(m.text[:offset], append([]rune{imagePlaceholder}, m.text[offset:]...)...)
	m.shiftImages(offset, 1)

	w, h := msg.Width, msg.Height
	if w <= 0 {
		w = -1
	}
	if h <= 0 {
		h = -1
	}

	m.images[msg.BlockID] = &ImageBlock{
		ID:     msg.BlockID,
		Offset: offset,
		Width:  w,
		Height: h,
		Data:   msg.Payload,
	}
}

func (m *Manager) applyImageResize(msg *protocol.EditMessage) {
	b, ok := m.images[msg.BlockID]
	if !ok {
		return
	}
	if msg.Width > 0 {
		b.Width = msg.Width
	}
	if msg.Height > 0 {
		b.Height = msg.Height
	}
}

func (m *Manager) applyImageMove(msg *protocol.EditMessage) {
	b, ok := m.images[msg.BlockID]
	if !ok {
		return
	}

	oldOffset := m.clamp(b.Offset)
	newOffset := m.clamp(msg.NewOffset)
	if oldOffset == newOffset {
		return
	}

	// Remove the placeholder at the old position; every other image past it
	// shifts left by one.
	if oldOffset < len(m.text) && m.text[oldOffset] == imagePlaceholder {
		m.text = append(m.text[:oldOffset], m.text[oldOffset+1:]...)
	}
	for _, other := range m.images {
		if other.ID == b.ID {
			continue
		}
		if other.Offset > oldOffset {
			other.Offset--
		}
	}

	// The target was expressed in pre-removal coordinates.
	if newOffset > oldOffset {
		newOffset--
	}
	newOffset = m.clamp(newOffset)

	m.text = append(m.text[:newOffset], append([]rune{imagePlaceholder}, m.text[newOffset:]...)...)
	for _, other := range m.images {
		if other.ID == b.ID {
			continue
		}
		if other.Offset >= newOffset {
			other.Offset++
		}
	}
	b.Offset = newOffset
}

func (m *Manager) shiftImages(fromOffset, delta int) {
	if delta == 0 {
		return
	}
	for _, b := range m.images {
		if b.Offset >= fromOffset {
			b.Offset += delta
		}
	}
}

func (m *Manager) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(m.text) {
		return len(m.text)
	}
	return offset
}

// Text returns the current document text, placeholders included.
func (m *Manager) Text() string {
	return string(m.text)
}

// Len returns the text length in runes.
func (m *Manager) Len() int {
	return len(m.text)
}

// Image returns the block with the given id, or nil.
func (m *Manager) Image(blockID int) *ImageBlock {
	return m.images[blockID]
}

// ImageCount returns the number of live image blocks.
func (m *Manager) ImageCount() int {
	return len(m.images)
}

// BuildImageSyncMessages returns one IMAGE_INSERT per live block, in
// ascending block id, for replaying the image set to a bootstrapping viewer.
func (m *Manager) BuildImageSyncMessages(docID, userID string) []*protocol.EditMessage {
	ids := make([]int, 0, len(m.images))
	for id := range m.images {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	msgs := make([]*protocol.EditMessage, 0, len(ids))
	for _, id := range ids {
		b := m.images[id]
		msg := protocol.New(protocol.ModeImageInsert, userID)
		msg.DocID = docID
		msg.BlockID = b.ID
		msg.Offset = b.Offset
		msg.Length = 1
		msg.Width = b.Width
		msg.Height = b.Height
		msg.Payload = b.Data
		msgs = append(msgs, msg)
	}
	return msgs
}

// State captures the full document as a persistable snapshot.
func (m *Manager) State() *model.DocumentState {
	state := &model.DocumentState{
		Text:   string(m.text),
		Images: make([]model.ImageState, 0, len(m.images)),
	}
	for _, b := range m.images {
		state.Images = append(state.Images, model.ImageState{
			ID:     b.ID,
			Offset: b.Offset,
			Width:  b.Width,
			Height: b.Height,
			Data:   b.Data,
		})
	}
	return state
}

// Restore replaces the entire document, text and images both, from a
// snapshot. A nil snapshot resets to empty.
func (m *Manager) Restore(state *model.DocumentState) {
	m.text = nil
	m.images = make(map[int]*ImageBlock)
	if state == nil {
		return
	}

	m.text = []rune(state.Text)
	for _, is := range state.Images {
		m.images[is.ID] = &ImageBlock{
			ID:     is.ID,
			Offset: is.Offset,
			Width:  is.Width,
			Height: is.Height,
			Data:   is.Data,
		}
	}
}
