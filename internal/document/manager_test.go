package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-backend/internal/protocol"
)

func insertOp(offset int, text string) *protocol.EditMessage {
	msg := protocol.New(protocol.ModeInsert, "u1")
	msg.Offset = offset
	msg.Text = text
	return msg
}

func deleteOp(offset, length int) *protocol.EditMessage {
	msg := protocol.New(protocol.ModeDelete, "u1")
	msg.Offset = offset
	msg.Length = length
	return msg
}

func imageInsertOp(blockID, offset, w, h int) *protocol.EditMessage {
	msg := protocol.New(protocol.ModeImageInsert, "u1")
	msg.BlockID = blockID
	msg.Offset = offset
	msg.Width = w
	msg.Height = h
	msg.Payload = []byte{0xFF, 0xD8}
	return msg
}

func TestInsertAndDelete(t *testing.T) {
	m := NewManager()

	m.Apply(insertOp(0, "Hello"))
	assert.Equal(t, "Hello", m.Text())

	m.Apply(insertOp(5, " World"))
	assert.Equal(t, "Hello World", m.Text())

	m.Apply(deleteOp(5, 6))
	assert.Equal(t, "Hello", m.Text())
}

func TestInsertClampsOffset(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))

	// Way past the end and negative both clamp instead of failing.
	m.Apply(insertOp(100, "X"))
	assert.Equal(t, "abcX", m.Text())

	m.Apply(insertOp(-5, "Y"))
	assert.Equal(t, "YabcX", m.Text())
}

func TestInsertEmptyTextIsNoop(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))
	m.Apply(insertOp(1, ""))
	assert.Equal(t, "abc", m.Text())
}

func TestDeleteClampsRange(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abcdef"))

	// Range extends past the end: clamped to the text length.
	m.Apply(deleteOp(4, 100))
	assert.Equal(t, "abcd", m.Text())

	// Clamped-empty range is a no-op.
	m.Apply(deleteOp(10, 5))
	assert.Equal(t, "abcd", m.Text())
	m.Apply(deleteOp(2, 0))
	assert.Equal(t, "abcd", m.Text())
}

func TestLengthArithmetic(t *testing.T) {
	m := NewManager()

	m.Apply(insertOp(0, "0123456789")) // +10
	m.Apply(insertOp(5, "abc"))       // +3
	m.Apply(deleteOp(2, 4))           // -4
	m.Apply(deleteOp(7, 100))         // clamped: len 9, removes [7,9) = -2

	assert.Equal(t, 10+3-4-2, m.Len())
}

func TestFullSyncReplacesText(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "old content"))

	sync := protocol.New(protocol.ModeFullSync, "u1")
	sync.Text = "brand new"
	m.Apply(sync)
	assert.Equal(t, "brand new", m.Text())

	sync.Text = ""
	m.Apply(sync)
	assert.Equal(t, "", m.Text())
}

func TestFullSyncLeavesImagesAlone(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))
	m.Apply(imageInsertOp(1, 2, 10, 10))
	require.Equal(t, 1, m.ImageCount())

	sync := protocol.New(protocol.ModeFullSync, "u1")
	sync.Text = "xyz"
	m.Apply(sync)

	assert.Equal(t, 1, m.ImageCount())
}

func TestImageInsert(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "Hello World"))
	require.Equal(t, 11, m.Len())

	m.Apply(imageInsertOp(7, 5, 100, 50))

	assert.Equal(t, 12, m.Len())
	assert.Equal(t, imagePlaceholder, []rune(m.Text())[5])

	b := m.Image(7)
	require.NotNil(t, b)
	assert.Equal(t, 5, b.Offset)
	assert.Equal(t, 100, b.Width)
	assert.Equal(t, 50, b.Height)
}

func TestImageInsertWithoutPayloadIsNoop(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))

	msg := imageInsertOp(1, 1, 10, 10)
	msg.Payload = nil
	m.Apply(msg)

	assert.Equal(t, "abc", m.Text())
	assert.Equal(t, 0, m.ImageCount())
}

func TestImageInsertDefaultsNonPositiveDimensions(t *testing.T) {
	m := NewManager()
	m.Apply(imageInsertOp(1, 0, 0, -3))

	b := m.Image(1)
	require.NotNil(t, b)
	assert.Equal(t, -1, b.Width)
	assert.Equal(t, -1, b.Height)
}

func TestTextInsertShiftsImages(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "Hello"))
	m.Apply(imageInsertOp(1, 3, 10, 10))

	m.Apply(insertOp(0, "XY"))

	assert.Equal(t, 5, m.Image(1).Offset)
	assert.Equal(t, imagePlaceholder, []rune(m.Text())[5])
}

func TestDeleteRemovesSpannedImage(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "Hello World"))
	m.Apply(imageInsertOp(7, 5, 100, 50))
	require.Equal(t, 12, m.Len())

	m.Apply(deleteOp(3, 9))

	assert.Nil(t, m.Image(7))
	assert.Equal(t, 0, m.ImageCount())
	assert.Equal(t, 3, m.Len())
}

func TestDeleteShiftsTrailingImages(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "0123456789"))
	m.Apply(imageInsertOp(1, 8, 10, 10))

	m.Apply(deleteOp(0, 4))

	assert.Equal(t, 4, m.Image(1).Offset)
	assert.Equal(t, imagePlaceholder, []rune(m.Text())[4])
}

func TestImageResize(t *testing.T) {
	m := NewManager()
	m.Apply(imageInsertOp(1, 0, 100, 50))

	resize := protocol.New(protocol.ModeImageResize, "u1")
	resize.BlockID = 1
	resize.Width = 200
	resize.Height = 0 // non-positive dimensions are kept as-is
	m.Apply(resize)

	b := m.Image(1)
	assert.Equal(t, 200, b.Width)
	assert.Equal(t, 50, b.Height)
	assert.Equal(t, 1, m.Len())

	resize.BlockID = 99 // unknown block: ignored
	m.Apply(resize)
	assert.Equal(t, 1, m.ImageCount())
}

func TestImageMove(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "0123456789"))
	m.Apply(imageInsertOp(1, 2, 10, 10))
	m.Apply(imageInsertOp(2, 7, 10, 10))
	// text: 01<img1>23456<img2>789, len 12

	move := protocol.New(protocol.ModeImageMove, "u1")
	move.BlockID = 1
	move.NewOffset = 10
	m.Apply(move)

	// Block 1 was pulled out at 2 (block 2 shifts 7->6), target 10 corrects
	// to 9, then block 2 at 6 stays below it.
	assert.Equal(t, 9, m.Image(1).Offset)
	assert.Equal(t, 6, m.Image(2).Offset)
	assert.Equal(t, 12, m.Len())

	runes := []rune(m.Text())
	assert.Equal(t, imagePlaceholder, runes[9])
	assert.Equal(t, imagePlaceholder, runes[6])
	assert.Equal(t, 2, m.ImageCount())
}

func TestImageMoveToSamePositionIsNoop(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))
	m.Apply(imageInsertOp(1, 1, 10, 10))
	before := m.Text()

	move := protocol.New(protocol.ModeImageMove, "u1")
	move.BlockID = 1
	move.NewOffset = 1
	m.Apply(move)

	assert.Equal(t, before, m.Text())
	assert.Equal(t, 1, m.Image(1).Offset)
}

func TestImageMoveUnknownBlockIsNoop(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))

	move := protocol.New(protocol.ModeImageMove, "u1")
	move.BlockID = 42
	move.NewOffset = 1
	m.Apply(move)

	assert.Equal(t, "abc", m.Text())
}

func TestMultibyteOffsets(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "안녕하세요"))
	require.Equal(t, 5, m.Len())

	m.Apply(insertOp(2, "~"))
	assert.Equal(t, "안녕~하세요", m.Text())

	m.Apply(imageInsertOp(1, 3, 10, 10))
	assert.Equal(t, imagePlaceholder, []rune(m.Text())[3])
	assert.Equal(t, 7, m.Len())
}

func TestStateRoundTrip(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "Hello"))
	m.Apply(imageInsertOp(3, 2, 40, 30))

	state := m.State()

	restored := NewManager()
	restored.Restore(state)

	assert.Equal(t, m.Text(), restored.Text())
	require.NotNil(t, restored.Image(3))
	assert.Equal(t, 2, restored.Image(3).Offset)
	assert.Equal(t, 40, restored.Image(3).Width)
}

func TestRestoreNilResetsToEmpty(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "abc"))
	m.Apply(imageInsertOp(1, 1, 10, 10))

	m.Restore(nil)

	assert.Equal(t, "", m.Text())
	assert.Equal(t, 0, m.ImageCount())
}

func TestBuildImageSyncMessagesOrderedByBlockID(t *testing.T) {
	m := NewManager()
	m.Apply(insertOp(0, "0123456789"))
	m.Apply(imageInsertOp(5, 1, 10, 10))
	m.Apply(imageInsertOp(2, 4, 10, 10))
	m.Apply(imageInsertOp(9, 7, 10, 10))

	msgs := m.BuildImageSyncMessages("doc1", "server")
	require.Len(t, msgs, 3)

	assert.Equal(t, []int{2, 5, 9}, []int{msgs[0].BlockID, msgs[1].BlockID, msgs[2].BlockID})
	for _, msg := range msgs {
		assert.Equal(t, protocol.ModeImageInsert, msg.Mode)
		assert.Equal(t, "doc1", msg.DocID)
		assert.Equal(t, 1, msg.Length)
		assert.NotEmpty(t, msg.Payload)
	}
}
