package model

// DocumentMeta is the sidecar directory record for one document. It has its
// own lifecycle next to the state blob but is always rewritten together with
// it on save.
type DocumentMeta struct {
	ID        string `cbor:"id" json:"id"`
	Title     string `cbor:"title" json:"title"`
	UpdatedAt int64  `cbor:"updatedAt" json:"updatedAt"` // unix milliseconds
}

// ImageState is the persisted form of one embedded image block.
type ImageState struct {
	ID     int    `cbor:"id" json:"id"`
	Offset int    `cbor:"offset" json:"offset"`
	Width  int    `cbor:"width" json:"width"`
	Height int    `cbor:"height" json:"height"`
	Data   []byte `cbor:"data" json:"-"`
}

// DocumentState is the full snapshot of one document: the text (with one
// placeholder character per embedded image) and every live image block.
type DocumentState struct {
	Text   string       `cbor:"text"`
	Images []ImageState `cbor:"images"`
}
