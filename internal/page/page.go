// Package page defines the fixed-size in-memory page buffer shared by the
// disk I/O layer, the buffer pool, and the tree-node allocator.
package page

import "encoding/binary"

const (
	// Size is the on-disk and in-memory page granularity.
	Size = 4096

	// headerSize is the byte width of the persisted page header
	// (page id only — pin count and dirty bit are in-memory only).
	headerSize = 8

	// DataSize is the number of bytes available to the allocator inside
	// a page, after the header.
	DataSize = Size - headerSize
)

// Page is a fixed-size byte buffer plus the bookkeeping the buffer pool
// needs to decide whether it can be evicted.
//
// PinCount and Dirty are never persisted: on load from disk PinCount is
// always 0 and Dirty is always false, since a freshly-read page cannot yet
// have any pins or unflushed mutations.
type Page struct {
	ID       int64
	Data     []byte // full Size bytes, header included
	Dirty    bool
	PinCount int32
}

// New allocates a zero-filled page for the given id with the header
// already stamped.
func New(id int64) *Page {
	p := &Page{
		ID:   id,
		Data: make([]byte, Size),
	}
	EncodeHeader(p.Data, id)
	return p
}

// Body returns the allocator-visible region of the page, past the header.
func (p *Page) Body() []byte {
	return p.Data[headerSize:]
}

// EncodeHeader writes the persisted header fields into the front of data.
func EncodeHeader(data []byte, id int64) {
	binary.LittleEndian.PutUint64(data[0:8], uint64(id))
}

// DecodeHeader reads the page id out of a freshly-read page buffer.
func DecodeHeader(data []byte) (id int64) {
	return int64(binary.LittleEndian.Uint64(data[0:8]))
}
