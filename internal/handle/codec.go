package handle

import "encoding/binary"

// EncodedSize is the fixed on-disk width of a Handle.
const EncodedSize = 8 + 2 + 2 // PageID int64, Offset uint16, Tag uint16

// Encode writes h into dst, which must be at least EncodedSize bytes.
func (h Handle) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(h.PageID))
	binary.LittleEndian.PutUint16(dst[8:10], h.Offset)
	binary.LittleEndian.PutUint16(dst[10:12], uint16(h.Tag))
}

// Decode reads a Handle back out of src.
func Decode(src []byte) Handle {
	return Handle{
		PageID: int64(binary.LittleEndian.Uint64(src[0:8])),
		Offset: binary.LittleEndian.Uint16(src[8:10]),
		Tag:    TypeTag(binary.LittleEndian.Uint16(src[10:12])),
	}
}
