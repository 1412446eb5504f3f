package handle

import "testing"

func TestNullHandleEquality(t *testing.T) {
	a := Null
	b := Handle{PageID: -1, Offset: 99, Tag: TypeLeafNode}
	if !a.Equal(b) {
		t.Fatalf("expected two null handles (differing Offset/Tag) to be equal")
	}
}

func TestEqualityIgnoresTag(t *testing.T) {
	a := Handle{PageID: 3, Offset: 40, Tag: TypeLeafNode}
	b := Handle{PageID: 3, Offset: 40, Tag: TypeBranchNode}
	if !a.Equal(b) {
		t.Fatalf("expected handles differing only in Tag to be equal")
	}
}

func TestLessOrdersByPageThenOffset(t *testing.T) {
	a := Handle{PageID: 1, Offset: 100}
	b := Handle{PageID: 1, Offset: 50}
	c := Handle{PageID: 0, Offset: 9000}
	if !b.Less(a) {
		t.Fatalf("expected lower offset on the same page to sort first")
	}
	if !c.Less(a) {
		t.Fatalf("expected lower page id to sort first regardless of offset")
	}
}

func TestWithTagPreservesAddress(t *testing.T) {
	h := Handle{PageID: 2, Offset: 10}
	tagged := h.WithTag(TypePolygonBlob)
	if tagged.PageID != h.PageID || tagged.Offset != h.Offset {
		t.Fatalf("WithTag must not change the address")
	}
	if tagged.Tag != TypePolygonBlob {
		t.Fatalf("expected WithTag to set Tag")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := Handle{PageID: 12345, Offset: 4000, Tag: TypeBranchNode}
	buf := make([]byte, EncodedSize)
	h.Encode(buf)

	got := Decode(buf)
	if got.PageID != h.PageID || got.Offset != h.Offset || got.Tag != h.Tag {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}
