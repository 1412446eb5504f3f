package page

import "testing"

func TestNewPageHasCorrectSize(t *testing.T) {
	p := New(7)
	if len(p.Data) != Size {
		t.Fatalf("expected page data length %d, got %d", Size, len(p.Data))
	}
	if len(p.Body()) != DataSize {
		t.Fatalf("expected body length %d, got %d", DataSize, len(p.Body()))
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	data := make([]byte, Size)
	EncodeHeader(data, 123456789)
	if got := DecodeHeader(data); got != 123456789 {
		t.Fatalf("header round trip mismatch: got %d", got)
	}
}
