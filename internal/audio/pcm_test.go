package audio

import (
	"errors"
	"testing"
)

func TestDecodeFloat32LE(t *testing.T) {
	in := []float32{0, 0.5, -1, 0.25}
	out, err := DecodeFloat32LE(EncodeFloat32LE(in))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecodeMalformedFrames(t *testing.T) {
	if _, err := DecodeFloat32LE(make([]byte, 7)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for float frame, got %v", err)
	}
	if _, err := DecodeSlin16LE(make([]byte, 3)); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame for slin frame, got %v", err)
	}
}

func TestDecodeSlin16LE(t *testing.T) {
	// 0x0000, 0x4000 (16384), 0x8000 (-32768), 0x7fff (32767)
	data := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80, 0xff, 0x7f}
	out, err := DecodeSlin16LE(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestEncodeSlin16LEClips(t *testing.T) {
	out := EncodeSlin16LE([]float32{2, -2})
	back, _ := DecodeSlin16LE(out)
	if back[0] != 32767.0/32768.0 {
		t.Errorf("Expected positive clip, got %v", back[0])
	}
	if back[1] != -1 {
		t.Errorf("Expected negative clip, got %v", back[1])
	}
}
