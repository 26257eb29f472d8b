package internal

import "testing"

func TestVideoFrameInitConvertsNonI420ToI420(t *testing.T) {
	w, h := 4, 2
	rgba := make([]byte, w*h*4)
	for i := range rgba {
		rgba[i] = 0x80
	}

	f := NewVideoFrame()
	if err := f.Init(VideoConfig{Format: VideoFormatRGBA, Width: w, Height: h}, false, 0, 33, rgba); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.Format() != VideoFormatI420 {
		t.Fatalf("format = %v, want I420", f.Format())
	}
	if f.Stride() != w {
		t.Fatalf("stride = %d, want %d", f.Stride(), w)
	}
	if !f.Keyframe() {
		t.Fatalf("converted raw frame should be flagged as keyframe")
	}
	wantLen := w*h + 2*((w+1)/2)*((h+1)/2)
	if f.Length() != wantLen {
		t.Fatalf("length = %d, want %d", f.Length(), wantLen)
	}
}

func TestVideoFrameInitPassesThroughCompressed(t *testing.T) {
	f := NewVideoFrame()
	data := []byte{1, 2, 3}
	if err := f.Init(VideoConfig{Format: VideoFormatVP8, Width: 4, Height: 2}, true, 0, 33, data); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.Format() != VideoFormatVP8 {
		t.Fatalf("format = %v, want VP8", f.Format())
	}
	if string(f.Buffer()) != string(data) {
		t.Fatalf("buffer mismatch")
	}
}

func TestVideoFrameInitRejectsEmptyData(t *testing.T) {
	f := NewVideoFrame()
	if err := f.Init(VideoConfig{Format: VideoFormatI420, Width: 2, Height: 2}, false, 0, 0, nil); err != ErrInvalidArg {
		t.Fatalf("expected ErrInvalidArg, got %v", err)
	}
}

func TestVideoFrameCloneAndSwap(t *testing.T) {
	a := NewVideoFrame()
	a.Init(VideoConfig{Format: VideoFormatVP8, Width: 2, Height: 2}, true, 5, 10, []byte{1, 2, 3})

	clone := NewVideoFrame()
	if err := a.Clone(clone); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if string(clone.Buffer()) != string(a.Buffer()) || clone.Timestamp() != a.Timestamp() {
		t.Fatalf("clone did not copy payload/metadata")
	}

	b := NewVideoFrame()
	b.Init(VideoConfig{Format: VideoFormatVP8, Width: 2, Height: 2}, false, 99, 1, []byte{9, 9})
	a.Swap(b)
	if string(a.Buffer()) != "\x09\x09" || string(b.Buffer()) != "\x01\x02\x03" {
		t.Fatalf("swap did not exchange payloads")
	}
}
