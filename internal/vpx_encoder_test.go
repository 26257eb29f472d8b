package internal

import "testing"

// These tests drive the real libvpx encoder; they assume the library the
// cgo binding links against is present on the build machine.

func newI420TestFrame(t *testing.T, w, h int, tsMs, durMs int64) *VideoFrame {
	t.Helper()
	data := make([]byte, w*h*3/2)
	for i := range data {
		data[i] = 0x80
	}
	f := NewVideoFrame()
	cfg := VideoConfig{Format: VideoFormatI420, Width: w, Height: h, Stride: w}
	if err := f.Init(cfg, true, tsMs, durMs, data); err != nil {
		t.Fatalf("frame init: %v", err)
	}
	return f
}

func TestVpxEncoderFirstFrameIsKeyframe(t *testing.T) {
	e := &VpxEncoder{}
	cfg := DefaultVpxConfig()
	if err := e.Init(cfg, 64, 64); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer e.Close()

	out := NewVideoFrame()
	if err := e.EncodeFrame(newI420TestFrame(t, 64, 64, 0, 33), out); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if !out.Keyframe() {
		t.Fatalf("first encoded frame must be a keyframe")
	}
	if out.Format() != VideoFormatVP8 {
		t.Fatalf("output format = %v, want VP8", out.Format())
	}
	if out.Timestamp() != 0 || out.Duration() != 33 {
		t.Fatalf("timing not preserved: ts=%d dur=%d", out.Timestamp(), out.Duration())
	}
	if len(out.Buffer()) == 0 {
		t.Fatalf("empty compressed payload")
	}
	if e.FramesIn() != 1 || e.FramesOut() != 1 {
		t.Fatalf("counters: in=%d out=%d", e.FramesIn(), e.FramesOut())
	}
}

func TestVpxEncoderDecimationDropsFrames(t *testing.T) {
	e := &VpxEncoder{}
	cfg := DefaultVpxConfig()
	cfg.Decimate = 2
	if err := e.Init(cfg, 64, 64); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer e.Close()

	out := NewVideoFrame()
	if err := e.EncodeFrame(newI420TestFrame(t, 64, 64, 0, 33), out); err != ErrDropped {
		t.Fatalf("odd frame: got %v, want ErrDropped", err)
	}
	if err := e.EncodeFrame(newI420TestFrame(t, 64, 64, 33, 33), out); err != nil {
		t.Fatalf("even frame: %v", err)
	}
	if e.FramesIn() != 2 || e.FramesOut() != 1 {
		t.Fatalf("counters after decimation: in=%d out=%d", e.FramesIn(), e.FramesOut())
	}
}

func TestVpxEncoderForcesKeyframeAfterInterval(t *testing.T) {
	e := &VpxEncoder{}
	cfg := DefaultVpxConfig()
	cfg.KeyframeInterval = 1000
	if err := e.Init(cfg, 64, 64); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer e.Close()

	out := NewVideoFrame()
	if err := e.EncodeFrame(newI420TestFrame(t, 64, 64, 0, 33), out); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if err := e.EncodeFrame(newI420TestFrame(t, 64, 64, 1500, 33), out); err != nil {
		t.Fatalf("interval frame: %v", err)
	}
	if !out.Keyframe() {
		t.Fatalf("frame past keyframe interval was not forced to a keyframe")
	}
	if e.LastKeyframeMs() != 1500 {
		t.Fatalf("LastKeyframeMs = %d, want 1500", e.LastKeyframeMs())
	}
}

func TestVpxEncoderRejectsCompressedInput(t *testing.T) {
	e := &VpxEncoder{}
	if err := e.Init(DefaultVpxConfig(), 64, 64); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer e.Close()

	bad := NewVideoFrame()
	bad.Init(VideoConfig{Format: VideoFormatVP8, Width: 64, Height: 64}, true, 0, 33, []byte{1, 2, 3})
	out := NewVideoFrame()
	if err := e.EncodeFrame(bad, out); err == nil {
		t.Fatalf("expected error for compressed input frame")
	}
}
