package internal

import (
	"sync"
	"testing"
	"time"
)

type captureSinks struct {
	mu     sync.Mutex
	audio  []int64
	video  []int64
	frames int
}

func (c *captureSinks) OnSamplesReceived(buf *AudioBuffer) error {
	c.mu.Lock()
	c.audio = append(c.audio, buf.Timestamp())
	c.mu.Unlock()
	return nil
}

func (c *captureSinks) OnVideoFrameReceived(frame *VideoFrame) error {
	c.mu.Lock()
	c.video = append(c.video, frame.Timestamp())
	c.frames += frame.Length()
	c.mu.Unlock()
	return nil
}

func TestSyntheticSourceEmitsBothStreams(t *testing.T) {
	audioCfg := AudioConfig{Format: AudioFormatPCM, Channels: 2, SampleRate: 8000}
	videoCfg := VideoConfig{Format: VideoFormatI420, Width: 16, Height: 16, FrameRate: 100}
	s := NewSyntheticSource(audioCfg, videoCfg)

	sinks := &captureSinks{}
	if err := s.Start(sinks, sinks); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Healthy() {
		t.Fatalf("source should report healthy while running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sinks.mu.Lock()
		enough := len(sinks.audio) >= 3 && len(sinks.video) >= 3
		sinks.mu.Unlock()
		if enough {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if s.Healthy() {
		t.Fatalf("source should report unhealthy after Stop")
	}

	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if len(sinks.audio) < 3 || len(sinks.video) < 3 {
		t.Fatalf("emitted %d audio, %d video buffers", len(sinks.audio), len(sinks.video))
	}
	for i := 1; i < len(sinks.audio); i++ {
		if sinks.audio[i] <= sinks.audio[i-1] {
			t.Fatalf("audio timestamps not increasing: %v", sinks.audio)
		}
	}
	for i := 1; i < len(sinks.video); i++ {
		if sinks.video[i] <= sinks.video[i-1] {
			t.Fatalf("video timestamps not increasing: %v", sinks.video)
		}
	}
}

func TestSyntheticSourceStopIsIdempotent(t *testing.T) {
	s := NewSyntheticSource(AudioConfig{Format: AudioFormatPCM, Channels: 1, SampleRate: 8000}, VideoConfig{})
	sinks := &captureSinks{}
	if err := s.Start(sinks, sinks); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestPacerDoesNotSleepForPastTimestamps(t *testing.T) {
	p := NewPacer(500 * time.Millisecond)
	p.Wait(0) // anchors

	start := time.Now()
	p.Wait(-100) // behind the anchor: re-anchors instead of sleeping
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("Wait slept %v for a past timestamp", elapsed)
	}
}

func TestPacerPacesFutureTimestamps(t *testing.T) {
	p := NewPacer(time.Second)
	p.Wait(0)
	start := time.Now()
	p.Wait(30)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Wait returned after %v, expected ~30ms pacing", elapsed)
	}
}
