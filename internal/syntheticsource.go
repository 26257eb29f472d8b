package internal

import (
	"sync"
	"time"
)

// SyntheticSource is a CaptureSource that needs no real device: it
// generates silent PCM16 audio and solid-color I420 video frames at the
// configured rate. Useful for tests and for exercising the full pipeline
// without platform-specific capture code, which spec.md explicitly treats
// as an external collaborator outside this repo's scope.
//
// Grounded on the teacher's Pacer (internal/pacer.go), reused here to pace
// synthetic frame emission against wall-clock time the same way it paced
// RTP playout.
type SyntheticSource struct {
	audioConfig AudioConfig
	videoConfig VideoConfig

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSyntheticSource builds a source that will emit audio/video frames at
// the given configs; pass a zero-value AudioConfig/VideoConfig to disable
// that stream entirely.
func NewSyntheticSource(audioConfig AudioConfig, videoConfig VideoConfig) *SyntheticSource {
	return &SyntheticSource{
		audioConfig: audioConfig,
		videoConfig: videoConfig,
		done:        make(chan struct{}),
	}
}

func (s *SyntheticSource) NegotiatedAudioConfig() AudioConfig { return s.audioConfig }
func (s *SyntheticSource) NegotiatedVideoConfig() VideoConfig { return s.videoConfig }

// Healthy reports true until Stop; a synthetic source has no device to lose.
func (s *SyntheticSource) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// Start launches one goroutine per enabled stream, each paced by its own
// Pacer against the configured sample rate / frame rate.
func (s *SyntheticSource) Start(audioSink AudioSink, videoSink VideoSink) error {
	if s.audioConfig.SampleRate > 0 {
		s.wg.Add(1)
		go s.runAudio(audioSink)
	}
	if s.videoConfig.Width > 0 && s.videoConfig.Height > 0 {
		s.wg.Add(1)
		go s.runVideo(videoSink)
	}
	return nil
}

func (s *SyntheticSource) runAudio(sink AudioSink) {
	defer s.wg.Done()
	const frameMs = 10
	frameSamples := s.audioConfig.SampleRate * frameMs / 1000
	bytesPerSample := 2
	if s.audioConfig.Format == AudioFormatIEEEFloat {
		bytesPerSample = 4
	}
	// All-zero bytes are silence in both the s16 and float layouts.
	silence := make([]byte, frameSamples*s.audioConfig.Channels*bytesPerSample)

	pacer := NewPacer(500 * time.Millisecond)
	buf := NewAudioBuffer()
	var elapsedMs int64
	for {
		select {
		case <-s.done:
			return
		default:
		}
		pacer.Wait(elapsedMs)
		if err := buf.Init(s.audioConfig, elapsedMs, frameMs, silence); err != nil {
			continue
		}
		sink.OnSamplesReceived(buf)
		elapsedMs += frameMs
	}
}

func (s *SyntheticSource) runVideo(sink VideoSink) {
	defer s.wg.Done()
	frameRate := s.videoConfig.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}
	frameDurationMs := int64(1000.0 / frameRate)

	ySize := s.videoConfig.Width * s.videoConfig.Height
	uvSize := ySize / 4
	frame := make([]byte, ySize+2*uvSize)
	for i := range frame {
		frame[i] = 0x80
	}

	cfg := s.videoConfig
	cfg.Format = VideoFormatI420
	cfg.Stride = cfg.Width

	pacer := NewPacer(500 * time.Millisecond)
	vf := NewVideoFrame()
	var elapsedMs int64
	for {
		select {
		case <-s.done:
			return
		default:
		}
		pacer.Wait(elapsedMs)
		if err := vf.Init(cfg, true, elapsedMs, frameDurationMs, frame); err != nil {
			continue
		}
		sink.OnVideoFrameReceived(vf)
		elapsedMs += frameDurationMs
	}
}

// Stop signals both goroutines to exit and waits for them. Idempotent.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}
