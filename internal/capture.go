package internal

// CaptureSource is the uni-directional collaborator WebmEncoder depends on:
// a platform- or test-supplied producer that pushes raw audio/video into
// the encoder's buffer pools and never holds a back-reference into the
// encoder beyond Start/Stop, per spec.md §9's replacement for the source's
// cyclic sink-filter/encoder reference.
//
// This package never implements real device capture — that's inherently
// platform-specific and out of scope — but defines the contract any real
// capture backend (or the synthetic one in syntheticsource.go) must honor.
type CaptureSource interface {
	// Start begins producing buffers, pushing audio into audioSink and
	// video into videoSink until Stop is called or an unrecoverable
	// capture error occurs.
	Start(audioSink AudioSink, videoSink VideoSink) error
	Stop()

	// Healthy reports whether the source is still delivering buffers. The
	// encoder thread checks it once per pass and treats an unhealthy source
	// the same as a stop request.
	Healthy() bool

	// NegotiatedAudioConfig and NegotiatedVideoConfig report the actual
	// format the source settled on, which may differ from what was
	// requested (e.g. a device that can't do the exact requested rate).
	NegotiatedAudioConfig() AudioConfig
	NegotiatedVideoConfig() VideoConfig
}

// AudioSink receives raw audio buffers from a CaptureSource. Returns
// ErrPoolFull when the pipeline can't keep up; the source should count
// this as a dropped buffer, not a fatal error.
type AudioSink interface {
	OnSamplesReceived(buf *AudioBuffer) error
}

// VideoSink receives raw video frames from a CaptureSource. Returns
// ErrPoolFull when the pipeline can't keep up.
type VideoSink interface {
	OnVideoFrameReceived(frame *VideoFrame) error
}
