package internal

import "errors"

// AudioFormat identifies the wire representation of an AudioBuffer's payload.
type AudioFormat int

const (
	AudioFormatPCM AudioFormat = iota + 1
	AudioFormatIEEEFloat
	AudioFormatVorbis
)

// VideoFormat identifies the wire representation of a VideoFrame's payload.
type VideoFormat int

const (
	VideoFormatI420 VideoFormat = iota
	VideoFormatYV12
	VideoFormatYUY2
	VideoFormatYUYV
	VideoFormatUYVY
	VideoFormatRGB24
	VideoFormatRGBA
	VideoFormatVP8
	VideoFormatVP9
)

func (f VideoFormat) isRaw() bool {
	switch f {
	case VideoFormatI420, VideoFormatYV12, VideoFormatYUY2, VideoFormatYUYV,
		VideoFormatUYVY, VideoFormatRGB24, VideoFormatRGBA:
		return true
	}
	return false
}

// kTimebase is the encoder-wide timebase denominator: all PTS/duration
// values passed to the codec libraries are expressed in milliseconds,
// i.e. a 1/1000 second timebase, matching WebmEncoderConfig::kTimebase.
const kTimebase = 1000

// UseDefault is the sentinel meaning "do not override the codec library's
// own default". Every tunable VPx/Vorbis field is checked against it before
// the corresponding control call is made.
const UseDefault = -200

// UseDefaultF is the float counterpart, used by Vorbis's impulse-block-bias
// and lowpass-frequency knobs which are expressed as doubles upstream.
const UseDefaultF = -200.0

// AudioConfig describes the format of an audio stream. Immutable once the
// encoder has been initialized with it.
type AudioConfig struct {
	Format         AudioFormat
	Channels       int
	SampleRate     int
	BitsPerSample  int
	BlockAlign     int
	BytesPerSecond int
	ChannelMask    uint32
}

// VideoConfig describes the format of a video stream, negotiated at
// capture-connect time.
type VideoConfig struct {
	Format    VideoFormat
	Width     int
	Height    int
	Stride    int
	FrameRate float64
}

// VpxConfig carries rate-control and codec-tuning knobs for VpxEncoder.
// Fields left at UseDefault suppress the corresponding vpx_codec_control
// call entirely rather than passing a library default explicitly.
type VpxConfig struct {
	Codec            VideoFormat // VideoFormatVP8 or VideoFormatVP9
	KeyframeInterval int         // milliseconds
	Bitrate          int         // kilobits/sec
	Decimate         int
	MinQuantizer     int
	MaxQuantizer     int
	Speed            int
	StaticThreshold  int
	ThreadCount      int
	TokenPartitions  int
	Undershoot       int
	NoiseSensitivity int
}

// DefaultVpxConfig mirrors VpxConfig's constructor defaults in
// client_encoder/video_encoder.h.
func DefaultVpxConfig() VpxConfig {
	return VpxConfig{
		Codec:            VideoFormatVP8,
		KeyframeInterval: 1000,
		Bitrate:          500,
		Decimate:         UseDefault,
		MinQuantizer:     2,
		MaxQuantizer:     52,
		Speed:            -6,
		StaticThreshold:  UseDefault,
		ThreadCount:      UseDefault,
		TokenPartitions:  UseDefault,
		Undershoot:       UseDefault,
		NoiseSensitivity: UseDefault,
	}
}

// VorbisConfig carries rate-control and codec-tuning knobs for
// VorbisEncoder. Bitrates are expressed in kilobits and multiplied by 1000
// when VorbisEncoder records them; none of these knobs is passed to the
// underlying analyzer.
type VorbisConfig struct {
	AverageBitrate      int
	MinimumBitrate      int
	MaximumBitrate      int
	BitrateBasedQuality bool
	ImpulseBlockBias    float64
	LowpassFrequency    float64
}

// DefaultVorbisConfig mirrors VorbisConfig's constructor defaults in
// client_encoder/audio_encoder.h.
func DefaultVorbisConfig() VorbisConfig {
	return VorbisConfig{
		AverageBitrate:      128,
		MinimumBitrate:      UseDefault,
		MaximumBitrate:      UseDefault,
		BitrateBasedQuality: true,
		ImpulseBlockBias:    UseDefaultF,
		LowpassFrequency:    UseDefaultF,
	}
}

// Sentinel errors, compared directly (==) by callers rather than as
// integer status codes.
var (
	ErrPoolFull           = errors.New("buffer pool full")
	ErrPoolEmpty          = errors.New("buffer pool empty")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrInvalidArg         = errors.New("invalid argument")
	ErrNoChunkReady       = errors.New("no chunk ready")
	ErrBufferTooSmall     = errors.New("user buffer too small for chunk")
	ErrVideoTrackExists   = errors.New("video track already added")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrNoSamples          = errors.New("no samples available")
	ErrDropped            = errors.New("frame dropped")
	ErrNotInitialized     = errors.New("not initialized")
)
