package internal

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Flag values, grounded on the teacher's pflag-based cli.go but expanded to
// cover every flag in spec.md §6 instead of the WHEP client's handful of
// playback options.
var (
	FlagURL        string
	FlagStreamID   string
	FlagStreamName string
	FlagFormPost   bool
	FlagHeaders    []string
	FlagVars       []string

	FlagAudioDevice string
	FlagVideoDevice string
	FlagADisable    bool
	FlagVDisable    bool
	FlagAManual     bool
	FlagVManual     bool

	FlagAChannels int
	FlagARate     int
	FlagASize     int

	FlagVWidth     int
	FlagVHeight    int
	FlagVFrameRate float64

	FlagVorbisBitrate     int
	FlagVorbisMinBitrate  int
	FlagVorbisMaxBitrate  int
	FlagVorbisDisableVBR  bool
	FlagVorbisIBlockBias  float64
	FlagVorbisLowpassFreq float64

	FlagVpxCodec            string
	FlagVpxBitrate          int
	FlagVpxKeyframeInterval int
	FlagVpxDecimate         int
	FlagVpxMinQ             int
	FlagVpxMaxQ             int
	FlagVpxSpeed            int
	FlagVpxStaticThreshold  int
	FlagVpxThreads          int
	FlagVpxTokenPartitions  int
	FlagVpxUndershoot       int
	FlagVpxNoiseSensitivity int

	FlagDashEncode   bool
	FlagDashName     string
	FlagDashDir      string
	FlagDashStartNum string

	DebugMode bool
)

func init() {
	pflag.StringVar(&FlagURL, "url", "", "Upload target URL (required)")
	pflag.StringVar(&FlagStreamID, "stream_id", "", "Stream id; required if --url has no query string")
	pflag.StringVar(&FlagStreamName, "stream_name", "", "Stream name; required if --url has no query string")
	pflag.BoolVar(&FlagFormPost, "form_post", false, "Use multipart upload mode instead of raw body POST")
	pflag.StringArrayVar(&FlagHeaders, "header", nil, "NAME:VALUE header, repeatable")
	pflag.StringArrayVar(&FlagVars, "var", nil, "NAME:VALUE form field, repeatable (form_post mode only)")

	pflag.StringVar(&FlagAudioDevice, "adev", "", "Audio capture device name")
	pflag.StringVar(&FlagVideoDevice, "vdev", "", "Video capture device name")
	pflag.BoolVar(&FlagADisable, "adisable", false, "Disable the audio stream")
	pflag.BoolVar(&FlagVDisable, "vdisable", false, "Disable the video stream")
	pflag.BoolVar(&FlagAManual, "amanual", false, "Request the platform source UI for manual audio config")
	pflag.BoolVar(&FlagVManual, "vmanual", false, "Request the platform source UI for manual video config")

	pflag.IntVar(&FlagAChannels, "achannels", 2, "Audio channels")
	pflag.IntVar(&FlagARate, "arate", 44100, "Audio sample rate (Hz)")
	pflag.IntVar(&FlagASize, "asize", 16, "Audio bits per sample")

	pflag.IntVar(&FlagVWidth, "vwidth", 640, "Requested video width")
	pflag.IntVar(&FlagVHeight, "vheight", 480, "Requested video height")
	pflag.Float64Var(&FlagVFrameRate, "vframe_rate", 30, "Requested video frame rate")

	pflag.IntVar(&FlagVorbisBitrate, "vorbis_bitrate", 128, "Vorbis average bitrate (kbps)")
	pflag.IntVar(&FlagVorbisMinBitrate, "vorbis_minimum_bitrate", UseDefault, "Vorbis minimum bitrate (kbps)")
	pflag.IntVar(&FlagVorbisMaxBitrate, "vorbis_maximum_bitrate", UseDefault, "Vorbis maximum bitrate (kbps)")
	pflag.BoolVar(&FlagVorbisDisableVBR, "vorbis_disable_vbr", false, "Disable quality-based VBR; use managed bitrate")
	pflag.Float64Var(&FlagVorbisIBlockBias, "vorbis_iblock_bias", UseDefaultF, "Vorbis impulse block bias, -15..0")
	pflag.Float64Var(&FlagVorbisLowpassFreq, "vorbis_lowpass_frequency", UseDefaultF, "Vorbis lowpass frequency, 2..99")

	pflag.StringVar(&FlagVpxCodec, "vpx_codec", "vp8", "VPx codec: vp8 or vp9")
	pflag.IntVar(&FlagVpxBitrate, "vpx_bitrate", 500, "VPx target bitrate (kbps)")
	pflag.IntVar(&FlagVpxKeyframeInterval, "vpx_keyframe_interval", 1000, "VPx keyframe interval (ms)")
	pflag.IntVar(&FlagVpxDecimate, "vpx_decimate", UseDefault, "Drop every Nth raw frame before encoding")
	pflag.IntVar(&FlagVpxMinQ, "vpx_min_q", 2, "VPx minimum quantizer")
	pflag.IntVar(&FlagVpxMaxQ, "vpx_max_q", 52, "VPx maximum quantizer")
	pflag.IntVar(&FlagVpxSpeed, "vpx_speed", -6, "VPx encoder speed/cpu-used")
	pflag.IntVar(&FlagVpxStaticThreshold, "vpx_static_threshold", UseDefault, "VPx static threshold")
	pflag.IntVar(&FlagVpxThreads, "vpx_threads", UseDefault, "VPx encoder thread count")
	pflag.IntVar(&FlagVpxTokenPartitions, "vpx_token_partitions", UseDefault, "VPx token partitions, 0..3")
	pflag.IntVar(&FlagVpxUndershoot, "vpx_undershoot", UseDefault, "VPx undershoot percentage")
	pflag.IntVar(&FlagVpxNoiseSensitivity, "vpx_noise_sensitivity", UseDefault, "VPx noise sensitivity, 0..1")

	pflag.BoolVar(&FlagDashEncode, "dash", false, "Enable DASH dual-muxer output mode")
	pflag.StringVar(&FlagDashName, "dash_name", "webmlive", "DASH MPD name and chunk id prefix")
	pflag.StringVar(&FlagDashDir, "dash_dir", "./", "Output directory for MPD and DASH chunks")
	pflag.StringVar(&FlagDashStartNum, "dash_start_number", "1", "MPD SegmentTemplate startNumber value")

	pflag.BoolVar(&DebugMode, "debug", false, "Enable debug logging")
}

// ParsedHeaders splits --header NAME:VALUE flags into a map.
func ParsedHeaders() map[string]string {
	return splitNameValue(FlagHeaders)
}

// ParsedVars splits --var NAME:VALUE flags into a map.
func ParsedVars() map[string]string {
	return splitNameValue(FlagVars)
}

func splitNameValue(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

// ValidateFlags enforces the configuration-error checks spec.md §7 requires
// to fail fast at init: missing URL, both streams disabled, and a URL with
// no query string but no stream id/name to synthesize one.
func ValidateFlags() error {
	if FlagURL == "" {
		return fmt.Errorf("--url is required")
	}
	if FlagADisable && FlagVDisable {
		return fmt.Errorf("audio and video cannot both be disabled")
	}
	if !strings.Contains(FlagURL, "?") {
		if FlagStreamID == "" {
			return fmt.Errorf("--stream_id is required when --url has no query string")
		}
		if FlagStreamName == "" {
			return fmt.Errorf("--stream_name is required when --url has no query string")
		}
	}
	switch strings.ToLower(FlagVpxCodec) {
	case "vp8", "vp9":
	default:
		return fmt.Errorf("unsupported --vpx_codec: %s (supported: vp8, vp9)", FlagVpxCodec)
	}
	if FlagVorbisIBlockBias != UseDefaultF && (FlagVorbisIBlockBias < -15 || FlagVorbisIBlockBias > 0) {
		return fmt.Errorf("--vorbis_iblock_bias must be in -15..0")
	}
	if FlagVorbisLowpassFreq != UseDefaultF && (FlagVorbisLowpassFreq < 2 || FlagVorbisLowpassFreq > 99) {
		return fmt.Errorf("--vorbis_lowpass_frequency must be in 2..99")
	}
	if FlagVpxTokenPartitions != UseDefault && (FlagVpxTokenPartitions < 0 || FlagVpxTokenPartitions > 3) {
		return fmt.Errorf("--vpx_token_partitions must be in 0..3")
	}
	if FlagVpxNoiseSensitivity != UseDefault && (FlagVpxNoiseSensitivity < 0 || FlagVpxNoiseSensitivity > 1) {
		return fmt.Errorf("--vpx_noise_sensitivity must be 0 or 1")
	}
	return nil
}

// SetupUsage installs a usage message describing the encoder's flags.
func SetupUsage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "webmlive-encode - live WebM streaming encoder\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s --url <URL> [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		pflag.PrintDefaults()
	}
}
