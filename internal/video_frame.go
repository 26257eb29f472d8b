package internal

// VideoFrame owns a byte payload plus timing, keyframe, and format
// metadata. Uncompressed frames that arrive in a raw format other than
// I420/YV12 are converted to I420 in place during Init; output stride
// always equals width after conversion, per spec.
type VideoFrame struct {
	data      []byte
	length    int
	keyframe  bool
	timestamp int64       // milliseconds
	duration  int64       // milliseconds
	config    VideoConfig
}

// NewVideoFrame returns an empty VideoFrame ready for Init.
func NewVideoFrame() *VideoFrame {
	return &VideoFrame{}
}

// Init copies data into the frame's storage, converting to I420 first when
// necessary. Compressed frames (VP8/VP9) and frames already in I420/YV12
// pass through unmodified.
func (f *VideoFrame) Init(config VideoConfig, keyframe bool, timestampMs, durationMs int64, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidArg
	}
	f.keyframe = keyframe
	f.timestamp = timestampMs
	f.duration = durationMs

	if config.Format.isRaw() && config.Format != VideoFormatI420 && config.Format != VideoFormatYV12 {
		converted, err := convertToI420(config, data)
		if err != nil {
			return err
		}
		f.setData(converted)
		config.Format = VideoFormatI420
		config.Stride = config.Width
		f.config = config
		// Uncompressed frames always carry the keyframe flag, per spec.
		f.keyframe = true
		return nil
	}

	f.setData(data)
	f.config = config
	if config.Format.isRaw() {
		f.keyframe = true
	}
	return nil
}

func (f *VideoFrame) setData(data []byte) {
	if cap(f.data) < len(data) {
		f.data = make([]byte, len(data))
	} else {
		f.data = f.data[:len(data)]
	}
	copy(f.data, data)
	f.length = len(data)
}

// Buffer returns the raw payload, satisfying the Bufferable constraint.
func (f *VideoFrame) Buffer() []byte { return f.data[:f.length] }

// Clone deep-copies f's payload and metadata into dst.
func (f *VideoFrame) Clone(dst *VideoFrame) error {
	dst.data = append(dst.data[:0], f.data[:f.length]...)
	dst.length = f.length
	dst.keyframe = f.keyframe
	dst.timestamp = f.timestamp
	dst.duration = f.duration
	dst.config = f.config
	return nil
}

// Swap exchanges storage with other, avoiding any allocation.
func (f *VideoFrame) Swap(other *VideoFrame) {
	f.data, other.data = other.data, f.data
	f.length, other.length = other.length, f.length
	f.keyframe, other.keyframe = other.keyframe, f.keyframe
	f.timestamp, other.timestamp = other.timestamp, f.timestamp
	f.duration, other.duration = other.duration, f.duration
	f.config, other.config = other.config, f.config
}

func (f *VideoFrame) Keyframe() bool         { return f.keyframe }
func (f *VideoFrame) Timestamp() int64       { return f.timestamp }
func (f *VideoFrame) SetTimestamp(ts int64)  { f.timestamp = ts }
func (f *VideoFrame) Duration() int64        { return f.duration }
func (f *VideoFrame) Config() VideoConfig    { return f.config }
func (f *VideoFrame) Format() VideoFormat    { return f.config.Format }
func (f *VideoFrame) Width() int             { return f.config.Width }
func (f *VideoFrame) Height() int            { return f.config.Height }
func (f *VideoFrame) Stride() int            { return f.config.Stride }
func (f *VideoFrame) Length() int            { return f.length }

// BT.601 fixed-point RGB->YUV coefficient tables, same construction as the
// whep client's libvpx-go adapter (internal/vp8_encoder.go) — kept here
// because color conversion now happens at VideoFrame::Init time rather than
// at the encoder, matching the original webmlive split between VideoFrame
// and VpxEncoder responsibilities.
var (
	yRTable, yGTable, yBTable [256]int
	uRTable, uGTable, uBTable [256]int
	vRTable, vGTable, vBTable [256]int
)

func init() {
	for i := 0; i < 256; i++ {
		yRTable[i] = 66 * i
		yGTable[i] = 129 * i
		yBTable[i] = 25 * i

		uRTable[i] = -38 * i
		uGTable[i] = -74 * i
		uBTable[i] = 112 * i

		vRTable[i] = 112 * i
		vGTable[i] = -94 * i
		vBTable[i] = -18 * i
	}
}

func clampToByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func rgbToYUV(r, g, b int) (y, u, v byte) {
	y = clampToByte(((yRTable[r] + yGTable[g] + yBTable[b] + 128) >> 8) + 16)
	u = clampToByte(((uRTable[r] + uGTable[g] + uBTable[b] + 128) >> 8) + 128)
	v = clampToByte(((vRTable[r] + vGTable[g] + vBTable[b] + 128) >> 8) + 128)
	return
}

// convertToI420 dispatches on config.Format and returns a tightly packed
// I420 buffer (stride == width).
func convertToI420(config VideoConfig, data []byte) ([]byte, error) {
	w, h := config.Width, config.Height
	switch config.Format {
	case VideoFormatRGBA:
		return rgbaToI420(data, w, h, 4), nil
	case VideoFormatRGB24:
		return rgbaToI420(data, w, h, 3), nil
	case VideoFormatYUY2, VideoFormatYUYV:
		return packedYUV422ToI420(data, w, h, 0, 1, 2, 3)
	case VideoFormatUYVY:
		return packedYUV422ToI420(data, w, h, 1, 0, 3, 2)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// rgbaToI420 handles both 4-byte RGBA and 3-byte RGB24 inputs via the
// bytesPerPixel parameter, sampling chroma at the top-left pixel of each
// 2x2 block — identical strategy to VP8Encoder.rgbaToI420 in the whep
// client, moved here since conversion now happens on ingest.
func rgbaToI420(src []byte, w, h, bpp int) []byte {
	ySize := w * h
	uvW, uvH := (w+1)/2, (h+1)/2
	out := make([]byte, ySize+2*uvW*uvH)
	yPlane := out[:ySize]
	uPlane := out[ySize : ySize+uvW*uvH]
	vPlane := out[ySize+uvW*uvH:]

	for row := 0; row < h; row++ {
		rowBase := row * w * bpp
		yRow := row * w
		uvRow := (row / 2) * uvW
		for col := 0; col < w; col++ {
			idx := rowBase + col*bpp
			r, g, b := int(src[idx]), int(src[idx+1]), int(src[idx+2])
			y, u, v := rgbToYUV(r, g, b)
			yPlane[yRow+col] = y
			if row%2 == 0 && col%2 == 0 {
				uvCol := col / 2
				uPlane[uvRow+uvCol] = u
				vPlane[uvRow+uvCol] = v
			}
		}
	}
	return out
}

// packedYUV422ToI420 downsamples a packed 4:2:2 format (YUY2/YUYV/UYVY) to
// planar 4:2:0 by keeping the chroma samples of even rows and dropping
// those of odd rows (no averaging), reusing the already-subsampled
// horizontal chroma the 4:2:2 source provides: one U/V pair per macropixel.
func packedYUV422ToI420(src []byte, w, h int, yOff0, uOff, yOff1, vOff int) ([]byte, error) {
	macropixels := w / 2
	expected := macropixels * 2 * 2 * h
	if len(src) < expected {
		return nil, ErrInvalidArg
	}
	ySize := w * h
	uvW, uvH := (w+1)/2, (h+1)/2
	out := make([]byte, ySize+2*uvW*uvH)
	yPlane := out[:ySize]
	uPlane := out[ySize : ySize+uvW*uvH]
	vPlane := out[ySize+uvW*uvH:]

	rowStride := macropixels * 4
	for row := 0; row < h; row++ {
		srcRow := src[row*rowStride:]
		yRow := yPlane[row*w:]
		for mp := 0; mp < macropixels; mp++ {
			base := mp * 4
			yRow[mp*2] = srcRow[base+yOff0]
			yRow[mp*2+1] = srcRow[base+yOff1]
			if row%2 == 0 {
				uvRow := (row / 2) * uvW
				uPlane[uvRow+mp] = srcRow[base+uOff]
				vPlane[uvRow+mp] = srcRow[base+vOff]
			}
		}
	}
	return out, nil
}
