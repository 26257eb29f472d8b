package internal

import (
	"fmt"
	"unsafe"

	"github.com/Azunyan1111/libvpx-go/vpx"
)

// Control ids from libvpx's vp8e_enc_control_id enum and the force-keyframe
// frame flag from vpx_encoder.h, stated here numerically so the sentinel
// checks below read against the same names the C API uses.
const (
	vp8eSetCPUUsed          = 13
	vp8eSetNoiseSensitivity = 15
	vp8eSetStaticThreshold  = 17
	vp8eSetTokenPartitions  = 18

	eflagForceKF = 0x1
)

// VpxEncoder wraps libvpx-go for VP8/VP9 encoding: one-pass CBR rate
// control, optional tunables applied only when not UseDefault, decimation,
// and forced keyframes on interval expiry.
type VpxEncoder struct {
	ctx *vpx.CodecCtx
	img *vpx.Image

	config VpxConfig
	width  int
	height int

	framesIn        int64
	framesOut       int64
	lastKeyframeMs  int64
	lastTimestampMs int64
}

// Init builds the rate-control configuration and initializes libvpx.
func (e *VpxEncoder) Init(config VpxConfig, width, height int) error {
	ctx := vpx.NewCodecCtx()
	if ctx == nil {
		return fmt.Errorf("failed to create codec context")
	}

	var iface *vpx.CodecIface
	if config.Codec == VideoFormatVP9 {
		iface = vpx.EncoderIfaceVP9()
	} else {
		iface = vpx.EncoderIfaceVP8()
	}
	if iface == nil {
		vpx.CodecDestroy(ctx)
		return fmt.Errorf("failed to get VPx encoder interface")
	}

	cfg := &vpx.CodecEncCfg{}
	if err := vpx.Error(vpx.CodecEncConfigDefault(iface, cfg, 0)); err != nil {
		vpx.CodecDestroy(ctx)
		return fmt.Errorf("failed to get default encoder config: %w", err)
	}
	cfg.Deref()

	cfg.GW = uint32(width)
	cfg.GH = uint32(height)
	cfg.GTimebase = vpx.Rational{Num: 1, Den: kTimebase}
	cfg.RcTargetBitrate = uint32(config.Bitrate)
	cfg.GPass = vpx.RcOnePass
	cfg.RcEndUsage = vpx.Cbr
	cfg.KfMode = vpx.KfAuto
	cfg.KfMaxDist = uint32(config.KeyframeInterval)
	cfg.GLagInFrames = 0
	cfg.RcMinQuantizer = uint32(config.MinQuantizer)
	cfg.RcMaxQuantizer = uint32(config.MaxQuantizer)
	cfg.GProfile = 0

	if config.ThreadCount != UseDefault {
		cfg.GThreads = uint32(config.ThreadCount)
	}
	if config.Undershoot != UseDefault {
		cfg.RcUndershootPct = uint32(config.Undershoot)
	}

	if err := vpx.Error(vpx.CodecEncInitVer(ctx, iface, cfg, 0, vpx.EncoderABIVersion)); err != nil {
		vpx.CodecDestroy(ctx)
		return fmt.Errorf("failed to initialize encoder: %w", err)
	}

	if config.Speed != UseDefault {
		codecControlWarn("cpu-used", vpx.Error(vpx.CodecControl(ctx, vp8eSetCPUUsed, config.Speed)))
	}
	if config.StaticThreshold != UseDefault {
		codecControlWarn("static-threshold", vpx.Error(vpx.CodecControl(ctx, vp8eSetStaticThreshold, config.StaticThreshold)))
	}
	if config.TokenPartitions != UseDefault {
		codecControlWarn("token-partitions", vpx.Error(vpx.CodecControl(ctx, vp8eSetTokenPartitions, config.TokenPartitions)))
	}
	if config.NoiseSensitivity != UseDefault {
		codecControlWarn("noise-sensitivity", vpx.Error(vpx.CodecControl(ctx, vp8eSetNoiseSensitivity, config.NoiseSensitivity)))
	}

	img := vpx.ImageAlloc(nil, vpx.ImageFormatI420, uint32(width), uint32(height), 1)
	if img == nil {
		vpx.CodecDestroy(ctx)
		return fmt.Errorf("failed to allocate image")
	}
	img.Deref()

	e.ctx = ctx
	e.img = img
	e.config = config
	e.width = width
	e.height = height

	DebugLog("VpxEncoder initialized: %dx%d, codec=%v, bitrate=%dkbps, kf_interval=%dms\n",
		width, height, config.Codec, config.Bitrate, config.KeyframeInterval)
	return nil
}

// codecControlWarn logs a failed optional control rather than propagating
// it, since a single unsupported control shouldn't be fatal to the encode
// session. Callers gate each control on its UseDefault sentinel, so the
// control call itself is suppressed entirely for defaulted knobs.
func codecControlWarn(name string, err error) {
	if err != nil {
		DebugLog("VpxEncoder: %s control failed: %v\n", name, err)
	}
}

// EncodeFrame encodes one raw I420/YV12 frame. Returns ErrDropped when
// decimation causes this frame to be skipped.
func (e *VpxEncoder) EncodeFrame(raw *VideoFrame, out *VideoFrame) error {
	if raw.Format() != VideoFormatI420 && raw.Format() != VideoFormatYV12 {
		return fmt.Errorf("unsupported raw frame format for vpx encode")
	}
	if len(raw.Buffer()) == 0 {
		return ErrInvalidArg
	}

	e.framesIn++
	if e.config.Decimate > 1 && e.framesIn%int64(e.config.Decimate) != 0 {
		return ErrDropped
	}

	forceKF := raw.Timestamp()-e.lastKeyframeMs > int64(e.config.KeyframeInterval)

	e.copyPlanesIn(raw.Buffer())

	// The timebase is 1/1000, so pts and duration are the frame's
	// millisecond timestamp and duration as-is.
	var encErr error
	if forceKF {
		encErr = vpx.Error(vpx.CodecEncode(e.ctx, e.img, vpx.CodecPts(raw.Timestamp()), uint(raw.Duration()), eflagForceKF, vpx.DlRealtime))
	} else {
		encErr = vpx.Error(vpx.CodecEncode(e.ctx, e.img, vpx.CodecPts(raw.Timestamp()), uint(raw.Duration()), 0, vpx.DlRealtime))
	}
	if encErr != nil {
		detail := vpx.CodecErrorDetail(e.ctx)
		return fmt.Errorf("vpx encode failed: %w (detail: %s)", encErr, detail)
	}

	var iter vpx.CodecIter
	pkt := vpx.CodecGetCxData(e.ctx, &iter)
	if pkt == nil || pkt.Kind != vpx.CodecCxFramePkt {
		return ErrNoSamples
	}
	pkt.Deref()

	data := pkt.GetFrameData()
	keyframe := pkt.IsKeyframe()

	format := VideoFormatVP8
	if e.config.Codec == VideoFormatVP9 {
		format = VideoFormatVP9
	}
	cfg := VideoConfig{Format: format, Width: e.width, Height: e.height, Stride: e.width}
	if err := out.Init(cfg, keyframe, raw.Timestamp(), raw.Duration(), data); err != nil {
		return err
	}

	if keyframe {
		e.lastKeyframeMs = raw.Timestamp()
	}
	e.lastTimestampMs = raw.Timestamp()
	e.framesOut++
	return nil
}

// copyPlanesIn writes a tightly packed I420 buffer into the codec's image
// planes, honoring per-plane stride.
func (e *VpxEncoder) copyPlanesIn(i420 []byte) {
	w, h := e.width, e.height
	yStride := int(e.img.Stride[vpx.PlaneY])
	uStride := int(e.img.Stride[vpx.PlaneU])
	vStride := int(e.img.Stride[vpx.PlaneV])

	yPlane := (*(*[1 << 30]byte)(unsafe.Pointer(e.img.Planes[vpx.PlaneY])))[: yStride*h : yStride*h]
	uPlane := (*(*[1 << 30]byte)(unsafe.Pointer(e.img.Planes[vpx.PlaneU])))[: uStride*h/2 : uStride*h/2]
	vPlane := (*(*[1 << 30]byte)(unsafe.Pointer(e.img.Planes[vpx.PlaneV])))[: vStride*h/2 : vStride*h/2]

	ySize := w * h
	uvSize := w * h / 4
	srcY := i420[:ySize]
	srcU := i420[ySize : ySize+uvSize]
	srcV := i420[ySize+uvSize : ySize+2*uvSize]

	for row := 0; row < h; row++ {
		copy(yPlane[row*yStride:row*yStride+w], srcY[row*w:(row+1)*w])
	}
	uvH, uvW := h/2, w/2
	for row := 0; row < uvH; row++ {
		copy(uPlane[row*uStride:row*uStride+uvW], srcU[row*uvW:(row+1)*uvW])
		copy(vPlane[row*vStride:row*vStride+uvW], srcV[row*uvW:(row+1)*uvW])
	}
}

func (e *VpxEncoder) FramesIn() int64        { return e.framesIn }
func (e *VpxEncoder) FramesOut() int64       { return e.framesOut }
func (e *VpxEncoder) LastKeyframeMs() int64  { return e.lastKeyframeMs }
func (e *VpxEncoder) LastTimestampMs() int64 { return e.lastTimestampMs }

// Close releases the codec context and scratch image.
func (e *VpxEncoder) Close() {
	if e.img != nil {
		vpx.ImageFree(e.img)
		e.img = nil
	}
	if e.ctx != nil {
		vpx.CodecDestroy(e.ctx)
		e.ctx = nil
	}
}
