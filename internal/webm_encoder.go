package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// kDefaultChunkBufferSize is the initial size of the scratch buffer used to
// drain chunks out of a muxer, matching WebmEncoder::kDefaultChunkBufferSize.
const kDefaultChunkBufferSize = 100 * 1024

// WebmEncoderConfig bundles every knob WebmEncoder.Init needs: capture
// negotiation requests, codec tuning, and optional DASH output, mirroring
// client_encoder/webm_encoder.h's WebmEncoderConfig.
type WebmEncoderConfig struct {
	DisableAudio bool
	DisableVideo bool

	RequestedAudioConfig AudioConfig
	RequestedVideoConfig VideoConfig

	VorbisConfig VorbisConfig
	VpxConfig    VpxConfig

	ManualAudioConfig bool
	ManualVideoConfig bool

	DashEncode      bool
	DashName        string
	DashDir         string
	DashStartNumber string
}

// DefaultWebmEncoderConfig mirrors WebmEncoderConfig's C++ constructor.
func DefaultWebmEncoderConfig() WebmEncoderConfig {
	return WebmEncoderConfig{
		VorbisConfig:    DefaultVorbisConfig(),
		VpxConfig:       DefaultVpxConfig(),
		DashName:        "webmlive",
		DashDir:         "./",
		DashStartNumber: "1",
	}
}

type audioBufferPool = BufferPool[AudioBuffer, *AudioBuffer]
type videoFramePool = BufferPool[VideoFrame, *VideoFrame]

// WebmEncoder is the top-level orchestrator: it owns the buffer pools, the
// codec wrappers, the muxer(s), and the encoder goroutine that drains raw
// buffers, encodes them, muxes the result, and forwards ready chunks to a
// DataSink. Grounded on client_encoder/webm_encoder.h's WebmEncoder class;
// the C++ class's EncoderLoopFunc member-function-pointer dispatch becomes
// a plain switch over which streams are enabled, the idiomatic Go
// replacement for that indirection.
type WebmEncoder struct {
	config WebmEncoderConfig

	capture  CaptureSource
	dataSink DataSink

	videoPool *videoFramePool
	audioPool *audioBufferPool

	vpxEncoder    *VpxEncoder
	vorbisEncoder *VorbisEncoder

	sink       *ChunkWriter
	muxer      *LiveWebmMuxer
	sinkAud    *ChunkWriter
	muxerAud   *LiveWebmMuxer
	sinkVid    *ChunkWriter
	muxerVid   *LiveWebmMuxer
	dashWriter *DashWriter

	mu                sync.Mutex
	stop              bool
	encodedDurationMs int64
	timestampOffsetMs int64

	chunkCounter    int64
	chunkCounterAud int64
	chunkCounterVid int64

	// Scratch buffer chunks are drained into before fanout; grows on demand
	// and is reused across chunks. Touched only by the encoder goroutine.
	chunkBuffer []byte

	// Per-stream scratch buffers reused across encode passes. Once their
	// storage has been populated by the first pass, every pool Decommit
	// moves payloads by swap rather than clone — the steady-state
	// no-reallocation path the free/active pool split exists for. Touched
	// only by the encoder goroutine.
	rawAudio        *AudioBuffer
	compressedAudio *AudioBuffer
	rawVideo        *VideoFrame
	encodedVideo    *VideoFrame

	initialized bool
	wg          sync.WaitGroup
}

// NewWebmEncoder returns an uninitialized encoder.
func NewWebmEncoder() *WebmEncoder {
	return &WebmEncoder{}
}

// Init wires the pools, codecs, and muxer(s) from config, and binds capture
// and dataSink as the encoder's collaborators. Returns ErrInvalidArg if
// dataSink is nil, matching WebmEncoder::Init's NULL check.
func (e *WebmEncoder) Init(config WebmEncoderConfig, capture CaptureSource, dataSink DataSink) error {
	if dataSink == nil {
		return ErrInvalidArg
	}
	if config.DisableAudio && config.DisableVideo {
		return fmt.Errorf("both audio and video disabled")
	}
	e.config = config
	e.capture = capture
	e.dataSink = dataSink

	if !config.DisableAudio {
		e.audioPool = NewBufferPool[AudioBuffer, *AudioBuffer]()
		if err := e.audioPool.Init(true, DefaultBufferCount); err != nil {
			return err
		}
		e.vorbisEncoder = &VorbisEncoder{}
		// Scratch buffers reused across encode passes so pool Decommit hits
		// the swap path instead of cloning into a fresh allocation per pass.
		e.rawAudio = NewAudioBuffer()
		e.compressedAudio = NewAudioBuffer()
	}
	if !config.DisableVideo {
		// With audio enabled the video pool holds roughly 500ms of frames,
		// enough to keep capture fed while video waits its turn behind audio
		// in the interleaving scheduler.
		videoPoolSize := DefaultBufferCount
		if !config.DisableAudio && config.RequestedVideoConfig.FrameRate > 0 {
			videoPoolSize = int(config.RequestedVideoConfig.FrameRate / 2)
			if videoPoolSize < DefaultBufferCount {
				videoPoolSize = DefaultBufferCount
			}
		}
		e.videoPool = NewBufferPool[VideoFrame, *VideoFrame]()
		if err := e.videoPool.Init(false, videoPoolSize); err != nil {
			return err
		}
		e.vpxEncoder = &VpxEncoder{}
		e.rawVideo = NewVideoFrame()
		e.encodedVideo = NewVideoFrame()
	}
	e.chunkBuffer = make([]byte, kDefaultChunkBufferSize)

	if config.DashEncode {
		if !config.DisableAudio {
			e.sinkAud = NewChunkWriter()
			e.muxerAud = NewLiveWebmMuxer(e.sinkAud, int64(config.VpxConfig.KeyframeInterval))
			if err := e.muxerAud.Init(); err != nil {
				return fmt.Errorf("audio muxer init failed: %w", err)
			}
		}
		if !config.DisableVideo {
			e.sinkVid = NewChunkWriter()
			e.muxerVid = NewLiveWebmMuxer(e.sinkVid, int64(config.VpxConfig.KeyframeInterval))
			if err := e.muxerVid.Init(); err != nil {
				return fmt.Errorf("video muxer init failed: %w", err)
			}
		}
		e.dashWriter = &DashWriter{}
		if err := e.dashWriter.Init(config.DashName, config.DashStartNumber); err != nil {
			return err
		}
	} else {
		e.sink = NewChunkWriter()
		e.muxer = NewLiveWebmMuxer(e.sink, int64(config.VpxConfig.KeyframeInterval))
		if err := e.muxer.Init(); err != nil {
			return fmt.Errorf("muxer init failed: %w", err)
		}
	}

	e.initialized = true
	return nil
}

// OnSamplesReceived implements AudioSink: commits an incoming audio buffer
// to the pool. A full pool is not fatal for audio, since the audio pool
// always grows.
func (e *WebmEncoder) OnSamplesReceived(buf *AudioBuffer) error {
	if e.audioPool == nil {
		return nil
	}
	return e.audioPool.Commit(buf)
}

// OnVideoFrameReceived implements VideoSink: commits an incoming video
// frame to the pool. A full pool here is non-fatal — the frame is dropped
// (with a debug log line) and ErrPoolFull is returned, since the video pool
// never grows.
func (e *WebmEncoder) OnVideoFrameReceived(frame *VideoFrame) error {
	if e.videoPool == nil {
		return ErrPoolFull
	}
	if err := e.videoPool.Commit(frame); err != nil {
		DebugLog("WebmEncoder: dropped video frame, pool full\n")
		return err
	}
	return nil
}

// Run initializes the codecs and muxer track entries, starts capture, and
// starts the encoder goroutine, which runs the encode loop until Stop is
// called; Run itself returns once that goroutine is started.
func (e *WebmEncoder) Run() error {
	if !e.initialized {
		return fmt.Errorf("encoder not initialized")
	}

	videoConfig := e.config.RequestedVideoConfig
	audioConfig := e.config.RequestedAudioConfig
	if e.capture != nil {
		if e.videoPool != nil {
			videoConfig = e.capture.NegotiatedVideoConfig()
		}
		if e.audioPool != nil {
			audioConfig = e.capture.NegotiatedAudioConfig()
		}
	}

	if e.vpxEncoder != nil {
		if err := e.vpxEncoder.Init(e.config.VpxConfig, videoConfig.Width, videoConfig.Height); err != nil {
			return fmt.Errorf("video encoder init failed: %w", err)
		}
		if err := e.addVideoTrack(videoConfig); err != nil {
			return err
		}
	}
	if e.vorbisEncoder != nil {
		if err := e.vorbisEncoder.Init(audioConfig, e.config.VorbisConfig); err != nil {
			return fmt.Errorf("audio encoder init failed: %w", err)
		}
		if err := e.addAudioTrack(audioConfig); err != nil {
			return err
		}
	}
	if err := e.writeTracks(); err != nil {
		return err
	}

	if e.config.DashEncode {
		if err := e.writeDashManifest(videoConfig); err != nil {
			return fmt.Errorf("dash manifest write failed: %w", err)
		}
	}

	if e.capture != nil {
		if err := e.capture.Start(e, e); err != nil {
			return fmt.Errorf("capture start failed: %w", err)
		}
	}

	e.wg.Add(1)
	go e.encoderThread()
	return nil
}

// writeDashManifest renders the MPD from the negotiated video config and
// the encoder settings, and writes it to <dash_dir>/<dash_name>.mpd before
// any chunk is produced so a player can pick the stream up from the start.
func (e *WebmEncoder) writeDashManifest(videoConfig VideoConfig) error {
	dc := DefaultDashConfig()
	dc.ChunkDuration = e.config.VpxConfig.KeyframeInterval
	dc.Width = videoConfig.Width
	dc.Height = videoConfig.Height
	dc.FrameRate = int(videoConfig.FrameRate)
	dc.Bandwidth = e.config.VpxConfig.Bitrate * 1000
	dc.RepID = e.config.DashName
	if e.config.VpxConfig.Codec == VideoFormatVP9 {
		dc.Codecs = "vp9"
	}
	if n, err := strconv.Atoi(e.config.DashStartNumber); err == nil {
		dc.StartNumber = n
	}
	manifest, err := e.dashWriter.WriteManifest(dc)
	if err != nil {
		return err
	}
	path := filepath.Join(e.config.DashDir, e.config.DashName+".mpd")
	return os.WriteFile(path, []byte(manifest), 0o644)
}

func (e *WebmEncoder) addVideoTrack(config VideoConfig) error {
	vc := VideoConfig{Format: e.config.VpxConfig.Codec, Width: config.Width, Height: config.Height, Stride: config.Width}
	if e.muxer != nil {
		return e.muxer.AddVideoTrack(vc)
	}
	return e.muxerVid.AddVideoTrack(vc)
}

func (e *WebmEncoder) addAudioTrack(config AudioConfig) error {
	if e.muxer != nil {
		return e.muxer.AddAudioTrack(config, e.vorbisEncoder.IdentHeader(), e.vorbisEncoder.CommentsHeader(), e.vorbisEncoder.SetupHeader())
	}
	return e.muxerAud.AddAudioTrack(config, e.vorbisEncoder.IdentHeader(), e.vorbisEncoder.CommentsHeader(), e.vorbisEncoder.SetupHeader())
}

func (e *WebmEncoder) writeTracks() error {
	if e.muxer != nil {
		return e.muxer.WriteTracks()
	}
	if e.muxerAud != nil {
		if err := e.muxerAud.WriteTracks(); err != nil {
			return err
		}
	}
	if e.muxerVid != nil {
		if err := e.muxerVid.WriteTracks(); err != nil {
			return err
		}
	}
	return nil
}

// StopRequested reports whether Stop has been called, matching
// WebmEncoder::StopRequested's mutex-guarded flag check.
func (e *WebmEncoder) StopRequested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop
}

// encoderThread is EncoderThread: repeatedly runs whichever encode pass
// fits the enabled stream combination until StopRequested, then drains and
// finalizes every muxer before exiting.
func (e *WebmEncoder) encoderThread() {
	defer e.wg.Done()

	if err := e.waitForSamples(); err != nil {
		DebugLog("WebmEncoder: wait for samples failed: %v\n", err)
	}

	for !e.StopRequested() {
		if e.capture != nil && !e.capture.Healthy() {
			DebugLog("WebmEncoder: capture source unhealthy, stopping\n")
			break
		}
		var err error
		switch {
		case e.config.DashEncode:
			err = e.dashEncode()
		case e.vpxEncoder != nil && e.vorbisEncoder != nil:
			err = e.avEncode()
		case e.vpxEncoder != nil:
			err = e.encodeVideoFrame()
		case e.vorbisEncoder != nil:
			err = e.encodeAudioOnly()
		}
		if err != nil && err != ErrNoSamples && err != ErrPoolEmpty && err != ErrDropped {
			DebugLog("WebmEncoder: encode pass error: %v\n", err)
		}
		if err == ErrNoSamples || err == ErrPoolEmpty {
			time.Sleep(time.Millisecond)
		}
	}

	e.finalizeAll()
}

// waitForSamples peeks both pools' oldest timestamps and, if either starts
// negative, computes a single offset applied to every subsequent buffer.
// Fixed once; never recomputed.
func (e *WebmEncoder) waitForSamples() error {
	const maxWaitIterations = 2000
	var audioTS, videoTS int64
	haveAudio, haveVideo := e.audioPool == nil, e.videoPool == nil

	for i := 0; i < maxWaitIterations && (!haveAudio || !haveVideo); i++ {
		if !haveAudio {
			if ts, err := ActiveTimestamp[AudioBuffer, *AudioBuffer](e.audioPool); err == nil {
				audioTS = ts
				haveAudio = true
			}
		}
		if !haveVideo {
			if ts, err := ActiveTimestamp[VideoFrame, *VideoFrame](e.videoPool); err == nil {
				videoTS = ts
				haveVideo = true
			}
		}
		if !haveAudio || !haveVideo {
			time.Sleep(time.Millisecond)
		}
	}

	offset := int64(0)
	if audioTS < 0 && -audioTS > offset {
		offset = -audioTS
	}
	if videoTS < 0 && -videoTS > offset {
		offset = -videoTS
	}
	e.mu.Lock()
	e.timestampOffsetMs = offset
	e.mu.Unlock()
	return nil
}

// applyOffset adds the fixed timestamp_offset to ts, per §4.10.
func (e *WebmEncoder) applyOffset(ts int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ts + e.timestampOffsetMs
}

// encodeAudioOnly drives one raw audio buffer through the analyzer, then
// writes every compressed packet it can produce before yielding the pass.
func (e *WebmEncoder) encodeAudioOnly() error {
	if err := e.feedAudioStep(); err != nil {
		return err
	}
	for {
		// The muxer copies block payloads as it frames them, so one scratch
		// packet can be reused for every read.
		err := e.vorbisEncoder.ReadCompressedAudio(e.compressedAudio)
		if err == ErrNoSamples {
			break
		}
		if err != nil {
			return err
		}
		if err := e.muxer.WriteAudioBuffer(e.compressedAudio); err != nil {
			return err
		}
		e.addEncodedDuration(e.compressedAudio.Duration())
	}
	return e.writeChunkToDataSink(e.sink, "")
}

func (e *WebmEncoder) encodeVideoFrame() error {
	if err := e.encodeVideoFrameStep(e.muxer); err != nil {
		return err
	}
	return e.writeChunkToDataSink(e.sink, "")
}

// encodeVideoFrameStep decommits one raw frame into the reused scratch
// frame, encodes it, and muxes the result into muxer. Chunk draining is
// the caller's business.
func (e *WebmEncoder) encodeVideoFrameStep(muxer *LiveWebmMuxer) error {
	raw := e.rawVideo
	if err := e.videoPool.Decommit(raw); err != nil {
		return err
	}
	raw.SetTimestamp(e.applyOffset(raw.Timestamp()))

	encoded := e.encodedVideo
	if err := e.vpxEncoder.EncodeFrame(raw, encoded); err != nil {
		return err
	}
	if err := muxer.WriteVideoFrame(encoded); err != nil {
		return err
	}
	e.addEncodedDuration(encoded.Duration())
	return nil
}

// feedAudioStep moves one raw audio buffer from the pool into the analyzer
// through the reused scratch buffer.
func (e *WebmEncoder) feedAudioStep() error {
	raw := e.rawAudio
	if err := e.audioPool.Decommit(raw); err != nil {
		return err
	}
	raw.SetTimestamp(e.applyOffset(raw.Timestamp()))
	return e.vorbisEncoder.Encode(raw)
}

// avEncode is one pass of the interleaved A+V strategy. Per-track the muxer
// must see monotonic timestamps, and a cluster's first block should be the
// video keyframe of its instant, so audio that leads the next video frame is
// written first, audio that trails it is held back until the video frame has
// gone in, and video only goes in when it wouldn't jump ahead of audio
// packets still due out of the analyzer.
func (e *WebmEncoder) avEncode() error {
	idle := true
	if err := e.feedAudioStep(); err == nil {
		idle = false
	} else if err != ErrPoolEmpty {
		return err
	}

	e.dropLateVideoFrames()

	videoTS, haveVideo := e.peekVideoTimestamp()
	if !haveVideo {
		videoTS = e.vpxEncoder.LastTimestampMs()
	}

	// The scratch packet doubles as the held-back audio: once a packet
	// trails the pending video timestamp nothing reads another packet until
	// it has been written after the video step.
	bufferedAudio := false
	for {
		err := e.vorbisEncoder.ReadCompressedAudio(e.compressedAudio)
		if err == ErrNoSamples {
			break
		}
		if err != nil {
			return err
		}
		if e.compressedAudio.Timestamp() > videoTS {
			bufferedAudio = true
			break
		}
		if err := e.muxer.WriteAudioBuffer(e.compressedAudio); err != nil {
			return err
		}
		e.addEncodedDuration(e.compressedAudio.Duration())
		idle = false
	}

	if haveVideo && videoTS <= e.vorbisEncoder.NextEstimatedTimestamp() {
		err := e.encodeVideoFrameStep(e.muxer)
		if err == nil {
			idle = false
		} else if err != ErrPoolEmpty && err != ErrDropped {
			return err
		}
	}

	if bufferedAudio {
		if err := e.muxer.WriteAudioBuffer(e.compressedAudio); err != nil {
			return err
		}
		e.addEncodedDuration(e.compressedAudio.Duration())
		idle = false
	}
	if idle {
		return ErrNoSamples
	}
	return e.writeChunkToDataSink(e.sink, "")
}

// dropLateVideoFrames discards queued frames whose timestamp the muxer has
// already moved past; they could never be written monotonically, and
// dropping them bounds queue growth when the encoder falls behind.
func (e *WebmEncoder) dropLateVideoFrames() {
	for {
		ts, ok := e.peekVideoTimestamp()
		if !ok || ts >= e.muxer.CurrentTime() {
			return
		}
		e.videoPool.DropActive()
		DebugLog("WebmEncoder: dropped late video frame at %dms (muxer at %dms)\n", ts, e.muxer.CurrentTime())
	}
}

func (e *WebmEncoder) peekVideoTimestamp() (int64, bool) {
	if e.videoPool == nil {
		return 0, false
	}
	ts, err := ActiveTimestamp[VideoFrame, *VideoFrame](e.videoPool)
	if err != nil {
		return 0, false
	}
	return e.applyOffset(ts), true
}

// dashEncode drives the two independent audio-only/video-only muxers used
// by DASH output, each fanning its chunks to its own chunk-id stream.
func (e *WebmEncoder) dashEncode() error {
	idle := true
	if e.muxerVid != nil {
		err := e.encodeVideoFrameDash()
		if err == nil {
			idle = false
		} else if err != ErrPoolEmpty && err != ErrDropped {
			return err
		}
	}
	if e.muxerAud != nil {
		err := e.encodeAudioBufferDash()
		if err == nil {
			idle = false
		} else if err != ErrPoolEmpty {
			return err
		}
	}
	if idle {
		return ErrNoSamples
	}
	return nil
}

func (e *WebmEncoder) encodeVideoFrameDash() error {
	if err := e.encodeVideoFrameStep(e.muxerVid); err != nil {
		return err
	}
	return e.writeChunkToDataSink(e.sinkVid, "video")
}

func (e *WebmEncoder) encodeAudioBufferDash() error {
	if err := e.feedAudioStep(); err != nil {
		return err
	}
	for {
		err := e.vorbisEncoder.ReadCompressedAudio(e.compressedAudio)
		if err == ErrNoSamples {
			break
		}
		if err != nil {
			return err
		}
		if err := e.muxerAud.WriteAudioBuffer(e.compressedAudio); err != nil {
			return err
		}
		e.addEncodedDuration(e.compressedAudio.Duration())
	}
	return e.writeChunkToDataSink(e.sinkAud, "audio")
}

// writeChunkToDataSink drains sink's ready chunk, if any, and forwards
// it to the data sink under a chunk id derived from streamKind ("" for the
// single combined muxer, "audio"/"video" for DASH's split muxers).
func (e *WebmEncoder) writeChunkToDataSink(sink *ChunkWriter, streamKind string) error {
	length, ready := sink.ChunkReady()
	if !ready {
		return nil
	}
	// A sink that isn't ready keeps the chunk buffered in the ChunkWriter;
	// it ships on a later pass once the sink has caught up.
	if !e.dataSink.Ready() {
		return nil
	}
	if length > len(e.chunkBuffer) {
		e.chunkBuffer = make([]byte, length)
	}
	n, err := sink.ReadChunk(e.chunkBuffer[:length])
	if err != nil {
		return err
	}
	id := e.nextChunkID(streamKind)
	if err := e.dataSink.WriteData(id, e.chunkBuffer[:n]); err != nil {
		return fmt.Errorf("data sink write failed: %w", err)
	}
	return nil
}

func (e *WebmEncoder) nextChunkID(streamKind string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch streamKind {
	case "audio":
		id := fmt.Sprintf("%s_audio_%d", e.config.DashName, e.chunkCounterAud)
		e.chunkCounterAud++
		return id
	case "video":
		id := fmt.Sprintf("%s_video_%d", e.config.DashName, e.chunkCounterVid)
		e.chunkCounterVid++
		return id
	default:
		id := fmt.Sprintf("chunk_%d", e.chunkCounter)
		e.chunkCounter++
		return id
	}
}

func (e *WebmEncoder) addEncodedDuration(ms int64) {
	e.mu.Lock()
	e.encodedDurationMs += ms
	e.mu.Unlock()
}

// EncodedDuration returns the cumulative encoded duration in milliseconds.
func (e *WebmEncoder) EncodedDuration() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodedDurationMs
}

func (e *WebmEncoder) finalizeAll() {
	if e.muxer != nil {
		e.muxer.Finalize()
		e.waitForSinkReady()
		e.writeChunkToDataSink(e.sink, "")
	}
	if e.muxerAud != nil {
		e.muxerAud.Finalize()
		e.waitForSinkReady()
		e.writeChunkToDataSink(e.sinkAud, "audio")
	}
	if e.muxerVid != nil {
		e.muxerVid.Finalize()
		e.waitForSinkReady()
		e.writeChunkToDataSink(e.sinkVid, "video")
	}
	if e.vpxEncoder != nil {
		e.vpxEncoder.Close()
	}
	if e.vorbisEncoder != nil {
		e.vorbisEncoder.Close()
	}
}

// waitForSinkReady spins (1ms sleeps, bounded) until the data sink reports
// Ready, so the final chunk isn't lost to a sink that's momentarily busy.
func (e *WebmEncoder) waitForSinkReady() {
	const maxWait = 5 * time.Second
	deadline := time.Now().Add(maxWait)
	for !e.dataSink.Ready() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

// Stop requests the encoder thread to finish its current pass, drain and
// finalize every muxer, and exit. Idempotent: a second call is a no-op,
// repeated Stop calls are safe.
func (e *WebmEncoder) Stop() {
	e.mu.Lock()
	alreadyStopped := e.stop
	e.stop = true
	e.mu.Unlock()
	if alreadyStopped {
		return
	}
	if e.capture != nil {
		e.capture.Stop()
	}
	e.wg.Wait()
}
