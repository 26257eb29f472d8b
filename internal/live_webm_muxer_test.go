package internal

import (
	"bytes"
	"testing"
)

var ebmlHeaderMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
var clusterMagic = []byte{0x1F, 0x43, 0xB6, 0x75}

func newVP8Frame(t *testing.T, keyframe bool, tsMs, durMs int64, payload []byte) *VideoFrame {
	t.Helper()
	f := NewVideoFrame()
	cfg := VideoConfig{Format: VideoFormatVP8, Width: 640, Height: 480, Stride: 640}
	if err := f.Init(cfg, keyframe, tsMs, durMs, payload); err != nil {
		t.Fatalf("frame init: %v", err)
	}
	return f
}

func newVorbisPacket(t *testing.T, tsMs, durMs int64, payload []byte) *AudioBuffer {
	t.Helper()
	b := NewAudioBuffer()
	cfg := AudioConfig{Format: AudioFormatVorbis, Channels: 2, SampleRate: 44100}
	if err := b.Init(cfg, tsMs, durMs, payload); err != nil {
		t.Fatalf("buffer init: %v", err)
	}
	return b
}

func initVideoMuxer(t *testing.T) (*LiveWebmMuxer, *ChunkWriter) {
	t.Helper()
	sink := NewChunkWriter()
	m := NewLiveWebmMuxer(sink, 1000)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.AddVideoTrack(VideoConfig{Format: VideoFormatVP8, Width: 640, Height: 480}); err != nil {
		t.Fatalf("AddVideoTrack: %v", err)
	}
	if err := m.WriteTracks(); err != nil {
		t.Fatalf("WriteTracks: %v", err)
	}
	return m, sink
}

func readReadyChunk(t *testing.T, sink *ChunkWriter) []byte {
	t.Helper()
	length, ready := sink.ChunkReady()
	if !ready {
		t.Fatalf("no chunk ready")
	}
	out := make([]byte, length)
	n, err := sink.ReadChunk(out)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	return out[:n]
}

func TestMuxerPreambleIsFirstChunk(t *testing.T) {
	_, sink := initVideoMuxer(t)

	preamble := readReadyChunk(t, sink)
	if !bytes.HasPrefix(preamble, ebmlHeaderMagic) {
		t.Fatalf("first chunk does not begin with an EBML header: % x", preamble[:4])
	}
	if !bytes.Contains(preamble, []byte(writingAppString)) {
		t.Fatalf("preamble missing writing app string")
	}
	if !bytes.Contains(preamble, []byte("V_VP8")) {
		t.Fatalf("preamble missing video codec id")
	}
}

func TestMuxerClusterChunksBeginWithClusterElement(t *testing.T) {
	m, sink := initVideoMuxer(t)
	readReadyChunk(t, sink) // preamble

	if err := m.WriteVideoFrame(newVP8Frame(t, true, 0, 33, []byte{1, 2, 3})); err != nil {
		t.Fatalf("WriteVideoFrame: %v", err)
	}
	if err := m.WriteVideoFrame(newVP8Frame(t, false, 33, 33, []byte{4, 5})); err != nil {
		t.Fatalf("WriteVideoFrame delta: %v", err)
	}
	// Second keyframe opens a new cluster, completing the first.
	if err := m.WriteVideoFrame(newVP8Frame(t, true, 1000, 33, []byte{6})); err != nil {
		t.Fatalf("WriteVideoFrame kf2: %v", err)
	}

	cluster := readReadyChunk(t, sink)
	if !bytes.HasPrefix(cluster, clusterMagic) {
		t.Fatalf("cluster chunk does not begin with a Cluster element: % x", cluster[:4])
	}
	if !bytes.Contains(cluster, []byte{1, 2, 3}) || !bytes.Contains(cluster, []byte{4, 5}) {
		t.Fatalf("cluster chunk missing frame payloads")
	}
}

func TestMuxerFinalizeShipsTrailingCluster(t *testing.T) {
	m, sink := initVideoMuxer(t)
	readReadyChunk(t, sink)

	if err := m.WriteVideoFrame(newVP8Frame(t, true, 0, 33, []byte{7})); err != nil {
		t.Fatalf("WriteVideoFrame: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	final := readReadyChunk(t, sink)
	if !bytes.HasPrefix(final, clusterMagic) {
		t.Fatalf("final chunk does not begin with a Cluster element")
	}
	// Finalize twice is a no-op.
	if err := m.Finalize(); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
}

func TestMuxerStateMachine(t *testing.T) {
	sink := NewChunkWriter()
	m := NewLiveWebmMuxer(sink, 1000)

	if err := m.WriteVideoFrame(newVP8Frame(t, true, 0, 33, []byte{1})); err != ErrNotInitialized {
		t.Fatalf("write before init: got %v, want ErrNotInitialized", err)
	}
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.Init(); err != ErrAlreadyInitialized {
		t.Fatalf("second Init: got %v, want ErrAlreadyInitialized", err)
	}
	if err := m.AddVideoTrack(VideoConfig{Format: VideoFormatVP8, Width: 640, Height: 480}); err != nil {
		t.Fatalf("AddVideoTrack: %v", err)
	}
	if err := m.AddVideoTrack(VideoConfig{Format: VideoFormatVP8, Width: 640, Height: 480}); err != ErrVideoTrackExists {
		t.Fatalf("second AddVideoTrack: got %v, want ErrVideoTrackExists", err)
	}
	if err := m.WriteTracks(); err != nil {
		t.Fatalf("WriteTracks: %v", err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := m.WriteVideoFrame(newVP8Frame(t, true, 0, 33, []byte{1})); err != ErrNotInitialized {
		t.Fatalf("write after finalize: got %v, want ErrNotInitialized", err)
	}
}

func TestMuxerRejectsRawVideoFrame(t *testing.T) {
	m, sink := initVideoMuxer(t)
	readReadyChunk(t, sink)

	raw := NewVideoFrame()
	cfg := VideoConfig{Format: VideoFormatI420, Width: 2, Height: 2, Stride: 2}
	if err := raw.Init(cfg, true, 0, 33, make([]byte, 6)); err != nil {
		t.Fatalf("raw frame init: %v", err)
	}
	if err := m.WriteVideoFrame(raw); err == nil {
		t.Fatalf("expected error writing uncompressed frame")
	}
}

func TestMuxerAudioTrackCodecPrivate(t *testing.T) {
	sink := NewChunkWriter()
	m := NewLiveWebmMuxer(sink, 1000)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ident := []byte{0x01, 'v', 'o', 'r', 'b', 'i', 's', 0xAA}
	comment := []byte{0x03, 'v', 'o', 'r', 'b', 'i', 's'}
	setup := []byte{0x05, 'v', 'o', 'r', 'b', 'i', 's', 0xBB, 0xCC}
	cfg := AudioConfig{Format: AudioFormatPCM, Channels: 2, SampleRate: 44100}
	if err := m.AddAudioTrack(cfg, ident, comment, setup); err != nil {
		t.Fatalf("AddAudioTrack: %v", err)
	}
	if err := m.AddAudioTrack(cfg, ident, comment, setup); err == nil {
		t.Fatalf("expected error on second AddAudioTrack")
	}
	if err := m.WriteTracks(); err != nil {
		t.Fatalf("WriteTracks: %v", err)
	}

	preamble := readReadyChunk(t, sink)
	// Xiph lacing descriptor: packet count, then the two leading header
	// lengths, then the three headers back to back.
	private := append([]byte{2, byte(len(ident)), byte(len(comment))}, ident...)
	private = append(private, comment...)
	private = append(private, setup...)
	if !bytes.Contains(preamble, private) {
		t.Fatalf("preamble missing assembled CodecPrivate")
	}
	if !bytes.Contains(preamble, []byte("A_VORBIS")) {
		t.Fatalf("preamble missing audio codec id")
	}
}

func TestMuxerCurrentTimeTracksMaxWrittenTimestamp(t *testing.T) {
	m, sink := initVideoMuxer(t)
	readReadyChunk(t, sink)

	if got := m.CurrentTime(); got != 0 {
		t.Fatalf("CurrentTime before writes = %d", got)
	}
	m.WriteVideoFrame(newVP8Frame(t, true, 0, 33, []byte{1}))
	m.WriteVideoFrame(newVP8Frame(t, false, 66, 33, []byte{2}))
	if got := m.CurrentTime(); got != 66 {
		t.Fatalf("CurrentTime = %d, want 66", got)
	}
}

func TestMuxerAudioRidesVideoClusters(t *testing.T) {
	sink := NewChunkWriter()
	m := NewLiveWebmMuxer(sink, 1000)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.AddVideoTrack(VideoConfig{Format: VideoFormatVP8, Width: 640, Height: 480}); err != nil {
		t.Fatalf("AddVideoTrack: %v", err)
	}
	if err := m.AddAudioTrack(AudioConfig{Format: AudioFormatPCM, Channels: 2, SampleRate: 44100},
		[]byte{1}, []byte{3}, []byte{5}); err != nil {
		t.Fatalf("AddAudioTrack: %v", err)
	}
	if err := m.WriteTracks(); err != nil {
		t.Fatalf("WriteTracks: %v", err)
	}
	readReadyChunk(t, sink)

	if err := m.WriteVideoFrame(newVP8Frame(t, true, 0, 33, []byte{1, 1})); err != nil {
		t.Fatalf("video write: %v", err)
	}
	before := sink.BytesBuffered()
	if err := m.WriteAudioBuffer(newVorbisPacket(t, 10, 23, []byte{2, 2})); err != nil {
		t.Fatalf("audio write: %v", err)
	}
	if sink.BytesBuffered() <= before {
		t.Fatalf("audio block not appended")
	}
	// No new chunk boundary: audio inside the open cluster's span does not
	// open a new cluster.
	if _, ready := sink.ChunkReady(); ready {
		t.Fatalf("audio write should not complete a chunk")
	}
}
