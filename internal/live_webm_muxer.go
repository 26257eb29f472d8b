package internal

import (
	"bytes"
	"fmt"
)

// muxerState tracks LiveWebmMuxer's lifecycle: Uninit -> Init (header
// written) -> writing frames -> Finalized.
type muxerState int

const (
	muxerUninit muxerState = iota
	muxerInit
	muxerFinalized
)

const (
	videoTrackNumber uint64 = 1
	audioTrackNumber uint64 = 2
)

// LiveWebmMuxer is a from-scratch EBML/Matroska writer specialized for live
// streaming: segment and cluster sizes are written as EBML "unknown" so a
// receiver can parse the stream without ever knowing its final length.
// Cluster boundaries are reported to a ChunkWriter sink so the caller can
// poll for shippable chunks instead of the muxer owning an io.Writer
// destination directly.
//
// Frames arrive pre-tagged with a keyframe flag from VpxEncoder, so there's
// no RTP payload sniffing or SPS/PPS prepending here — just EBML framing.
type LiveWebmMuxer struct {
	state muxerState
	sink  *ChunkWriter

	maxClusterDurationMs int64

	hasVideoTrack bool
	hasAudioTrack bool
	videoConfig   VideoConfig
	audioConfig   AudioConfig
	vorbisIdent   []byte
	vorbisComment []byte
	vorbisSetup   []byte

	clusterStartMs int64
	inCluster      bool
	currentTimeMs  int64
}

// NewLiveWebmMuxer returns a muxer that will stamp a new chunk boundary
// whenever a cluster's span would exceed maxClusterDurationMs.
func NewLiveWebmMuxer(sink *ChunkWriter, maxClusterDurationMs int64) *LiveWebmMuxer {
	return &LiveWebmMuxer{sink: sink, maxClusterDurationMs: maxClusterDurationMs}
}

// Init writes the EBML header, the (unknown-size) Segment header, and the
// Info element. The preamble is stamped as its own chunk later, by
// WriteTracks.
func (m *LiveWebmMuxer) Init() error {
	if m.state != muxerUninit {
		return ErrAlreadyInitialized
	}
	if err := m.writeEBMLHeader(); err != nil {
		return fmt.Errorf("failed to write EBML header: %w", err)
	}
	if err := m.writeSegmentHeader(); err != nil {
		return fmt.Errorf("failed to write segment header: %w", err)
	}
	if err := m.writeInfo(); err != nil {
		return fmt.Errorf("failed to write info: %w", err)
	}
	m.state = muxerInit
	return nil
}

// AddVideoTrack registers the video track. Must be called exactly once,
// before WriteTracks/WriteVideoFrame; the Tracks element itself isn't
// written until WriteTracks commits to the stream's track layout, matching the single-pass nature of a live muxer
// that can't rewind to patch in a track added late.
func (m *LiveWebmMuxer) AddVideoTrack(config VideoConfig) error {
	if m.hasVideoTrack {
		return ErrVideoTrackExists
	}
	m.videoConfig = config
	m.hasVideoTrack = true
	return nil
}

// AddAudioTrack registers the audio track with its three opaque Vorbis
// codec-private header blobs, embedded verbatim in CodecPrivate.
// Codec-private is always required; there is no header-less overload.
func (m *LiveWebmMuxer) AddAudioTrack(config AudioConfig, ident, comment, setup []byte) error {
	if m.hasAudioTrack {
		return fmt.Errorf("audio track already added")
	}
	m.audioConfig = config
	m.vorbisIdent = ident
	m.vorbisComment = comment
	m.vorbisSetup = setup
	m.hasAudioTrack = true
	return nil
}

// WriteTracks emits the Tracks element for every track added so far. The
// orchestrator calls this once, after issuing all AddXxxTrack calls and
// before the first WriteVideoFrame/WriteAudioBuffer.
func (m *LiveWebmMuxer) WriteTracks() error {
	if m.state != muxerInit {
		return ErrNotInitialized
	}
	tracks := &bytes.Buffer{}

	if m.hasVideoTrack {
		entry := &bytes.Buffer{}
		writeElement(entry, idTrackNumber, encodeUint(videoTrackNumber))
		writeElement(entry, idTrackUID, encodeUint(videoTrackNumber))
		writeElement(entry, idTrackType, []byte{trackTypeVideo})

		codecID := "V_VP8"
		if m.videoConfig.Format == VideoFormatVP9 {
			codecID = "V_VP9"
		}
		writeElement(entry, idCodecID, []byte(codecID))

		video := &bytes.Buffer{}
		writeElement(video, idPixelWidth, encodeUint(uint64(m.videoConfig.Width)))
		writeElement(video, idPixelHeight, encodeUint(uint64(m.videoConfig.Height)))
		writeElement(entry, idVideo, video.Bytes())

		writeElement(tracks, idTrackEntry, entry.Bytes())
	}

	if m.hasAudioTrack {
		entry := &bytes.Buffer{}
		writeElement(entry, idTrackNumber, encodeUint(audioTrackNumber))
		writeElement(entry, idTrackUID, encodeUint(audioTrackNumber))
		writeElement(entry, idTrackType, []byte{trackTypeAudio})
		writeElement(entry, idCodecID, []byte("A_VORBIS"))

		private := make([]byte, 0, len(m.vorbisIdent)+len(m.vorbisComment)+len(m.vorbisSetup)+3)
		private = append(private, byte(2)) // lacing descriptor: 2 headers precede the last
		private = append(private, byte(len(m.vorbisIdent)))
		private = append(private, byte(len(m.vorbisComment)))
		private = append(private, m.vorbisIdent...)
		private = append(private, m.vorbisComment...)
		private = append(private, m.vorbisSetup...)
		writeElement(entry, idCodecPrivate, private)

		audio := &bytes.Buffer{}
		writeElement(audio, idSamplingFrequency, encodeFloat64(float64(m.audioConfig.SampleRate)))
		writeElement(audio, idChannels, encodeUint(uint64(m.audioConfig.Channels)))
		writeElement(entry, idAudio, audio.Bytes())

		writeElement(tracks, idTrackEntry, entry.Bytes())
	}

	if err := writeElement(m.sink, idTracks, tracks.Bytes()); err != nil {
		return err
	}
	m.sink.NotifyPreambleDone()
	return nil
}

// WriteVideoFrame converts frame.timestamp_ms to timecode ticks and writes
// a SimpleBlock on the video track, starting a new cluster first if
// frame.keyframe or the current cluster has run past maxClusterDurationMs.
func (m *LiveWebmMuxer) WriteVideoFrame(frame *VideoFrame) error {
	if m.state != muxerInit {
		return ErrNotInitialized
	}
	if !m.hasVideoTrack {
		return fmt.Errorf("no video track registered")
	}
	if frame.Format() != VideoFormatVP8 && frame.Format() != VideoFormatVP9 {
		return fmt.Errorf("unsupported video frame format for mux")
	}
	if len(frame.Buffer()) == 0 {
		return ErrInvalidArg
	}
	return m.writeSimpleBlock(videoTrackNumber, frame.Buffer(), frame.Timestamp(), frame.Keyframe())
}

// WriteAudioBuffer writes a SimpleBlock on the audio track. Audio blocks
// are never treated as keyframes; an audio write opens a new cluster only
// when no cluster is open yet or the current one has run past
// maxClusterDurationMs. Otherwise it rides whatever cluster video
// keyframes opened.
func (m *LiveWebmMuxer) WriteAudioBuffer(buf *AudioBuffer) error {
	if m.state != muxerInit {
		return ErrNotInitialized
	}
	if !m.hasAudioTrack {
		return fmt.Errorf("no audio track registered")
	}
	if len(buf.Buffer()) == 0 {
		return ErrInvalidArg
	}
	return m.writeSimpleBlock(audioTrackNumber, buf.Buffer(), buf.Timestamp(), false)
}

func (m *LiveWebmMuxer) writeSimpleBlock(trackNumber uint64, data []byte, timestampMs int64, keyframe bool) error {
	needNewCluster := !m.inCluster
	if keyframe && trackNumber == videoTrackNumber {
		needNewCluster = true
	} else if timestampMs-m.clusterStartMs > m.maxClusterDurationMs {
		needNewCluster = true
	}

	if needNewCluster {
		if err := m.startNewCluster(timestampMs); err != nil {
			return fmt.Errorf("failed to start new cluster: %w", err)
		}
	}

	block := &bytes.Buffer{}
	if err := writeVarInt(block, trackNumber); err != nil {
		return err
	}
	relative := int16((timestampMs - m.clusterStartMs))
	block.WriteByte(byte(relative >> 8))
	block.WriteByte(byte(relative))

	flags := byte(0)
	if keyframe {
		flags |= 0x80
	}
	block.WriteByte(flags)
	block.Write(data)

	if timestampMs > m.currentTimeMs {
		m.currentTimeMs = timestampMs
	}
	return writeElement(m.sink, idSimpleBlock, block.Bytes())
}

// CurrentTime reports the highest timestamp written so far, in milliseconds.
// The orchestrator compares incoming raw video timestamps against it to drop
// frames that arrive after the muxer has already moved past their instant.
func (m *LiveWebmMuxer) CurrentTime() int64 { return m.currentTimeMs }

func (m *LiveWebmMuxer) startNewCluster(timestampMs int64) error {
	m.sink.NotifyClusterStart()
	m.clusterStartMs = timestampMs
	m.inCluster = true

	if err := writeEBMLID(m.sink, idCluster); err != nil {
		return err
	}
	if _, err := m.sink.Write(unknownSizeBytes); err != nil {
		return err
	}
	// TimecodeScale is 1,000,000 ns, so one timecode tick is one millisecond
	// and cluster timecodes are the millisecond timestamps themselves.
	return writeElement(m.sink, idTimecode, encodeUint(uint64(timestampMs)))
}

// Finalize forces a final chunk boundary over whatever cluster bytes
// remain unshipped. After Finalize the caller should drain ChunkReady one
// last time.
func (m *LiveWebmMuxer) Finalize() error {
	if m.state == muxerFinalized {
		return nil
	}
	m.sink.Finalize()
	m.state = muxerFinalized
	return nil
}

func (m *LiveWebmMuxer) writeEBMLHeader() error {
	header := []byte{
		0x1A, 0x45, 0xDF, 0xA3,
		0x9F,
		0x42, 0x86, 0x81, 0x01,
		0x42, 0xF7, 0x81, 0x01,
		0x42, 0xF2, 0x81, 0x04,
		0x42, 0xF3, 0x81, 0x08,
		0x42, 0x82, 0x84, 0x77, 0x65, 0x62, 0x6D, // DocType "webm"
		0x42, 0x87, 0x81, 0x04,
		0x42, 0x85, 0x81, 0x02,
	}
	_, err := m.sink.Write(header)
	return err
}

func (m *LiveWebmMuxer) writeSegmentHeader() error {
	if err := writeEBMLID(m.sink, idSegment); err != nil {
		return err
	}
	_, err := m.sink.Write(unknownSizeBytes)
	return err
}

func (m *LiveWebmMuxer) writeInfo() error {
	info := &bytes.Buffer{}
	writeElement(info, idTimecodeScale, encodeUint(kTimecodeScale))
	writeElement(info, idMuxingApp, []byte(writingAppString))
	writeElement(info, idWritingApp, []byte(writingAppString))
	return writeElement(m.sink, idInfo, info.Bytes())
}
