package internal

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Matroska/WebM EBML element IDs, carried over from the whep client's
// hand-rolled writer (internal/webm_muxer.go in the teacher repo).
const (
	idEBMLHeader  = 0x1A45DFA3
	idSegment     = 0x18538067
	idInfo        = 0x1549A966
	idTracks      = 0x1654AE6B
	idCluster     = 0x1F43B675
	idTimecode    = 0xE7
	idSimpleBlock = 0xA3

	idTimecodeScale = 0x2AD7B1
	idMuxingApp     = 0x4D80
	idWritingApp    = 0x5741

	idTrackEntry        = 0xAE
	idTrackNumber       = 0xD7
	idTrackUID          = 0x73C5
	idTrackType         = 0x83
	idCodecID           = 0x86
	idCodecPrivate      = 0x63A2
	idVideo             = 0xE0
	idAudio             = 0xE1
	idPixelWidth        = 0xB0
	idPixelHeight       = 0xBA
	idSamplingFrequency = 0xB5
	idChannels          = 0x9F

	trackTypeVideo = 0x01
	trackTypeAudio = 0x02
)

// writingAppString is embedded in the Info element's MuxingApp/WritingApp
// fields of every segment this package produces.
const writingAppString = "webmlive v2"

// kTimecodeScale is the nanosecond multiplier WebM stores on top of the
// encoder's millisecond timebase: one timecode tick = 1,000,000 ns = 1 ms.
const kTimecodeScale = 1_000_000

// unknownSizeBytes is the EBML "unknown element size" sentinel used for
// Segment and Cluster in live mode, so a receiver never needs to know the
// final stream length to start parsing.
var unknownSizeBytes = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// writeEBMLID writes an element ID using the minimal byte count its
// leading-bit-count implies (1-4 bytes), matching writeEBMLID in the
// teacher's webm_muxer.go.
func writeEBMLID(w io.Writer, id uint32) error {
	switch {
	case id <= 0xFF:
		_, err := w.Write([]byte{byte(id)})
		return err
	case id <= 0xFFFF:
		return binary.Write(w, binary.BigEndian, uint16(id))
	case id <= 0xFFFFFF:
		_, err := w.Write([]byte{byte(id >> 16), byte(id >> 8), byte(id)})
		return err
	default:
		return binary.Write(w, binary.BigEndian, id)
	}
}

// writeVarInt writes n as an EBML variable-length size descriptor.
func writeVarInt(w io.Writer, n uint64) error {
	switch {
	case n < 127:
		_, err := w.Write([]byte{byte(n | 0x80)})
		return err
	case n < 16383:
		_, err := w.Write([]byte{byte((n >> 8) | 0x40), byte(n)})
		return err
	case n < 2097151:
		_, err := w.Write([]byte{byte((n >> 16) | 0x20), byte(n >> 8), byte(n)})
		return err
	case n < 268435455:
		_, err := w.Write([]byte{byte((n >> 24) | 0x10), byte(n >> 16), byte(n >> 8), byte(n)})
		return err
	default:
		return fmt.Errorf("ebml varint too large: %d", n)
	}
}

// writeElement writes a complete ID+size+payload element.
func writeElement(w io.Writer, id uint32, data []byte) error {
	if err := writeEBMLID(w, id); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// encodeUint big-endian encodes n using the minimum number of bytes,
// matching encodeUInt in the teacher's webm_muxer.go.
func encodeUint(n uint64) []byte {
	buf := make([]byte, 8)
	size := 0
	for i := 7; i >= 0; i-- {
		if n>>(uint(i)*8) > 0 || size > 0 {
			buf[size] = byte(n >> (uint(i) * 8))
			size++
		}
	}
	if size == 0 {
		return []byte{0}
	}
	return buf[:size]
}

// encodeFloat64 encodes f as an 8-byte IEEE-754 double, big-endian.
func encodeFloat64(f float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}
