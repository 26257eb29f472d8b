package internal

// AudioBuffer owns a byte payload plus timing and format metadata. It is
// produced by a capture callback, owned exclusively by whichever thread
// currently holds it, and recycled by a BufferPool.
type AudioBuffer struct {
	data      []byte
	length    int
	timestamp int64       // milliseconds
	duration  int64       // milliseconds
	config    AudioConfig
}

// NewAudioBuffer returns an empty AudioBuffer ready for Init.
func NewAudioBuffer() *AudioBuffer {
	return &AudioBuffer{}
}

// Init copies data into the buffer's storage, allocating as needed.
func (b *AudioBuffer) Init(config AudioConfig, timestampMs, durationMs int64, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidArg
	}
	if cap(b.data) < len(data) {
		b.data = make([]byte, len(data))
	} else {
		b.data = b.data[:len(data)]
	}
	copy(b.data, data)
	b.length = len(data)
	b.timestamp = timestampMs
	b.duration = durationMs
	b.config = config
	return nil
}

// Buffer returns the raw payload, satisfying the Bufferable constraint.
func (b *AudioBuffer) Buffer() []byte { return b.data[:b.length] }

// Clone deep-copies b's payload and metadata into dst.
func (b *AudioBuffer) Clone(dst *AudioBuffer) error {
	dst.data = append(dst.data[:0], b.data[:b.length]...)
	dst.length = b.length
	dst.timestamp = b.timestamp
	dst.duration = b.duration
	dst.config = b.config
	return nil
}

// Swap exchanges storage with other, avoiding any allocation. Used by
// BufferPool on the steady-state path once both sides already own storage.
func (b *AudioBuffer) Swap(other *AudioBuffer) {
	b.data, other.data = other.data, b.data
	b.length, other.length = other.length, b.length
	b.timestamp, other.timestamp = other.timestamp, b.timestamp
	b.duration, other.duration = other.duration, b.duration
	b.config, other.config = other.config, b.config
}

func (b *AudioBuffer) Timestamp() int64      { return b.timestamp }
func (b *AudioBuffer) SetTimestamp(ts int64) { b.timestamp = ts }
func (b *AudioBuffer) Duration() int64       { return b.duration }
func (b *AudioBuffer) Config() AudioConfig   { return b.config }
func (b *AudioBuffer) Length() int           { return b.length }
