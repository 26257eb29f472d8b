package internal

// DataSink is implemented by every chunk destination: HttpUploader,
// FileWriter, and SinkFanout. In DASH mode both muxers' chunks go to the
// same DataSink under per-stream chunk ids. Ready
// reports whether the sink can currently accept another WriteData call
// without blocking the caller indefinitely; WebmEncoder checks it before
// draining a chunk out of the muxer so a stalled sink doesn't back the
// whole pipeline up.
//
// DataSink itself stays a small plain Go interface.
type DataSink interface {
	Ready() bool
	WriteData(id string, data []byte) error
	Name() string
}

// SinkKind names the two concrete sink kinds (HTTP and file). Nothing in
// the package reads it; chunk ids are chosen by WebmEncoder regardless of
// sink kind.
type SinkKind int

const (
	SinkKindHTTP SinkKind = iota
	SinkKindFile
)

// SinkFanout is a DataSink that forwards every chunk to each registered
// sink. The encoder produces one (id, bytes) chunk and every subscriber
// receives it; a failing subscriber is logged and skipped rather than
// stopping delivery to the others or the pipeline itself.
type SinkFanout struct {
	sinks []DataSink
}

// NewSinkFanout builds a fanout over the given sinks.
func NewSinkFanout(sinks ...DataSink) *SinkFanout {
	return &SinkFanout{sinks: sinks}
}

// AddSink registers another subscriber. Not safe to call once the encoder
// is running; register every sink before WebmEncoder.Run.
func (f *SinkFanout) AddSink(s DataSink) {
	f.sinks = append(f.sinks, s)
}

// Ready reports true only when every subscriber can accept a chunk, so a
// chunk is never delivered to some sinks now and others later.
func (f *SinkFanout) Ready() bool {
	for _, s := range f.sinks {
		if !s.Ready() {
			return false
		}
	}
	return true
}

// WriteData delivers the chunk to every subscriber.
func (f *SinkFanout) WriteData(id string, data []byte) error {
	for _, s := range f.sinks {
		if err := s.WriteData(id, data); err != nil {
			DebugLog("SinkFanout: %s rejected chunk %s: %v\n", s.Name(), id, err)
		}
	}
	return nil
}

func (f *SinkFanout) Name() string { return "fanout" }
