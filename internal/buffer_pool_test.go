package internal

import "testing"

func newTestAudioPool(t *testing.T, allowGrowth bool, count int) *BufferPool[AudioBuffer, *AudioBuffer] {
	t.Helper()
	p := NewBufferPool[AudioBuffer, *AudioBuffer]()
	if err := p.Init(allowGrowth, count); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func TestBufferPoolCommitDecommitRoundTrip(t *testing.T) {
	p := newTestAudioPool(t, false, 2)
	in := NewAudioBuffer()
	if err := in.Init(AudioConfig{SampleRate: 44100}, 10, 5, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Init buffer: %v", err)
	}
	if err := p.Commit(in); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	out := NewAudioBuffer()
	if err := p.Decommit(out); err != nil {
		t.Fatalf("Decommit: %v", err)
	}
	if got, want := out.Buffer(), []byte{1, 2, 3, 4}; string(got) != string(want) {
		t.Fatalf("payload mismatch: got %v want %v", got, want)
	}
	if out.Timestamp() != 10 || out.Duration() != 5 {
		t.Fatalf("metadata mismatch: ts=%d dur=%d", out.Timestamp(), out.Duration())
	}
}

func TestBufferPoolFullWithoutGrowth(t *testing.T) {
	p := newTestAudioPool(t, false, 1)
	buf := NewAudioBuffer()
	buf.Init(AudioConfig{}, 0, 0, []byte{1})

	if err := p.Commit(buf); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := p.Commit(buf); err != ErrPoolFull {
		t.Fatalf("expected ErrPoolFull on second commit, got %v", err)
	}
}

func TestBufferPoolGrowsWhenAllowed(t *testing.T) {
	p := newTestAudioPool(t, true, 0)
	buf := NewAudioBuffer()
	buf.Init(AudioConfig{}, 0, 0, []byte{1})
	for i := 0; i < DefaultBufferCount+3; i++ {
		if err := p.Commit(buf); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if n := p.ActiveLen(); n != DefaultBufferCount+3 {
		t.Fatalf("ActiveLen = %d, want %d", n, DefaultBufferCount+3)
	}
}

func TestBufferPoolDecommitEmpty(t *testing.T) {
	p := newTestAudioPool(t, false, 1)
	out := NewAudioBuffer()
	if err := p.Decommit(out); err != ErrPoolEmpty {
		t.Fatalf("expected ErrPoolEmpty, got %v", err)
	}
}

func TestBufferPoolDoubleInit(t *testing.T) {
	p := newTestAudioPool(t, false, 1)
	if err := p.Init(false, 1); err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestBufferPoolDropActive(t *testing.T) {
	p := newTestAudioPool(t, false, 2)
	buf := NewAudioBuffer()
	buf.Init(AudioConfig{}, 0, 0, []byte{9})
	p.Commit(buf)
	p.DropActive()
	if !p.IsEmpty() {
		t.Fatalf("expected pool empty after DropActive")
	}
}

func TestActiveTimestampPeekDoesNotRemove(t *testing.T) {
	p := newTestAudioPool(t, false, 1)
	buf := NewAudioBuffer()
	buf.Init(AudioConfig{}, 42, 0, []byte{1})
	p.Commit(buf)

	ts, err := ActiveTimestamp[AudioBuffer, *AudioBuffer](p)
	if err != nil {
		t.Fatalf("ActiveTimestamp: %v", err)
	}
	if ts != 42 {
		t.Fatalf("ts = %d, want 42", ts)
	}
	if p.IsEmpty() {
		t.Fatalf("ActiveTimestamp should not remove the buffer")
	}
}
