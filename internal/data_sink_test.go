package internal

import (
	"errors"
	"testing"
)

type flakySink struct {
	ready bool
	fail  bool
	got   []string
}

func (s *flakySink) Ready() bool  { return s.ready }
func (s *flakySink) Name() string { return "flaky" }
func (s *flakySink) WriteData(id string, data []byte) error {
	if s.fail {
		return errors.New("sink down")
	}
	s.got = append(s.got, id)
	return nil
}

func TestSinkFanoutDeliversToEverySubscriber(t *testing.T) {
	a := &flakySink{ready: true}
	b := &flakySink{ready: true}
	f := NewSinkFanout(a)
	f.AddSink(b)

	if err := f.WriteData("chunk_0", []byte{1}); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("delivery counts: a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestSinkFanoutReadyRequiresAllSubscribers(t *testing.T) {
	f := NewSinkFanout(&flakySink{ready: true}, &flakySink{ready: false})
	if f.Ready() {
		t.Fatalf("fanout ready while a subscriber is not")
	}
}

func TestSinkFanoutFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	bad := &flakySink{ready: true, fail: true}
	good := &flakySink{ready: true}
	f := NewSinkFanout(bad, good)

	if err := f.WriteData("chunk_0", []byte{1}); err != nil {
		t.Fatalf("fanout must swallow per-sink failures: %v", err)
	}
	if len(good.got) != 1 {
		t.Fatalf("healthy sink skipped after a failing one")
	}
}
