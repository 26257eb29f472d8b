package internal

import "sync"

// DefaultBufferCount is the number of slots BufferPool.Init preallocates
// when the caller doesn't want a custom count.
const DefaultBufferCount = 4

// Bufferable is the constraint a *T must satisfy to be handed through a
// BufferPool: it must expose its raw payload, support a deep clone into
// another instance, and support a destructive swap with another instance.
// This mirrors the template contract documented on the original
// BufferPool<Type> in client_encoder/buffer_pool.h ("buffer()", "Clone",
// "Swap"). T is the plain value type (AudioBuffer, VideoFrame); PT is
// instantiated as *T so BufferPool can allocate fresh slots with new(T).
type Bufferable[T any] interface {
	*T
	Buffer() []byte
	Clone(dst *T) error
	Swap(other *T)
}

// BufferPool is a bounded multi-producer/single-consumer handoff queue.
// Producers Commit buffers; the single consumer Decommits them in FIFO
// order. Two sub-queues (free, active) are used so that steady-state
// traffic never reallocates a payload: Commit/Decommit move data via Swap
// once both sides already own storage, falling back to Clone only on first
// use of a pool slot.
type BufferPool[T any, PT Bufferable[T]] struct {
	mu          sync.Mutex
	free        []PT
	active      []PT
	allowGrowth bool
	initialized bool
}

// NewBufferPool returns a zero-value pool; call Init before use.
func NewBufferPool[T any, PT Bufferable[T]]() *BufferPool[T, PT] {
	return &BufferPool[T, PT]{}
}

// Init pre-allocates initialCount empty slots into the free queue. Returns
// ErrAlreadyInitialized if called more than once. initialCount <= 0 falls
// back to DefaultBufferCount.
func (p *BufferPool[T, PT]) Init(allowGrowth bool, initialCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if initialCount <= 0 {
		initialCount = DefaultBufferCount
	}
	p.free = make([]PT, 0, initialCount)
	for i := 0; i < initialCount; i++ {
		p.free = append(p.free, PT(new(T)))
	}
	p.allowGrowth = allowGrowth
	p.initialized = true
	return nil
}

// Commit takes a free slot, moves in's payload into it (via Swap once the
// slot already owns storage, or Clone on first use), and pushes the slot
// onto the active queue. Returns ErrPoolFull when no slot is free and
// growth is disabled.
func (p *BufferPool[T, PT]) Commit(in PT) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var slot PT
	if len(p.free) == 0 {
		if !p.allowGrowth {
			return ErrPoolFull
		}
		slot = PT(new(T))
	} else {
		slot = p.free[0]
		p.free = p.free[1:]
	}

	exchange[T, PT](in, slot)
	p.active = append(p.active, slot)
	return nil
}

// Decommit pops the oldest active slot, moves its payload into out, and
// returns the slot to the free queue. Returns ErrPoolEmpty when nothing is
// active.
func (p *BufferPool[T, PT]) Decommit(out PT) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.active) == 0 {
		return ErrPoolEmpty
	}
	slot := p.active[0]
	p.active = p.active[1:]

	exchange[T, PT](slot, out)
	p.free = append(p.free, slot)
	return nil
}

// exchange moves src's payload into dst via Swap when dst already owns a
// buffer, or Clone on dst's first use.
func exchange[T any, PT Bufferable[T]](src, dst PT) {
	if len(dst.Buffer()) > 0 {
		dst.Swap((*T)(src))
	} else {
		src.Clone((*T)(dst))
	}
}

// ActiveTimestamper is implemented by types whose timestamp can be peeked
// without removing them from the pool.
type ActiveTimestamper interface {
	Timestamp() int64
}

// ActiveTimestamp peeks the timestamp of the oldest active buffer without
// removing it. Returns ErrPoolEmpty when the pool is empty.
func ActiveTimestamp[T any, PT interface {
	Bufferable[T]
	ActiveTimestamper
}](p *BufferPool[T, PT]) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) == 0 {
		return 0, ErrPoolEmpty
	}
	return p.active[0].Timestamp(), nil
}

// DropActive discards the oldest active slot back to the free queue
// without copying its payload anywhere — used to skip late video frames.
func (p *BufferPool[T, PT]) DropActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) == 0 {
		return
	}
	p.free = append(p.free, p.active[0])
	p.active = p.active[1:]
}

// Flush moves all active slots back to the free queue.
func (p *BufferPool[T, PT]) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, p.active...)
	p.active = p.active[:0]
}

// IsEmpty reports whether the active queue currently holds no buffers.
func (p *BufferPool[T, PT]) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) == 0
}

// ActiveLen reports the number of buffers currently queued for
// consumption, read under the pool lock. WebmEncoder does not call it.
func (p *BufferPool[T, PT]) ActiveLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
