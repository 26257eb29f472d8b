package internal

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HttpUploaderSettings mirrors client_encoder/http_uploader.h's
// HTTPUploaderSettings: everything needed to address and authenticate the
// target, plus the local filename advertised in form-post mode.
type HttpUploaderSettings struct {
	TargetURL     string
	StreamID      string
	StreamName    string
	FormPost      bool
	Headers       map[string]string
	FormVariables map[string]string
	LocalFileName string
}

// HttpUploaderStats reports throughput as the source computed it:
// BytesPerSecond = (total_uploaded + bytes_in_flight) / elapsed since the
// uploader started. Whether that ratio is instantaneous or cumulative is
// ambiguous upstream; the formula is preserved as-is.
type HttpUploaderStats struct {
	BytesPerSecond     float64
	BytesSentCurrent   int64
	TotalBytesUploaded int64
}

type pendingChunk struct {
	id   string
	data []byte
}

// HttpUploader is a DataSink that queues chunks and ships them from one
// worker goroutine, preserving FIFO order. Target URLs live in their own
// FIFO: the front URL serves the metadata chunk, and once an upload to it
// succeeds the queue advances to the next URL, which then serves every
// later chunk. A done channel closed via sync.Once signals shutdown; a
// WaitGroup joins the worker.
type HttpUploader struct {
	settings HttpUploaderSettings
	client   *http.Client

	mu       sync.Mutex
	queue    []pendingChunk
	urls     []string
	notEmpty chan struct{}
	stats    HttpUploaderStats

	sessionID  string
	firstChunk bool
	startTime  time.Time

	// done asks the worker to drain the queue and exit; abort tears down any
	// still-in-flight transfer if draining overruns its deadline.
	done     chan struct{}
	abort    chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHttpUploader constructs an uploader bound to settings; call Run to
// start its worker goroutine. settings.TargetURL, when non-empty, becomes
// the first enqueued target.
func NewHttpUploader(settings HttpUploaderSettings) *HttpUploader {
	u := &HttpUploader{
		settings:   settings,
		client:     &http.Client{Timeout: 30 * time.Second},
		notEmpty:   make(chan struct{}, 1),
		sessionID:  uuid.NewString(),
		firstChunk: true,
		done:       make(chan struct{}),
		abort:      make(chan struct{}),
	}
	if settings.TargetURL != "" {
		u.urls = append(u.urls, settings.TargetURL)
	}
	return u
}

// EnqueueTargetUrl appends a target URL to the FIFO. The front URL is not
// removed until an upload to it succeeds.
func (u *HttpUploader) EnqueueTargetUrl(target string) {
	u.mu.Lock()
	u.urls = append(u.urls, target)
	u.mu.Unlock()
}

// Run starts the worker goroutine and records the upload start time the
// stats denominator is measured from.
func (u *HttpUploader) Run() {
	u.mu.Lock()
	u.startTime = time.Now()
	u.mu.Unlock()
	u.wg.Add(1)
	go u.workerLoop()
}

func (u *HttpUploader) workerLoop() {
	defer u.wg.Done()
	for {
		u.mu.Lock()
		for len(u.queue) == 0 {
			select {
			case <-u.done:
				u.mu.Unlock()
				return
			default:
			}
			u.mu.Unlock()
			select {
			case <-u.notEmpty:
			case <-u.done:
				// Drain whatever arrived between the queue check and the
				// stop signal before exiting.
				u.mu.Lock()
				if len(u.queue) == 0 {
					u.mu.Unlock()
					return
				}
				u.mu.Unlock()
			case <-time.After(50 * time.Millisecond):
			}
			u.mu.Lock()
		}
		chunk := u.queue[0]
		u.mu.Unlock()

		if err := u.upload(chunk); err != nil {
			DebugLog("HttpUploader: upload of chunk %s failed: %v\n", chunk.id, err)
			// Log-and-continue, no retry budget. The chunk is dropped but
			// the target URL stays at the front of its queue.
		}

		u.mu.Lock()
		u.queue = u.queue[1:]
		u.mu.Unlock()
	}
}

// progressReader wraps the request body so bytes are counted as the HTTP
// transport consumes them, the Go analogue of the CURL progress callback:
// it updates bytes-in-flight stats per read and aborts the in-flight upload
// when a stop has been requested.
type progressReader struct {
	u    *HttpUploader
	r    *bytes.Reader
	sent int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	select {
	case <-p.u.abort:
		return 0, fmt.Errorf("upload aborted: stop requested")
	default:
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.u.noteProgress(p.sent)
	}
	return n, err
}

func (u *HttpUploader) noteProgress(inFlight int64) {
	u.mu.Lock()
	u.stats.BytesSentCurrent = inFlight
	elapsed := time.Since(u.startTime).Seconds()
	if elapsed > 0 {
		u.stats.BytesPerSecond = float64(u.stats.TotalBytesUploaded+inFlight) / elapsed
	}
	u.mu.Unlock()
}

func (u *HttpUploader) upload(chunk pendingChunk) error {
	target, err := u.buildURL()
	if err != nil {
		return err
	}

	var body bytes.Buffer
	var contentType string
	if u.settings.FormPost {
		mw := multipart.NewWriter(&body)
		for k, v := range u.settings.FormVariables {
			mw.WriteField(k, v)
		}
		part, err := mw.CreateFormFile("webm_file", u.settings.LocalFileName)
		if err != nil {
			return err
		}
		part.Write(chunk.data)
		mw.Close()
		contentType = mw.FormDataContentType()
	} else {
		body.Write(chunk.data)
		contentType = "video/webm"
	}

	pr := &progressReader{u: u, r: bytes.NewReader(body.Bytes())}
	req, err := http.NewRequest(http.MethodPost, target, pr)
	if err != nil {
		return err
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Expect", "")
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Content-Id", chunk.id)
	for k, v := range u.settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	DebugLog("HttpUploader: chunk %s -> HTTP %d\n", chunk.id, resp.StatusCode)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("upload rejected: HTTP %d", resp.StatusCode)
	}

	u.mu.Lock()
	u.stats.TotalBytesUploaded += int64(len(chunk.data))
	u.stats.BytesSentCurrent = 0
	// Success advances the URL FIFO so later chunks go to the next target,
	// unless this is already the last (or only) URL, which then serves all
	// remaining chunks.
	if len(u.urls) > 1 {
		u.urls = u.urls[1:]
	}
	u.mu.Unlock()
	return nil
}

// buildURL resolves the front of the URL FIFO, appending the
// ns/id/agent/itag query parameters when the target has no query string of
// its own, and tagging the first upload with &metadata=1.
func (u *HttpUploader) buildURL() (string, error) {
	u.mu.Lock()
	if len(u.urls) == 0 {
		u.mu.Unlock()
		return "", fmt.Errorf("no target URL enqueued")
	}
	target := u.urls[0]
	first := u.firstChunk
	u.firstChunk = false
	u.mu.Unlock()

	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if parsed.RawQuery != "" {
		return target, nil
	}

	streamID := u.settings.StreamID
	if streamID == "" {
		streamID = u.sessionID
	}
	q := url.Values{}
	q.Set("ns", u.settings.StreamName)
	q.Set("id", streamID)
	q.Set("agent", "p")
	q.Set("itag", "43")
	if first {
		q.Set("metadata", "1")
	}

	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// Ready always reports true: the queue has no hard capacity limit, mirroring
// the source's unbounded pending-chunk list.
func (u *HttpUploader) Ready() bool { return true }

// WriteData enqueues a chunk for upload. Non-blocking: it never waits on
// network I/O.
func (u *HttpUploader) WriteData(id string, data []byte) error {
	cp := append([]byte(nil), data...)
	u.mu.Lock()
	u.queue = append(u.queue, pendingChunk{id: id, data: cp})
	u.mu.Unlock()
	select {
	case u.notEmpty <- struct{}{}:
	default:
	}
	return nil
}

func (u *HttpUploader) Name() string { return "http:" + u.settings.TargetURL }

// GetStats returns a snapshot of current throughput stats.
func (u *HttpUploader) GetStats() HttpUploaderStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// StopRequested reports whether Stop has been called.
func (u *HttpUploader) StopRequested() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// Stop signals the worker to drain the queue and exit, then waits for it.
// Queued chunks still upload during the drain; only when draining overruns
// its deadline does the in-flight transfer get aborted through the progress
// path. Idempotent: a second call is a no-op.
func (u *HttpUploader) Stop() {
	u.stopOnce.Do(func() {
		close(u.done)
		time.AfterFunc(10*time.Second, func() { close(u.abort) })
	})
	u.wg.Wait()
}
