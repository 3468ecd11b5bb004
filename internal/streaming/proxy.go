package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ramyshaaban/video-library/internal/domain"
	"github.com/ramyshaaban/video-library/internal/logger"
)

// Resolver decides where a record's bytes come from.
type Resolver interface {
	Resolve(rec *domain.VideoRecord) domain.ResolvedSource
}

// SignedURLProvider is the authorization cache as seen by the proxy.
type SignedURLProvider interface {
	GetSignedURL(ctx context.Context, objectKey string) (string, error)
	Invalidate(ctx context.Context, objectKey string)
}

// Proxy relays video bytes from wherever they live to the client, with
// byte-range support so players can seek.
type Proxy struct {
	resolver Resolver
	signer   SignedURLProvider
	client   *http.Client
	cfg      Config
	bufPool  sync.Pool
}

func NewProxy(resolver Resolver, signer SignedURLProvider, client *http.Client, cfg Config) *Proxy {
	cfg = cfg.withDefaults()
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	p := &Proxy{resolver: resolver, signer: signer, client: client, cfg: cfg}
	p.bufPool.New = func() interface{} {
		b := make([]byte, cfg.BufferSize)
		return &b
	}
	return p
}

// SetCORSHeaders adds the headers browsers need to play and seek the stream
// from another origin.
func SetCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Range, Content-Type")
	h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
}

// Stream serves rec to w. OPTIONS is answered as a CORS preflight without
// resolving anything, so rec may be nil for it. HEAD returns the headers a
// GET would.
func (p *Proxy) Stream(w http.ResponseWriter, r *http.Request, rec *domain.VideoRecord) {
	SetCORSHeaders(w.Header())
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tr := newTrace(rec.ID, r.Method)

	rng, err := ParseRange(r.Header.Get("Range"))
	if err != nil {
		tr.fail(err)
		WriteError(w, err)
		return
	}

	tr.to(stateResolving)
	src := p.resolver.Resolve(rec)
	if src.Strategy == domain.StrategyUnresolved {
		tr.fail(domain.ErrUnresolvableSource)
		WriteError(w, domain.ErrUnresolvableSource)
		return
	}

	resp, err := p.open(r.Context(), tr, src, rng)
	if err != nil {
		tr.fail(err)
		WriteError(w, err)
		return
	}
	defer resp.Body.Close()

	p.relay(w, r, tr, src, resp, rng)
}

// open fetches the source. A signed-object fetch that fails on transport or
// with 401/403 is retried exactly once with a freshly signed URL.
func (p *Proxy) open(ctx context.Context, tr *trace, src domain.ResolvedSource, rng *ByteRange) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		target := src.URL
		if src.Strategy == domain.StrategySignedObject {
			tr.to(stateAuthorizing)
			u, err := p.signer.GetSignedURL(ctx, src.ObjectKey)
			if err != nil {
				return nil, err
			}
			target = u
		}

		tr.to(stateFetching, zap.Int("attempt", attempt+1))
		resp, err := p.fetch(ctx, target, rng)
		retry := src.Strategy == domain.StrategySignedObject && attempt == 0 && ctx.Err() == nil

		if err != nil {
			if retry {
				logger.Log.Warn("upstream fetch failed, re-signing", zap.String("key", src.ObjectKey), zap.Error(err))
				p.signer.Invalidate(ctx, src.ObjectKey)
				continue
			}
			return nil, &domain.UpstreamFetchError{Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			discard(resp)
			if retry {
				logger.Log.Warn("upstream rejected signed url, re-signing",
					zap.String("key", src.ObjectKey), zap.Int("status", resp.StatusCode))
				p.signer.Invalidate(ctx, src.ObjectKey)
				continue
			}
			return nil, &domain.UpstreamFetchError{Status: resp.StatusCode}
		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			return resp, nil
		case resp.StatusCode >= http.StatusBadRequest:
			discard(resp)
			return nil, &domain.UpstreamFetchError{Status: resp.StatusCode}
		}
		return resp, nil
	}
}

func (p *Proxy) fetch(ctx context.Context, target string, rng *ByteRange) (*http.Response, error) {
	fetchCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	if rng != nil {
		req.Header.Set("Range", rng.Header())
	}
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = newStallReader(resp.Body, p.cfg.ReadStallTimeout, cancel)
	return resp, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func (p *Proxy) relay(w http.ResponseWriter, r *http.Request, tr *trace, src domain.ResolvedSource, resp *http.Response, rng *ByteRange) {
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "public, max-age=3600")
	h.Set("Content-Type", contentType(resp.Header.Get("Content-Type"), sourceName(src)))
	for _, k := range []string{"ETag", "Last-Modified"} {
		if v := resp.Header.Get(k); v != "" {
			h.Set(k, v)
		}
	}

	var body io.Reader = resp.Body
	status := http.StatusOK

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			h.Set("Content-Range", cr)
		}
		tr.fail(ErrMalformedRange)
		WriteError(w, ErrMalformedRange)
		return

	case resp.StatusCode == http.StatusPartialContent:
		status = http.StatusPartialContent
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			h.Set("Content-Range", cr)
		}
		if resp.ContentLength >= 0 {
			h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
		}

	case rng != nil && resp.ContentLength >= 0:
		// Upstream ignored the range; cut it out of the full body ourselves.
		size := resp.ContentLength
		first, last, err := rng.Resolve(size)
		if err != nil {
			h.Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
			tr.fail(err)
			WriteError(w, err)
			return
		}
		if r.Method != http.MethodHead && first > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, first); err != nil {
				tr.fail(err)
				WriteError(w, &domain.UpstreamFetchError{Err: err})
				return
			}
		}
		status = http.StatusPartialContent
		h.Set("Content-Range", ContentRange(first, last, size))
		h.Set("Content-Length", strconv.FormatInt(last-first+1, 10))
		body = io.LimitReader(resp.Body, last-first+1)

	default:
		if resp.ContentLength >= 0 {
			h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
		}
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		tr.complete(0)
		return
	}

	tr.to(stateStreaming, zap.Int("status", status))
	n, readErr, writeErr := p.pump(w, body)
	switch {
	case writeErr != nil || r.Context().Err() != nil:
		// The client went away; that ends the request normally.
		tr.complete(n, zap.Bool("client_closed", true))
	case readErr != nil:
		tr.fail(readErr, zap.Int64("bytes", n))
	default:
		tr.complete(n)
	}
}

// pump copies body to w chunk by chunk, flushing after each write so the
// player receives bytes as they arrive.
func (p *Proxy) pump(w http.ResponseWriter, body io.Reader) (written int64, readErr, writeErr error) {
	bufp := p.bufPool.Get().(*[]byte)
	defer p.bufPool.Put(bufp)
	buf := *bufp
	flusher, _ := w.(http.Flusher)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, nil, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return written, nil, nil
		}
		if err != nil {
			return written, err, nil
		}
	}
}

func sourceName(src domain.ResolvedSource) string {
	if src.Strategy == domain.StrategySignedObject {
		return src.ObjectKey
	}
	name := src.URL
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return name
}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
}

// contentType keeps a specific upstream media type and otherwise infers one
// from the file extension. Object stores often answer with a generic
// octet-stream type that players refuse.
func contentType(upstream, name string) string {
	ct := strings.ToLower(strings.TrimSpace(upstream))
	if strings.HasPrefix(ct, "video/") || strings.Contains(ct, "mpegurl") {
		return upstream
	}
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return "video/mp4"
}

// StatusForError maps playback errors to HTTP status codes.
func StatusForError(err error) int {
	var authErr *domain.AuthorizationError
	var fetchErr *domain.UpstreamFetchError
	switch {
	case errors.Is(err, ErrMalformedRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, domain.ErrUnresolvableSource), errors.Is(err, domain.ErrVideoNotFound):
		return http.StatusNotFound
	case errors.As(err, &authErr):
		return http.StatusBadGateway
	case errors.As(err, &fetchErr):
		if fetchErr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		if errors.Is(fetchErr.Err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError sends err as a JSON body with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	msg := err.Error()
	var authErr *domain.AuthorizationError
	var fetchErr *domain.UpstreamFetchError
	switch {
	case errors.As(err, &authErr):
		msg = "failed to authorize video access"
	case errors.As(err, &fetchErr) && fetchErr.Status == http.StatusNotFound:
		msg = domain.ErrUnresolvableSource.Error()
	case errors.As(err, &fetchErr):
		msg = "failed to fetch video from origin"
	}
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type streamState string

const (
	stateReceived    streamState = "received"
	stateResolving   streamState = "resolving"
	stateAuthorizing streamState = "authorizing"
	stateFetching    streamState = "fetching"
	stateStreaming   streamState = "streaming"
	stateCompleted   streamState = "completed"
	stateFailed      streamState = "failed"
)

// trace logs the lifecycle of one proxied request.
type trace struct {
	videoID string
	method  string
	state   streamState
	started time.Time
}

func newTrace(videoID, method string) *trace {
	return &trace{videoID: videoID, method: method, state: stateReceived, started: time.Now()}
}

func (t *trace) to(s streamState, fields ...zap.Field) {
	logger.Log.Debug("stream state",
		append([]zap.Field{
			zap.String("video_id", t.videoID),
			zap.String("from", string(t.state)),
			zap.String("to", string(s)),
		}, fields...)...)
	t.state = s
}

func (t *trace) complete(n int64, fields ...zap.Field) {
	t.to(stateCompleted, append(fields, zap.Int64("bytes", n), zap.Duration("elapsed", time.Since(t.started)))...)
}

func (t *trace) fail(err error, fields ...zap.Field) {
	logger.Log.Warn("stream failed",
		append([]zap.Field{
			zap.String("video_id", t.videoID),
			zap.String("method", t.method),
			zap.String("state", string(t.state)),
			zap.Error(err),
		}, fields...)...)
	t.state = stateFailed
}
