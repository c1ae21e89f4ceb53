// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/raysh454/thumbscan/internal/deadletter"
	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ErrorCount is safe to call while the logger is in use.
func (l *DummyLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Errors)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Text calls return Texts[url] (default "ok:<url>"). GetStatusCode returns
// StatusCodes[url] (default 200). FailURLs[url] forces a TransportError.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Texts         map[string]string
	StatusCodes   map[string]int
	FailURLs      map[string]bool

	mu       sync.Mutex
	Requests []*webclient.Request
}

var _ webclient.WebClient = (*DummyWebClient)(nil)

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request, shape webclient.Shape) (*webclient.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, &webclient.TransportError{Method: req.Method, URL: req.URL, Err: ctx.Err()}
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs[req.URL] {
		return nil, &webclient.TransportError{Method: req.Method, URL: req.URL, Err: &errString{"dummy fetch fail"}}
	}

	code := http.StatusOK
	if c, ok := d.StatusCodes[req.URL]; ok {
		code = c
	}
	res := &webclient.Result{StatusCode: code, Header: http.Header{}}
	switch shape {
	case webclient.ShapeStatus:
		return res, nil
	case webclient.ShapeBytes:
		res.Bytes = []byte(d.text(req.URL))
	default:
		res.Text = d.text(req.URL)
	}
	return res, nil
}

func (d *DummyWebClient) text(u string) string {
	if t, ok := d.Texts[u]; ok {
		return t
	}
	return "ok:" + u
}

func (d *DummyWebClient) Get(ctx context.Context, u string, params url.Values, headers http.Header, enc string) (string, error) {
	res, err := d.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: u, Params: params, Headers: headers, Encoding: enc}, webclient.ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (d *DummyWebClient) GetBinary(ctx context.Context, u string, params url.Values, headers http.Header, enc string) ([]byte, error) {
	res, err := d.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: u, Params: params, Headers: headers, Encoding: enc}, webclient.ShapeBytes)
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

func (d *DummyWebClient) GetStatusCode(ctx context.Context, u string) (int, error) {
	res, err := d.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: u}, webclient.ShapeStatus)
	if err != nil {
		return 0, err
	}
	return res.StatusCode, nil
}

func (d *DummyWebClient) PostForm(ctx context.Context, u string, params url.Values, headers http.Header, enc string) (string, error) {
	res, err := d.Do(ctx, &webclient.Request{Kind: webclient.BodyForm, URL: u, Params: params, Headers: headers, Encoding: enc}, webclient.ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (d *DummyWebClient) PostJSON(ctx context.Context, u string, body string, headers http.Header, enc string) (string, error) {
	res, err := d.Do(ctx, &webclient.Request{Kind: webclient.BodyJSON, URL: u, JSON: body, Headers: headers, Encoding: enc}, webclient.ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (d *DummyWebClient) PostFile(ctx context.Context, u string, params url.Values, files map[string]webclient.File, headers http.Header, enc string) (string, error) {
	multi := make(map[string][]webclient.File, len(files))
	for k, f := range files {
		multi[k] = []webclient.File{f}
	}
	return d.PostMultipleFiles(ctx, u, params, multi, headers, enc)
}

func (d *DummyWebClient) PostMultipleFiles(ctx context.Context, u string, params url.Values, files map[string][]webclient.File, headers http.Header, enc string) (string, error) {
	res, err := d.Do(ctx, &webclient.Request{Kind: webclient.BodyMultipart, URL: u, Params: params, Files: files, Headers: headers, Encoding: enc}, webclient.ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount is safe to call while the client is in use.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Dead letters ──────────────────────────────────────────────────────

// DummyDeadLetter records enqueued entries in memory.
type DummyDeadLetter struct {
	mu      sync.Mutex
	Entries []deadletter.Entry
	Err     error
}

func (d *DummyDeadLetter) Enqueue(_ context.Context, e deadletter.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Entries = append(d.Entries, e)
	return nil
}

func (d *DummyDeadLetter) Snapshot() []deadletter.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deadletter.Entry(nil), d.Entries...)
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
