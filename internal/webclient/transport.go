package webclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raysh454/thumbscan/internal/logging"
)

// Transport is the net/http implementation of WebClient. The underlying
// *http.Client pools connections and is safe for concurrent use.
type Transport struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

var _ WebClient = (*Transport)(nil)

// NewTransport wraps httpClient, or builds a pooled client from cfg when
// httpClient is nil.
func NewTransport(cfg Config, logger logging.Logger, httpClient *http.Client) *Transport {
	def := DefaultConfig()
	if cfg.Encoding == "" {
		cfg.Encoding = def.Encoding
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.LogBodyLimit <= 0 {
		cfg.LogBodyLimit = def.LogBodyLimit
	}
	if logger == nil {
		logger = logging.Nop()
	}
	componentLogger := logger.With(logging.Field{Key: "component", Value: "webclient"})

	if httpClient == nil {
		httpClient = newPooledClient(cfg)
	}

	componentLogger.Debug("created transport",
		logging.Field{Key: "timeout", Value: httpClient.Timeout.String()},
		logging.Field{Key: "encoding", Value: cfg.Encoding})

	return &Transport{
		cfg:    cfg,
		client: httpClient,
		logger: componentLogger,
	}
}

func newPooledClient(cfg Config) *http.Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		},
	}
}

// Do builds the request, sends it, and decodes the response as shape.
// The response body is always drained and closed before Do returns.
func (t *Transport) Do(ctx context.Context, req *Request, shape Shape) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := lookupCodec(req.Encoding, t.cfg.Encoding)
	if err != nil {
		return nil, err
	}

	httpReq, err := t.build(ctx, req, c, shape)
	if err != nil {
		return nil, err
	}
	method, target := httpReq.Method, httpReq.URL.String()

	t.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "kind", Value: req.Kind.String()},
		logging.Field{Key: "params", Value: req.Params},
		logging.Field{Key: "files", Value: fileNames(req.Files)})

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.Warn("http request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "elapsed_ms", Value: elapsed.Milliseconds()},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer drainAndClose(resp.Body)

	t.logger.Debug("http request completed",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "headers", Value: httpReq.Header},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "elapsed_ms", Value: elapsed.Milliseconds()})

	res := &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Elapsed:    elapsed,
	}
	if shape == ShapeStatus {
		return res, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Warn("failed to read response body",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	switch shape {
	case ShapeBytes:
		// Validation failures can arrive as HTTP 200 with a JSON envelope even
		// when a file was expected.
		if isJSONContent(resp.Header) {
			if se := parseEnvelope(body); se != nil {
				se.StatusCode = resp.StatusCode
				se.URL = target
				return nil, se
			}
		}
		res.Bytes = body
	default:
		text, err := c.decode(body)
		if err != nil {
			return nil, err
		}
		t.logger.Debug("http response body",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "body", Value: truncate(text, t.cfg.LogBodyLimit)})
		// Error pages are returned as text; callers judge the content.
		res.Text = text
	}
	return res, nil
}

func (t *Transport) build(ctx context.Context, req *Request, c codec, shape Shape) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
		target      = req.URL
	)

	switch req.Kind {
	case BodyNone:
		query, err := c.encodeValues(req.Params)
		if err != nil {
			return nil, err
		}
		target = appendQuery(target, query)
		if shape != ShapeStatus {
			contentType = "application/json"
		}
	case BodyForm:
		form, err := c.encodeValues(req.Params)
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(form)
		contentType = "application/x-www-form-urlencoded"
	case BodyJSON:
		payload, err := c.encode(req.JSON)
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(payload)
		contentType = "application/json; charset=" + c.name
	case BodyMultipart:
		buf, ct, err := c.multipartBody(req.Params, req.Files)
		if err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		body = buf
		contentType = ct
	default:
		return nil, fmt.Errorf("%w: unknown body kind %s", ErrInvalidRequest, req.Kind)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if t.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	for k, vs := range req.Headers {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// Get sends a GET with params appended to the query string and returns the
// body decoded with encoding, whatever the HTTP status.
func (t *Transport) Get(ctx context.Context, rawURL string, params url.Values, headers http.Header, encoding string) (string, error) {
	res, err := t.Do(ctx, &Request{
		Method:   http.MethodGet,
		Kind:     BodyNone,
		URL:      rawURL,
		Params:   params,
		Headers:  headers,
		Encoding: encoding,
	}, ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// GetBinary is Get without decoding. A JSON error envelope in the payload
// fails the call with *ServerError whatever the HTTP status was.
func (t *Transport) GetBinary(ctx context.Context, rawURL string, params url.Values, headers http.Header, encoding string) ([]byte, error) {
	res, err := t.Do(ctx, &Request{
		Method:   http.MethodGet,
		Kind:     BodyNone,
		URL:      rawURL,
		Params:   params,
		Headers:  headers,
		Encoding: encoding,
	}, ShapeBytes)
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

// GetStatusCode sends a plain GET and returns the status code only.
func (t *Transport) GetStatusCode(ctx context.Context, rawURL string) (int, error) {
	res, err := t.Do(ctx, &Request{Method: http.MethodGet, Kind: BodyNone, URL: rawURL}, ShapeStatus)
	if err != nil {
		return 0, err
	}
	return res.StatusCode, nil
}

func (t *Transport) PostForm(ctx context.Context, rawURL string, params url.Values, headers http.Header, encoding string) (string, error) {
	res, err := t.Do(ctx, &Request{
		Method:   http.MethodPost,
		Kind:     BodyForm,
		URL:      rawURL,
		Params:   params,
		Headers:  headers,
		Encoding: encoding,
	}, ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (t *Transport) PostJSON(ctx context.Context, rawURL string, body string, headers http.Header, encoding string) (string, error) {
	res, err := t.Do(ctx, &Request{
		Method:   http.MethodPost,
		Kind:     BodyJSON,
		URL:      rawURL,
		JSON:     body,
		Headers:  headers,
		Encoding: encoding,
	}, ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// PostFile uploads one file per field.
func (t *Transport) PostFile(ctx context.Context, rawURL string, params url.Values, files map[string]File, headers http.Header, encoding string) (string, error) {
	var multi map[string][]File
	if files != nil {
		multi = make(map[string][]File, len(files))
		for field, f := range files {
			multi[field] = []File{f}
		}
	}
	return t.PostMultipleFiles(ctx, rawURL, params, multi, headers, encoding)
}

func (t *Transport) PostMultipleFiles(ctx context.Context, rawURL string, params url.Values, files map[string][]File, headers http.Header, encoding string) (string, error) {
	res, err := t.Do(ctx, &Request{
		Method:   http.MethodPost,
		Kind:     BodyMultipart,
		URL:      rawURL,
		Params:   params,
		Files:    files,
		Headers:  headers,
		Encoding: encoding,
	}, ShapeText)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Close releases idle pooled connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// HTTPClient returns the underlying *http.Client.
func (t *Transport) HTTPClient() *http.Client {
	return t.client
}

func isJSONContent(h http.Header) bool {
	for _, v := range h.Values("Content-Type") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "application/json") {
			return true
		}
	}
	return false
}

// drainAndClose lets the connection go back to the pool.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}

func fileNames(files map[string][]File) map[string][]string {
	if len(files) == 0 {
		return nil
	}
	out := make(map[string][]string, len(files))
	for field, fs := range files {
		for _, f := range fs {
			out[field] = append(out[field], f.Name)
		}
	}
	return out
}
