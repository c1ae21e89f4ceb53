package webclient

import (
	"context"
	"net/http"
	"net/url"
)

// WebClient is the outbound HTTP contract shared by the pager and the
// validator. Every method blocks until the whole response has been read.
type WebClient interface {
	// Do runs the shared request pipeline and decodes the response as shape.
	Do(ctx context.Context, req *Request, shape Shape) (*Result, error)

	Get(ctx context.Context, rawURL string, params url.Values, headers http.Header, encoding string) (string, error)
	GetBinary(ctx context.Context, rawURL string, params url.Values, headers http.Header, encoding string) ([]byte, error)
	GetStatusCode(ctx context.Context, rawURL string) (int, error)

	PostForm(ctx context.Context, rawURL string, params url.Values, headers http.Header, encoding string) (string, error)
	PostJSON(ctx context.Context, rawURL string, body string, headers http.Header, encoding string) (string, error)
	PostFile(ctx context.Context, rawURL string, params url.Values, files map[string]File, headers http.Header, encoding string) (string, error)
	PostMultipleFiles(ctx context.Context, rawURL string, params url.Values, files map[string][]File, headers http.Header, encoding string) (string, error)

	Close() error
}
