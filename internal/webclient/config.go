package webclient

import "time"

const (
	DefaultEncoding  = "utf-8"
	DefaultUserAgent = "thumbscan/0.1"
)

// Config controls the pooled client built by NewTransport when no
// *http.Client is injected.
type Config struct {
	// Timeout bounds a whole round trip including reading the body.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	TLSHandshakeTimeout time.Duration

	// UserAgent is sent unless the caller supplies its own User-Agent header.
	UserAgent string

	// Encoding is used when a call passes an empty encoding.
	Encoding string

	// LogBodyLimit caps how much of a text body is copied into debug logs.
	LogBodyLimit int
}

func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		TLSHandshakeTimeout: 10 * time.Second,
		UserAgent:           DefaultUserAgent,
		Encoding:            DefaultEncoding,
		LogBodyLimit:        1024,
	}
}
