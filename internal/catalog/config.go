package catalog

import "time"

const (
	DefaultListURL   = "https://api.polyv.net/v2/video/search"
	DefaultPageSize  = 100
	DefaultPageDelay = 500 * time.Millisecond
)

type Config struct {
	ListURL string
	UserID  string

	PageSize int

	// PageDelay is slept between two page fetches to bound the request rate
	// against the listing endpoint.
	PageDelay time.Duration

	// MaxPages stops the listing early. Zero means no cap.
	MaxPages int

	// Encoding is passed to the transport for every listing call.
	Encoding string
}

func DefaultConfig() Config {
	return Config{
		ListURL:   DefaultListURL,
		PageSize:  DefaultPageSize,
		PageDelay: DefaultPageDelay,
	}
}
