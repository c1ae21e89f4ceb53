package server

import "github.com/raysh454/thumbscan/internal/catalog"

// StartScanRequest optionally overrides the configured listing filter.
type StartScanRequest struct {
	Filter *catalog.Filter `json:"filter,omitempty"`
}

// DeadLetterCountResponse reports how many failed checks are queued.
type DeadLetterCountResponse struct {
	Queued int64 `json:"queued" example:"3"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
