package server

import "github.com/raysh454/thumbscan/internal/logging"

type Config struct {
	// ListenAddr is the HTTP listen address for the API server. The CLI scan
	// command drives the orchestrator in-process and never listens.
	ListenAddr string

	Logger logging.Logger
}
