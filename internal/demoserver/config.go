package demoserver

// Config holds configuration for the demo catalog.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// Videos is how many demo videos the catalog holds.
	Videos int

	// PageSize is used when a listing call does not send one.
	PageSize int

	// BrokenEvery marks every n-th video's thumbnail as missing at startup.
	// Zero starts with every thumbnail healthy.
	BrokenEvery int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        9999,
		Videos:      250,
		PageSize:    100,
		BrokenEvery: 17,
	}
}
