package validator

const DefaultMetadataURL = "https://player.polyv.net/videojson/%s.js"

type Config struct {
	// MetadataURL is a fmt template with a single %s for the video id.
	MetadataURL string

	// Encoding is used to decode metadata documents.
	Encoding string
}

func DefaultConfig() Config {
	return Config{MetadataURL: DefaultMetadataURL}
}
