package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title Thumbscan API
// @version 0.1
// @description Start thumbnail scans, follow their progress and browse scan history.
// @contact.name Thumbscan Maintainers
// @contact.url https://github.com/raysh454/thumbscan
// @BasePath /
