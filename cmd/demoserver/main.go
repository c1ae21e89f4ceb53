// Command demoserver starts a local stand-in for the video platform so scans
// can be tried without credentials.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/thumbscan/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   Thumbscan Demo Catalog")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Printf("Serving %d videos, every %dth thumbnail is missing.\n", cfg.Videos, cfg.BrokenEvery)
	fmt.Println("Point a scan at it with:")
	fmt.Printf("  THUMBSCAN_LIST_URL=http://localhost:%d/v2/video/search \\\n", cfg.Port)
	fmt.Printf("  THUMBSCAN_METADATA_URL=http://localhost:%d/videojson/%%s.js \\\n", cfg.Port)
	fmt.Println("  THUMBSCAN_USER_ID=demo THUMBSCAN_SECRET_KEY=demo thumbscan scan")
	fmt.Println()
	fmt.Println("Control endpoints (POST id=<vid>):")
	fmt.Println("  /demo/break  /demo/repair  /demo/delete  /demo/reset")
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
