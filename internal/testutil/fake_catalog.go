package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// FakeVideo describes one entry served by FakeCatalog.
type FakeVideo struct {
	ID     string
	Status int

	// ThumbStatus is the HTTP status of the thumbnail. Zero means 200.
	ThumbStatus int

	// NoThumbnail leaves first_image_b out of the metadata.
	NoThumbnail bool

	// Metadata replaces the generated metadata document when non-empty.
	Metadata string

	// MetadataStatus is the HTTP status of the metadata endpoint. Zero means 200.
	MetadataStatus int
}

// FakeCatalog emulates the listing, metadata and thumbnail endpoints.
// Generated metadata contains ",," artifacts the way the real endpoint does.
type FakeCatalog struct {
	Server   *httptest.Server
	PageSize int

	mu         sync.Mutex
	videos     []FakeVideo
	listCalls  int
	probeCalls int
	// ListError, when non-zero, is returned as the envelope code of every
	// listing call.
	ListError int
}

func NewFakeCatalog(pageSize int, videos ...FakeVideo) *FakeCatalog {
	if pageSize <= 0 {
		pageSize = 100
	}
	c := &FakeCatalog{PageSize: pageSize, videos: videos}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/video/search", c.serveList)
	mux.HandleFunc("/videojson/", c.serveMetadata)
	mux.HandleFunc("/img/", c.serveThumb)
	c.Server = httptest.NewServer(mux)
	return c
}

func (c *FakeCatalog) Close() { c.Server.Close() }

func (c *FakeCatalog) Client() *http.Client { return c.Server.Client() }

func (c *FakeCatalog) ListURL() string { return c.Server.URL + "/v2/video/search" }

func (c *FakeCatalog) MetadataURL() string { return c.Server.URL + "/videojson/%s.js" }

func (c *FakeCatalog) ThumbURL(id string) string { return c.Server.URL + "/img/" + id + ".jpg" }

func (c *FakeCatalog) SetListError(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ListError = code
}

func (c *FakeCatalog) ListCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

func (c *FakeCatalog) ProbeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeCalls
}

func (c *FakeCatalog) video(id string) (FakeVideo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.videos {
		if v.ID == id {
			return v, true
		}
	}
	return FakeVideo{}, false
}

func (c *FakeCatalog) serveList(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.listCalls++
	listErr := c.ListError
	videos := append([]FakeVideo(nil), c.videos...)
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	if listErr != 0 {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": listErr, "status": "error", "message": "listing rejected"})
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size := c.PageSize
	if s, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && s > 0 {
		size = s
	}
	totalPage := (len(videos) + size - 1) / size
	start := min((page-1)*size, len(videos))
	end := min(start+size, len(videos))

	contents := make([]map[string]string, 0, end-start)
	for _, v := range videos[start:end] {
		contents = append(contents, map[string]string{"vid": v.ID})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":   200,
		"status": "success",
		"data": map[string]any{
			"pageSize":    size,
			"currentPage": page,
			"totalPage":   totalPage,
			"totalItems":  len(videos),
			"contents":    contents,
		},
	})
}

func (c *FakeCatalog) serveMetadata(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/videojson/"), ".js")
	v, ok := c.video(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if v.MetadataStatus != 0 && v.MetadataStatus != http.StatusOK {
		w.WriteHeader(v.MetadataStatus)
		return
	}
	if v.Metadata != "" {
		_, _ = io.WriteString(w, v.Metadata)
		return
	}
	thumb := ""
	if !v.NoThumbnail {
		thumb = fmt.Sprintf(`,"first_image_b":%q`, c.ThumbURL(v.ID))
	}
	_, _ = fmt.Fprintf(w, `{"vid":%q,"status":%d,"hlsLevel":[1,,2]%s,"seed":0}`, v.ID, v.Status, thumb)
}

func (c *FakeCatalog) serveThumb(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.probeCalls++
	c.mu.Unlock()

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/img/"), ".jpg")
	v, ok := c.video(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if v.ThumbStatus != 0 && v.ThumbStatus != http.StatusOK {
		w.WriteHeader(v.ThumbStatus)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
}
