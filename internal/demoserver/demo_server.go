package demoserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	statusPublished = 61
	statusDeleted   = -1
)

type video struct {
	ID        string
	Status    int
	ThumbGone bool
}

// DemoServer emulates the listing, metadata and thumbnail endpoints of the
// video platform so scans can be tried locally. Thumbnails can be broken and
// repaired at runtime through the /demo control endpoints.
type DemoServer struct {
	cfg Config

	mu     sync.RWMutex
	videos []video
	index  map[string]int
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	s := &DemoServer{cfg: cfg}
	s.reset()
	return s
}

func (s *DemoServer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = make([]video, s.cfg.Videos)
	s.index = make(map[string]int, s.cfg.Videos)
	for i := range s.videos {
		id := fmt.Sprintf("demo%05d", i+1)
		s.videos[i] = video{
			ID:        id,
			Status:    statusPublished,
			ThumbGone: s.cfg.BrokenEvery > 0 && (i+1)%s.cfg.BrokenEvery == 0,
		}
		s.index[id] = i
	}
}

// Handler returns the demo routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v2/video/search", s.listHandler)
	mux.HandleFunc("/videojson/", s.metadataHandler)
	mux.HandleFunc("/img/", s.thumbHandler)

	// Control endpoints
	mux.HandleFunc("/demo/state", s.stateHandler)
	mux.HandleFunc("/demo/break", s.mutateHandler(func(v *video) { v.ThumbGone = true }))
	mux.HandleFunc("/demo/repair", s.mutateHandler(func(v *video) { v.ThumbGone = false }))
	mux.HandleFunc("/demo/delete", s.mutateHandler(func(v *video) { v.Status = statusDeleted }))
	mux.HandleFunc("/demo/reset", s.resetHandler)
	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo catalog starting on http://localhost%s\n", addr)
	fmt.Printf("Listing URL:   http://localhost%s/v2/video/search\n", addr)
	fmt.Printf("Metadata URL:  http://localhost%s/videojson/%%s.js\n", addr)
	fmt.Printf("Broken thumbs: http://localhost%s/demo/state\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// listHandler answers paged listing calls. Signatures are not verified.
func (s *DemoServer) listHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		q = r.Form
	}

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(q.Get("pageSize"))
	if err != nil || size < 1 {
		size = s.cfg.PageSize
	}

	s.mu.RLock()
	total := len(s.videos)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	contents := make([]map[string]string, 0, end-start)
	for _, v := range s.videos[start:end] {
		contents = append(contents, map[string]string{"vid": v.ID})
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":   200,
		"status": "success",
		"data": map[string]any{
			"pageSize":    size,
			"currentPage": page,
			"totalPage":   (total + size - 1) / size,
			"totalItems":  total,
			"contents":    contents,
		},
	})
}

// metadataHandler serves player metadata with the ",," artifacts the real
// endpoint emits.
func (s *DemoServer) metadataHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/videojson/"), ".js")
	v, ok := s.lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	thumb := fmt.Sprintf("http://%s/img/%s.jpg", r.Host, v.ID)
	w.Header().Set("Content-Type", "application/javascript")
	_, _ = fmt.Fprintf(w, `{"vid":%q,"status":%d,"hlsLevel":[1,,2],"first_image_b":%q,"seed":0}`, v.ID, v.Status, thumb)
}

func (s *DemoServer) thumbHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/img/"), ".jpg")
	v, ok := s.lookup(id)
	if !ok || v.ThumbGone {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
}

func (s *DemoServer) lookup(id string) (video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return video{}, false
	}
	return s.videos[i], true
}

// Broken lists the ids whose thumbnail is currently missing, skipping
// deleted videos.
func (s *DemoServer) Broken() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, v := range s.videos {
		if v.ThumbGone && v.Status != statusDeleted {
			out = append(out, v.ID)
		}
	}
	sort.Strings(out)
	return out
}

// stateHandler reports which videos a scan should flag.
func (s *DemoServer) stateHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	total := len(s.videos)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total":  total,
		"broken": s.Broken(),
	})
}

// mutateHandler applies fn to the video named by the id form value.
func (s *DemoServer) mutateHandler(fn func(v *video)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.FormValue("id")

		s.mu.Lock()
		i, ok := s.index[id]
		if ok {
			fn(&s.videos[i])
		}
		s.mu.Unlock()

		if !ok {
			http.Error(w, "Unknown video id", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": id})
	}
}

func (s *DemoServer) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.reset()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
}
