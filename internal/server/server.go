package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/thumbscan/internal/app"
	"github.com/raysh454/thumbscan/internal/catalog"
	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/store"

	_ "github.com/raysh454/thumbscan/internal/server/docs" // registers the swagger document
)

// Server is the HTTP + WebSocket API surface for thumbscan.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer exposes orch over HTTP. The caller keeps ownership of orch.
func NewServer(cfg Config, orch *app.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: nil orchestrator")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to a configured origin list once the dashboard has a fixed host
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the orchestrator behind the API.
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scans", s.optionsHandler("POST"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/reports", s.optionsHandler("GET"))
	r.Options("/reports/latest", s.optionsHandler("GET"))
	r.Options("/reports/{reportID}", s.optionsHandler("GET"))
	r.Options("/reports/{baseID}/diff/{headID}", s.optionsHandler("GET"))
	r.Options("/deadletters", s.optionsHandler("GET"))
	r.Options("/deadletters/redrive", s.optionsHandler("POST"))
	r.Options("/ws/scans", s.optionsHandler("GET"))

	// Jobs over REST
	r.Post("/scans", s.handleStartScan)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// Report history
	r.Get("/reports", s.handleListReports)
	r.Get("/reports/latest", s.handleLatestReport)
	r.Get("/reports/{reportID}", s.handleGetReport)
	r.Get("/reports/{baseID}/diff/{headID}", s.handleDiffReports)

	// Dead letters
	r.Get("/deadletters", s.handleDeadLetterCount)
	r.Post("/deadletters/redrive", s.handleRedrive)

	// WebSocket for job progress
	r.Get("/ws/scans", s.handleScanWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeAppError maps orchestrator and store errors onto status codes.
func (s *Server) writeAppError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrJobNotFound), errors.Is(err, store.ErrReportNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrHistoryDisabled), errors.Is(err, app.ErrOrchestratorDone):
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn(op, logging.Field{Key: "status", Value: status}, logging.Field{Key: "error", Value: err.Error()})
	writeError(w, status, err.Error())
}

// --- HTTP handlers ---

// Jobs (REST)

// handleStartScan godoc
// @Summary Start a scan job
// @Accept json
// @Produce json
// @Param request body StartScanRequest false "listing filter override"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /scans [post]
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var body StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// The job outlives this request.
	job, err := s.orchestrator.StartScanJob(context.WithoutCancel(r.Context()), body.Filter)
	if err != nil {
		s.writeAppError(w, "starting scan job", err)
		return
	}
	s.logger.Info("started scan job", logging.Field{Key: "job_id", Value: job.ID})
	writeJSON(w, http.StatusAccepted, job)
}

// handleGetJob godoc
// @Summary Get a job snapshot
// @Produce json
// @Param jobID path string true "job id"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.orchestrator.GetJob(jobID)
	if err != nil {
		s.writeAppError(w, "getting job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.orchestrator.CancelJob(jobID); err != nil {
		s.writeAppError(w, "canceling job", err)
		return
	}
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	writeJSON(w, http.StatusOK, jobs)
}

// Reports

// handleListReports godoc
// @Summary List stored scan reports, newest first
// @Produce json
// @Param limit query int false "maximum number of reports"
// @Success 200 {array} model.ReportSummary
// @Failure 503 {object} ErrorResponse
// @Router /reports [get]
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	reports, err := s.orchestrator.ListReports(r.Context(), limit)
	if err != nil {
		s.writeAppError(w, "listing reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.orchestrator.LatestReport(r.Context())
	if err != nil {
		s.writeAppError(w, "getting latest report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.orchestrator.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		s.writeAppError(w, "getting report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDiffReports godoc
// @Summary Compare the defect lists of two reports
// @Produce json
// @Param baseID path string true "older report"
// @Param headID path string true "newer report"
// @Success 200 {object} model.ReportDiff
// @Failure 404 {object} ErrorResponse
// @Router /reports/{baseID}/diff/{headID} [get]
func (s *Server) handleDiffReports(w http.ResponseWriter, r *http.Request) {
	diff, err := s.orchestrator.DiffReports(r.Context(), chi.URLParam(r, "baseID"), chi.URLParam(r, "headID"))
	if err != nil {
		s.writeAppError(w, "diffing reports", err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// Dead letters

func (s *Server) handleDeadLetterCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.orchestrator.DeadLetterCount(r.Context())
	if err != nil {
		s.writeAppError(w, "counting dead letters", err)
		return
	}
	writeJSON(w, http.StatusOK, DeadLetterCountResponse{Queued: n})
}

func (s *Server) handleRedrive(w http.ResponseWriter, r *http.Request) {
	res, err := s.orchestrator.RedriveDeadLetters(r.Context())
	if err != nil {
		s.writeAppError(w, "redriving dead letters", err)
		return
	}
	s.logger.Info("redrove dead letters",
		logging.Field{Key: "processed", Value: res.Stats.Processed},
		logging.Field{Key: "defects", Value: len(res.Defects)})
	writeJSON(w, http.StatusOK, res)
}

// WebSockets

// handleScanWS starts a scan bound to the connection and streams its events.
// The final message is the finished job snapshot.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	job, err := s.orchestrator.StartScanJob(r.Context(), filter)
	if err != nil {
		s.logger.Warn("starting scan job", logging.Field{Key: "error", Value: err.Error()})
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	s.logger.Info("started scan job", logging.Field{Key: "job_id", Value: job.ID})
	_ = conn.WriteJSON(job)

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			_ = s.orchestrator.CancelJob(job.ID)
			return
		}
	}

	if final, err := s.orchestrator.GetJob(job.ID); err == nil {
		_ = conn.WriteJSON(final)
	}
}

// filterFromQuery builds a listing filter from status, categoryId,
// containSubCate and filters. It returns nil when none are set.
func filterFromQuery(r *http.Request) (*catalog.Filter, error) {
	q := r.URL.Query()
	if !q.Has("status") && !q.Has("categoryId") && !q.Has("containSubCate") && !q.Has("filters") {
		return nil, nil
	}

	f := catalog.DefaultFilter()
	if q.Has("status") {
		f.Status = q.Get("status")
	}
	if q.Has("categoryId") {
		id := q.Get("categoryId")
		f.CategoryID = &id
	}
	if q.Has("containSubCate") {
		v, err := strconv.ParseBool(q.Get("containSubCate"))
		if err != nil {
			return nil, errors.New("invalid containSubCate")
		}
		f.ContainSubCate = v
	}
	if q.Has("filters") {
		f.Filters = q.Get("filters")
	}
	return &f, nil
}
