package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/attribution"
	"github.com/radiusdt/vector-attribution/internal/catalog"
	"github.com/radiusdt/vector-attribution/internal/config"
	"github.com/radiusdt/vector-attribution/internal/metrics"
	"github.com/radiusdt/vector-attribution/internal/models"
	"github.com/radiusdt/vector-attribution/internal/report"
	"github.com/radiusdt/vector-attribution/internal/storage"
)

const (
	// SessionHeader carries the caller's session id.
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie fallback for browsers.
	SessionCookie = "attribution_session"

	healthTimeout = 2 * time.Second
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Catalog *catalog.Catalog
	Service *report.Service
	Results storage.ResultStore
	Limits  attribution.Limits
	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthCheck
}

// Server wraps the HTTP handlers around the attribution service.
type Server struct {
	service *report.Service
	results storage.ResultStore
	catalog *catalog.Catalog
	limits  attribution.Limits
	checks  map[string]HealthCheck
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		service: deps.Service,
		results: deps.Results,
		catalog: deps.Catalog,
		limits:  deps.Limits,
		checks:  deps.Checks,
		logger:  deps.Logger,
		config:  deps.Config,
		metrics: deps.Metrics,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		mux.Handle(deps.Config.Metrics.Path, deps.Metrics.Handler())
	}

	mux.HandleFunc("/options", s.handleOptions)
	mux.HandleFunc("/attribution", s.handleAttribution)
	mux.HandleFunc("/attribution/export", s.handleExport)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// ---- Options ----

type trackerOptions struct {
	Impressions []string `json:"impressions"`
	Conversions []string `json:"conversions"`
}

type optionsResponse struct {
	Clients       map[string]catalog.ClientOptions `json:"clients"`
	Columns       map[string]catalog.Columns       `json:"columns"`
	Trackers      trackerOptions                   `json:"trackers"`
	MinDate       string                           `json:"min_date"`
	MinWindowDays int                              `json:"min_window_days"`
	MaxWindowDays int                              `json:"max_window_days"`
	Engine        string                           `json:"engine"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	columns := make(map[string]catalog.Columns)
	for _, t := range catalog.ImpressionTrackers() {
		cols, err := catalog.ResolveColumns(t)
		if err != nil {
			continue
		}
		columns[t] = cols
	}

	s.jsonResponse(w, optionsResponse{
		Clients:       s.catalog.Clients,
		Columns:       columns,
		Trackers: trackerOptions{
			Impressions: catalog.ImpressionTrackers(),
			Conversions: catalog.ConversionTrackers(),
		},
		MinDate:       s.limits.MinDate.Format(models.DateLayout),
		MinWindowDays: s.limits.MinWindowDays,
		MaxWindowDays: s.limits.MaxWindowDays,
		Engine:        s.service.Engine(),
	})
}

// ---- Attribution ----

type attributionResponse struct {
	SessionID string     `json:"session_id"`
	ResultID  string     `json:"result_id"`
	Summary   string     `json:"summary"`
	RowCount  int        `json:"row_count"`
	NoData    bool       `json:"no_data"`
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	case http.MethodDelete:
		s.handleDiscard(w, r)
		return
	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	sessionID := s.session(w, r)

	result, err := s.service.Run(r.Context(), req)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	// The held result is replaced even when the new one is empty, so an
	// export never returns rows from an earlier execution.
	putErr := s.results.Put(r.Context(), sessionID, result)
	if s.metrics != nil {
		s.metrics.RecordResultStore("put", putErr)
	}
	if putErr != nil {
		s.logger.Error("failed to hold result",
			zap.String("session_id", sessionID),
			zap.String("result_id", result.ID),
			zap.Error(putErr),
		)
	}

	s.jsonResponse(w, attributionResponse{
		SessionID: sessionID,
		ResultID:  result.ID,
		Summary:   report.Summarize(result),
		RowCount:  len(result.Rows),
		NoData:    result.Empty(),
		Columns:   result.Columns(),
		Rows:      report.Records(result),
	})
}

// handleDiscard drops the session's held result.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionFrom(r)
	if sessionID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	err := s.results.Delete(r.Context(), sessionID)
	if s.metrics != nil {
		s.metrics.RecordResultStore("delete", err)
	}
	if err != nil {
		s.logger.Error("failed to discard held result", zap.String("session_id", sessionID), zap.Error(err))
		s.errorResponse(w, "result store unavailable", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- Export ----

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := sessionFrom(r)
	if sessionID == "" {
		s.errorResponse(w, "no result held for session", http.StatusNotFound)
		return
	}

	result, err := s.results.Get(r.Context(), sessionID)
	if s.metrics != nil && !errors.Is(err, storage.ErrResultNotFound) {
		s.metrics.RecordResultStore("get", err)
	}
	switch {
	case errors.Is(err, storage.ErrResultNotFound):
		s.errorResponse(w, "no result held for session", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("failed to load held result", zap.String("session_id", sessionID), zap.Error(err))
		s.errorResponse(w, "result store unavailable", http.StatusBadGateway)
		return
	case result.Empty():
		s.errorResponse(w, report.NoDataMessage, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="data.csv"`)
	if err := report.WriteCSV(w, result); err != nil {
		s.logger.Error("csv export failed", zap.String("result_id", result.ID), zap.Error(err))
	}
}

// ---- Request parsing ----

// parseRequest reads the form fields from the query string or the body.
// JSON bodies use the same field names as the form.
func parseRequest(r *http.Request) (models.AttributionRequest, error) {
	fields := map[string]string{}

	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Client      string          `json:"client"`
			Impressions string          `json:"impressions"`
			Conversions string          `json:"conversions"`
			Start       string          `json:"start"`
			End         string          `json:"end"`
			Window      json.RawMessage `json:"window"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return models.AttributionRequest{}, &attribution.ValidationError{Field: "body", Reason: "is not valid JSON", Err: err}
		}
		fields["client"] = body.Client
		fields["impressions"] = body.Impressions
		fields["conversions"] = body.Conversions
		fields["start"] = body.Start
		fields["end"] = body.End
		fields["window"] = strings.Trim(string(body.Window), `"`)
	} else {
		if err := r.ParseForm(); err != nil {
			return models.AttributionRequest{}, &attribution.ValidationError{Field: "body", Reason: "is not a valid form", Err: err}
		}
		for _, k := range []string{"client", "impressions", "conversions", "start", "end", "window"} {
			fields[k] = strings.TrimSpace(r.Form.Get(k))
		}
	}

	req := models.AttributionRequest{
		Client:           fields["client"],
		ImpressionSource: fields["impressions"],
		ConversionSource: fields["conversions"],
	}

	var err error
	if req.StartDate, err = parseDate("start_date", fields["start"]); err != nil {
		return req, err
	}
	if req.EndDate, err = parseDate("end_date", fields["end"]); err != nil {
		return req, err
	}

	if fields["window"] == "" {
		return req, &attribution.ValidationError{Field: "window_days", Reason: "is required"}
	}
	window, convErr := strconv.Atoi(fields["window"])
	if convErr != nil {
		return req, &attribution.ValidationError{Field: "window_days", Reason: "must be a whole number of days", Err: convErr}
	}
	req.WindowDays = window

	return req, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &attribution.ValidationError{Field: field, Reason: "is required"}
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, &attribution.ValidationError{Field: field, Reason: "must be YYYY-MM-DD", Err: err}
	}
	return t, nil
}

// ---- Sessions ----

func sessionFrom(r *http.Request) string {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			id = c.Value
		}
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// session returns the caller's session id, minting one if the caller sent
// none or an unusable one, and echoes it back.
func (s *Server) session(w http.ResponseWriter, r *http.Request) string {
	id := sessionFrom(r)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(SessionHeader, id)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.config.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// ---- Helpers ----

// writeRunError maps the attribution error taxonomy onto status codes.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var ve *attribution.ValidationError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": ve.Error(),
			"field": ve.Field,
		})
	case errors.Is(err, context.DeadlineExceeded):
		s.errorResponse(w, "attribution query timed out", http.StatusGatewayTimeout)
	case errors.Is(err, attribution.ErrQueryFailed):
		s.errorResponse(w, "attribution query failed", http.StatusBadGateway)
	default:
		s.logger.Error("unexpected attribution error", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
