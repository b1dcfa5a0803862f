package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/games24x7-opensource/starlink-ota-sub001/internal/cache"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/service/acquisition"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/service/adoption"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/storage"
	"github.com/games24x7-opensource/starlink-ota-sub001/internal/ws"
)

const healthCheckTimeout = 2 * time.Second

// Router wires the acquisition surface to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	acquisition acquisition.Service
	adoption    *adoption.Service
	upgrader    websocket.Upgrader
	timeout     time.Duration
	dbHealth    func(context.Context) error
	cacheHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	updateCheckResults *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, acqSvc acquisition.Service, adoptionSvc *adoption.Service, timeout time.Duration, dbHealth, cacheHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		acquisition: acqSvc,
		adoption:    adoptionSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		timeout:     timeout,
		dbHealth:    dbHealth,
		cacheHealth: cacheHealth,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/updateCheck", r.audit(r.instrument("updateCheck", r.withTimeout(r.handleUpdateCheck))))
	r.mux.HandleFunc("/reportStatus/download", r.audit(r.instrument("reportDownload", r.withTimeout(r.handleReportDownload))))
	r.mux.HandleFunc("/reportStatus/deploy", r.audit(r.instrument("reportDeploy", r.withTimeout(r.handleReportDeploy))))
	r.mux.HandleFunc("/adoption/", r.audit(r.instrument("adoption", r.withTimeout(r.handleAdoption))))
	r.mux.HandleFunc("/ws/adoption", r.audit(r.handleAdoptionWS))
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
}

func (r *Router) handleUpdateCheck(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	q := req.URL.Query()
	query := acquisition.UpdateQuery{
		DeploymentKey: firstOf(q.Get("deploymentKey"), q.Get("deployment_key")),
		AppVersion:    firstOf(q.Get("appVersion"), q.Get("app_version")),
		ClientID:      firstOf(q.Get("clientUniqueId"), q.Get("client_unique_id")),
		PackageHash:   firstOf(q.Get("packageHash"), q.Get("package_hash")),
		IsCompanion:   isTruthy(firstOf(q.Get("isCompanion"), q.Get("is_companion"))),
	}
	info, err := r.acquisition.CheckUpdate(req.Context(), query)
	if err != nil {
		r.recordUpdateCheckResult("error")
		r.writeServiceError(w, req, err)
		return
	}
	if info.IsAvailable {
		r.recordUpdateCheckResult("available")
	} else {
		r.recordUpdateCheckResult("none")
	}
	writeJSON(w, http.StatusOK, map[string]any{"updateInfo": info})
}

func (r *Router) handleReportDownload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		DeploymentKey     string `json:"deploymentKey"`
		DeploymentKeyAlt  string `json:"deployment_key"`
		Label             string `json:"label"`
		ClientUniqueID    string `json:"clientUniqueId"`
		ClientUniqueIDAlt string `json:"client_unique_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	report := acquisition.DownloadReport{
		DeploymentKey: firstOf(payload.DeploymentKey, payload.DeploymentKeyAlt),
		Label:         payload.Label,
		ClientID:      firstOf(payload.ClientUniqueID, payload.ClientUniqueIDAlt),
	}
	if err := r.acquisition.ReportDownload(req.Context(), report); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (r *Router) handleReportDeploy(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		DeploymentKey                string `json:"deploymentKey"`
		DeploymentKeyAlt             string `json:"deployment_key"`
		AppVersion                   string `json:"appVersion"`
		AppVersionAlt                string `json:"app_version"`
		ClientUniqueID               string `json:"clientUniqueId"`
		ClientUniqueIDAlt            string `json:"client_unique_id"`
		Label                        string `json:"label"`
		Status                       string `json:"status"`
		PreviousDeploymentKey        string `json:"previousDeploymentKey"`
		PreviousDeploymentKeyAlt     string `json:"previous_deployment_key"`
		PreviousLabelOrAppVersion    string `json:"previousLabelOrAppVersion"`
		PreviousLabelOrAppVersionAlt string `json:"previous_label_or_app_version"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	report := acquisition.DeployReport{
		DeploymentKey:             firstOf(payload.DeploymentKey, payload.DeploymentKeyAlt),
		AppVersion:                firstOf(payload.AppVersion, payload.AppVersionAlt),
		ClientID:                  firstOf(payload.ClientUniqueID, payload.ClientUniqueIDAlt),
		Label:                     payload.Label,
		Status:                    payload.Status,
		PreviousDeploymentKey:     firstOf(payload.PreviousDeploymentKey, payload.PreviousDeploymentKeyAlt),
		PreviousLabelOrAppVersion: firstOf(payload.PreviousLabelOrAppVersion, payload.PreviousLabelOrAppVersionAlt),
	}
	if err := r.acquisition.ReportDeploy(req.Context(), report); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (r *Router) handleAdoption(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	deploymentKey := strings.TrimPrefix(req.URL.Path, "/adoption/")
	if deploymentKey == "" || strings.Contains(deploymentKey, "/") {
		r.notFound(w)
		return
	}
	summary, err := r.adoption.Summary(req.Context(), deploymentKey)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (r *Router) handleAdoptionWS(w http.ResponseWriter, req *http.Request) {
	deploymentKey := firstOf(req.URL.Query().Get("deploymentKey"), req.URL.Query().Get("deployment_key"))
	if deploymentKey == "" {
		writeError(w, http.StatusBadRequest, "deploymentKey query parameter required")
		return
	}
	hub := r.adoption.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "adoption streaming disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub.Register(deploymentKey, client)
	go func() {
		defer func() {
			hub.Unregister(deploymentKey, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	check := func(name string, fn func(context.Context) error) {
		if fn == nil {
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			status = "degraded"
			components[name] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components[name] = map[string]any{"status": "up"}
		}
	}
	check("storage", r.dbHealth)
	check("cache", r.cacheHealth)

	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps the service error taxonomy onto the wire contract.
// Handlers never inspect store-specific error shapes.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var invalid *acquisition.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Message)
	case errors.Is(err, acquisition.ErrUnknownDeployment), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusBadRequest, "no such deployment")
	case errors.Is(err, storage.ErrConnectionFailed), errors.Is(err, cache.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusInternalServerError, "service temporarily unavailable")
	default:
		r.logger.Error("request processing failed", "path", req.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (r *Router) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.timeout <= 0 {
			next(w, req)
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), r.timeout)
		defer cancel()
		next(w, req.WithContext(ctx))
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &responseState{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		requestID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// responseState records the outcome of a request and enforces the
// single-send contract for handlers.
type responseState struct {
	http.ResponseWriter
	status int
	bytes  int
	sent   bool
}

func (rs *responseState) markSent() bool {
	if rs.sent {
		return false
	}
	rs.sent = true
	return true
}

func (rs *responseState) WriteHeader(code int) {
	rs.status = code
	rs.ResponseWriter.WriteHeader(code)
}

func (rs *responseState) Write(b []byte) (int, error) {
	if rs.status == 0 {
		rs.status = http.StatusOK
	}
	n, err := rs.ResponseWriter.Write(b)
	rs.bytes += n
	return n, err
}

func (rs *responseState) Flush() {
	if f, ok := rs.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rs *responseState) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rs.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
