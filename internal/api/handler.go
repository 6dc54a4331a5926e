package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/datacap/internal/billing"
	"github.com/vnmchuo/datacap/internal/report"
	"github.com/vnmchuo/datacap/pkg/ratelimit"
)

const (
	defaultReportCycles = 3
	maxReportCycles     = 120
	dateLayout          = "2006-01-02"
)

// Invalidator drops cached data for the cycle containing date.
type Invalidator interface {
	Invalidate(ctx context.Context, clientID int64, date time.Time) error
}

type Handler struct {
	store        billing.Store
	reports      *report.Assembler
	cache        Invalidator
	limiter      *ratelimit.Limiter
	defaultCapGB float64
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewHandler wires the HTTP handlers. cache and limiter may be nil.
func NewHandler(store billing.Store, reports *report.Assembler, cache Invalidator, limiter *ratelimit.Limiter, defaultCapGB float64, tracer trace.Tracer, logger *zap.Logger) *Handler {
	return &Handler{
		store:        store,
		reports:      reports,
		cache:        cache,
		limiter:      limiter,
		defaultCapGB: defaultCapGB,
		tracer:       tracer,
		logger:       logger,
	}
}

func (h *Handler) HandleListClients(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.reports.ClientSummaries(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"clients": summaries})
}

func (h *Handler) HandleGetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	current, err := h.reports.CurrentCycleView(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"client":           client,
		"cycle_label":      current.CycleLabel,
		"current_usage":    current.TotalUsage,
		"usage_percentage": current.UsagePercentage,
		"forecast":         current.Forecast,
	})
}

func (h *Handler) HandleCurrentUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	view, err := h.reports.CurrentCycleView(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleHistoricalUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	cycles, err := h.reports.HistoricalView(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cycles": cycles})
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	n, mode, ok := reportParams(w, r)
	if !ok {
		return
	}
	rep, err := h.reports.PointInTimeReport(r.Context(), id, n, mode)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) HandleReportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !h.allowExport(w, r, id) {
		return
	}

	var buf bytes.Buffer
	if err := h.reports.WriteCSV(r.Context(), &buf, id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=%s", report.CSVFilename(client.Name)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) HandleReportPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	n, mode, ok := reportParams(w, r)
	if !ok {
		return
	}
	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !h.allowExport(w, r, id) {
		return
	}

	var buf bytes.Buffer
	if err := h.reports.WritePDF(r.Context(), &buf, id, n, mode); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=%s", report.PDFFilename(client.Name)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type createClientRequest struct {
	Name           string   `json:"name"`
	MonthlyLimitGB *float64 `json:"monthly_limit_gb"`
}

func (h *Handler) HandleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	capGB := h.defaultCapGB
	if req.MonthlyLimitGB != nil {
		capGB = *req.MonthlyLimitGB
	}
	if capGB <= 0 {
		writeError(w, http.StatusBadRequest, "monthly_limit_gb must be positive")
		return
	}

	client := &billing.Client{Name: req.Name, MonthlyLimitGB: capGB}
	if err := h.store.CreateClient(r.Context(), client); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.logger.Info("client created", zap.Int64("client_id", client.ID), zap.String("name", client.Name))
	writeJSON(w, http.StatusCreated, client)
}

type setCapRequest struct {
	MonthlyLimitGB float64 `json:"monthly_limit_gb"`
}

func (h *Handler) HandleSetCap(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req setCapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MonthlyLimitGB <= 0 {
		writeError(w, http.StatusBadRequest, "monthly_limit_gb must be positive")
		return
	}
	if err := h.store.SetClientCap(r.Context(), id, req.MonthlyLimitGB); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

type addUsageRequest struct {
	Date    string  `json:"date"`
	UsageGB float64 `json:"usage_gb"`
}

func (h *Handler) HandleAddUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req addUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'date' format (use YYYY-MM-DD)")
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "api.add_usage")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("client_id", id),
		attribute.String("date", req.Date),
	)

	rec := &billing.UsageRecord{ClientID: id, Date: date, UsageGB: req.UsageGB}
	if err := h.store.AddUsage(ctx, rec); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, id, date); err != nil {
			h.logger.Warn("failed to invalidate cached cycle", zap.Int64("client_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, rec)
}

// allowExport spends one export for clientID and reports the remaining budget
// in X-RateLimit-* headers. A limiter error denies the export.
func (h *Handler) allowExport(w http.ResponseWriter, r *http.Request, clientID int64) bool {
	res, err := h.limiter.AllowExport(r.Context(), clientID)
	if err != nil {
		h.logger.Warn("rate limiter error", zap.Int64("client_id", clientID), zap.Error(err))
		res = nil
	}
	if res != nil && res.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(res.Remaining, 0), 10))
	}
	if res != nil && res.Allowed {
		return true
	}

	retry := time.Minute
	if res != nil && res.ResetAfter > 0 {
		retry = res.ResetAfter.Round(time.Second)
		if retry < time.Second {
			retry = time.Second
		}
	}
	secs := int64(retry / time.Second)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error":       "rate limit exceeded",
		"retry_after": fmt.Sprintf("%ds", secs),
	})
	return false
}

// writeStoreError maps domain errors to status codes. Anything unexpected is
// logged and reported as a 500 without details.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client not found")
	case errors.Is(err, billing.ErrClientExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, billing.ErrInvalidUsage),
		errors.Is(err, billing.ErrEmptyClientName),
		errors.Is(err, report.ErrInvalidMode),
		errors.Is(err, report.ErrInvalidCycles):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func clientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return 0, false
	}
	return id, true
}

func reportParams(w http.ResponseWriter, r *http.Request) (int, report.Mode, bool) {
	q := r.URL.Query()
	n := defaultReportCycles
	if s := q.Get("cycles"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 || v > maxReportCycles {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("'cycles' must be between 1 and %d", maxReportCycles))
			return 0, "", false
		}
		n = v
	}
	mode, err := report.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, "", false
	}
	return n, mode, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
