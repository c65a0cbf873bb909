package reconcilehttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rollup/internal/coerce"
	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/erpclient"
	"github.com/odyssey-erp/odyssey-rollup/internal/filter"
	"github.com/odyssey-erp/odyssey-rollup/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rollup/internal/reconcile"
	"github.com/odyssey-erp/odyssey-rollup/internal/shared"
)

const defaultTimeout = 30 * time.Second

// Service is the reporting contract used by the handler.
type Service interface {
	Rollup(ctx context.Context, q reconcile.Query) (reconcile.Report, error)
	Summary(ctx context.Context, q reconcile.SummaryQuery) (reconcile.Summary, error)
	Invalidate(ctx context.Context) error
}

// Handler serves rollup reports over HTTP.
type Handler struct {
	logger  *slog.Logger
	service Service
	timeout time.Duration
}

// NewHandler constructs the rollup HTTP handler. A non-positive timeout
// uses the default.
func NewHandler(logger *slog.Logger, service Service, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{logger: logger, service: service, timeout: timeout}
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	cfg, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := reconcile.Query{
		Dimension: chi.URLParam(r, "dimension"),
		Source:    strings.TrimSpace(r.URL.Query().Get("source")),
		Filter:    cfg,
	}
	if q.Consolidate, err = parseFlag(r, "consolidate"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if q.FillGaps, err = parseFlag(r, "fill_gaps"); err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.service.Rollup(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	cfg, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	summary, err := h.service.Summary(ctx, reconcile.SummaryQuery{
		Source: strings.TrimSpace(r.URL.Query().Get("source")),
		Filter: cfg,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondError covers the pipeline failures the generic mapper does not know.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var fetchErr *erpclient.FetchError
	var integrityErr *dedup.IntegrityError
	switch {
	case errors.As(err, &fetchErr):
		h.log().Error("erp fetch failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Title:  "Upstream Fetch Failed",
			Status: http.StatusBadGateway,
			Detail: fmt.Sprintf("table %s failed on page %d", fetchErr.Table, fetchErr.Page),
			Extensions: map[string]any{
				"table":           fetchErr.Table,
				"page":            fetchErr.Page,
				"upstream_status": fetchErr.Status,
			},
		})
	case errors.As(err, &integrityErr):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Title:  "Consolidation Integrity Failure",
			Status: http.StatusConflict,
			Detail: integrityErr.Error(),
			Extensions: map[string]any{
				"raw":          integrityErr.Before,
				"consolidated": integrityErr.After,
			},
		})
	default:
		if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrUnknownDimension) && !errors.Is(err, shared.ErrUnknownSource) {
			h.log().Error("rollup request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}

func (h *Handler) log() *slog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

// parseFilter reads the filter parameters. Format checks are left to
// filter.Config.Validate so every entry point reports them the same way.
func parseFilter(r *http.Request) (filter.Config, error) {
	values := r.URL.Query()
	cfg := filter.Config{
		Year:          strings.TrimSpace(values.Get("year")),
		Month:         strings.TrimSpace(values.Get("month")),
		DateFrom:      strings.TrimSpace(values.Get("from")),
		DateTo:        strings.TrimSpace(values.Get("to")),
		Store:         strings.TrimSpace(values.Get("store")),
		Client:        strings.TrimSpace(values.Get("client")),
		Vendor:        strings.TrimSpace(values.Get("vendor")),
		PaymentMethod: strings.TrimSpace(values.Get("payment_method")),
		Text:          strings.TrimSpace(values.Get("q")),
	}
	if raw := strings.TrimSpace(values.Get("min_amount")); raw != "" {
		v, ok := coerce.Float(raw)
		if !ok {
			return filter.Config{}, fmt.Errorf("%w: min_amount %q is not a number", shared.ErrValidation, raw)
		}
		cfg.MinAmount = &v
	}
	return cfg, nil
}

func parseFlag(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", shared.ErrValidation, name)
	}
	return v, nil
}
