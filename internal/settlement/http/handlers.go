// Package settlementhttp exposes settlement queries and dashboard sessions over HTTP.
package settlementhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/settlement/internal/drilldown"
	"github.com/odyssey-erp/settlement/internal/platform/httpx"
	"github.com/odyssey-erp/settlement/internal/settlement"
)

// Sessions stores dashboard controllers by session id.
type Sessions interface {
	Create(sellerID int64) (uuid.UUID, *drilldown.Controller)
	Get(id uuid.UUID) (*drilldown.Controller, error)
	Delete(id uuid.UUID) bool
	Len() int
}

// SessionGauge publishes the number of open sessions.
type SessionGauge interface {
	SetSessions(n int)
}

// Handler serves the settlement API.
type Handler struct {
	logger   *slog.Logger
	fetcher  drilldown.Fetcher
	sessions Sessions
	gauge    SessionGauge
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
	maxDaily int
}

// NewHandler constructs the settlement HTTP handler.
func NewHandler(logger *slog.Logger, fetcher drilldown.Fetcher, sessions Sessions, gauge SessionGauge) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		logger:   logger,
		fetcher:  fetcher,
		sessions: sessions,
		gauge:    gauge,
		validate: validate,
		loc:      time.UTC,
		now:      time.Now,
		maxDaily: settlement.DefaultMaxDailySpanDays,
	}
}

// WithMaxDailySpan caps the days a daily query may cover.
func (h *Handler) WithMaxDailySpan(days int) {
	if days > 0 {
		h.maxDaily = days
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type queryResponse struct {
	Records  []settlement.Record  `json:"records"`
	Summary  settlement.Record    `json:"summary"`
	PageMeta *settlement.PageMeta `json:"pageMeta"`
}

type sessionResponse struct {
	SessionID uuid.UUID      `json:"sessionId"`
	View      drilldown.View `json:"view"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	sellerID, err := sellerIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	params, err := h.parseQuery(r, sellerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), params)
	if errors.Is(err, settlement.ErrRangeTooLong) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err != nil {
		h.logger.Warn("settlement query failed", slog.Int64("seller_id", sellerID), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", settlement.UserMessage(err))
		return
	}
	records := res.Records
	if records == nil {
		records = []settlement.Record{}
	}
	httpx.JSON(w, http.StatusOK, queryResponse{
		Records:  records,
		Summary:  settlement.Summarize(records, params.Period, params.Range),
		PageMeta: res.PageMeta,
	})
}

func (h *Handler) parseQuery(r *http.Request, sellerID int64) (settlement.FetchParams, error) {
	q := r.URL.Query()
	req := queryRequest{
		Period: strings.ToLower(strings.TrimSpace(q.Get("period"))),
		From:   strings.TrimSpace(q.Get("from")),
		To:     strings.TrimSpace(q.Get("to")),
		Status: strings.TrimSpace(q.Get("status")),
	}
	var err error
	if req.Page, err = intParam(q.Get("page"), 0); err != nil {
		return settlement.FetchParams{}, fmt.Errorf("%w: page must be a number", httpx.ErrValidation)
	}
	if req.Size, err = intParam(q.Get("size"), 0); err != nil {
		return settlement.FetchParams{}, fmt.Errorf("%w: size must be a number", httpx.ErrValidation)
	}
	if err := h.validate.Struct(req); err != nil {
		return settlement.FetchParams{}, validationFailure(err)
	}

	period := settlement.GranularityAll
	if req.Period != "" {
		period = settlement.Granularity(req.Period)
	}
	params := settlement.FetchParams{
		SellerID: sellerID,
		Period:   period,
		Page:     req.Page,
		Size:     req.Size,
		Status:   settlement.StatusFilter(req.Status),
	}

	today := h.now().In(h.loc)
	switch {
	case req.From != "":
		from, _ := settlement.ParseDay(req.From, h.loc)
		to, _ := settlement.ParseDay(req.To, h.loc)
		if from.After(to) {
			return settlement.FetchParams{}, fmt.Errorf("%w: from must not be after to", httpx.ErrValidation)
		}
		params.Range = settlement.DateRange{From: from, To: settlement.EndOfDay(to)}
		if period == settlement.GranularityDaily && params.Range.SpanDays() > h.maxDaily {
			return settlement.FetchParams{}, fmt.Errorf("%w: daily queries cover at most %d days", httpx.ErrValidation, h.maxDaily)
		}
	case period == settlement.GranularityAll:
		params.Range = settlement.DefaultAllRange(today)
	default:
		params.Range = settlement.ComputeRange(period, today)
	}
	return params, nil
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sellerID, err := sellerIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ctrl := h.sessions.Create(sellerID)
	h.publishSessions()
	if err := ctrl.Load(r.Context()); err != nil && !errors.Is(err, drilldown.ErrSuperseded) {
		h.logger.Warn("initial dashboard load failed", slog.String("session_id", id.String()), slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, sessionResponse{SessionID: id, View: ctrl.View()})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.session(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ctrl.View())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !h.sessions.Delete(id) {
		httpx.RespondError(w, fmt.Errorf("%w: session %s", httpx.ErrNotFound, id))
		return
	}
	h.publishSessions()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	h.transition(w, r, &req, func(ctx context.Context, ctrl *drilldown.Controller) error {
		return ctrl.SetPeriod(ctx, settlement.Granularity(req.Period))
	})
}

func (h *Handler) handleSetRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	h.transition(w, r, &req, func(ctx context.Context, ctrl *drilldown.Controller) error {
		from, _ := settlement.ParseDay(req.From, h.loc)
		to, _ := settlement.ParseDay(req.To, h.loc)
		return ctrl.SetDateRange(ctx, settlement.DateRange{From: from, To: to})
	})
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	h.transition(w, r, &req, func(ctx context.Context, ctrl *drilldown.Controller) error {
		return ctrl.SetStatus(ctx, settlement.StatusFilter(strings.TrimSpace(req.Status)))
	})
}

func (h *Handler) handleSetPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	h.transition(w, r, &req, func(ctx context.Context, ctrl *drilldown.Controller) error {
		return ctrl.SetPageIndex(ctx, *req.PageIndex)
	})
}

func (h *Handler) handleSetPageSize(w http.ResponseWriter, r *http.Request) {
	var req pageSizeRequest
	h.transition(w, r, &req, func(ctx context.Context, ctrl *drilldown.Controller) error {
		return ctrl.SetPageSize(ctx, req.PageSize)
	})
}

func (h *Handler) handleDrill(w http.ResponseWriter, r *http.Request) {
	var req drillRequest
	h.transition(w, r, &req, func(ctx context.Context, ctrl *drilldown.Controller) error {
		return ctrl.DrillInto(ctx, req.token())
	})
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, nil, func(ctx context.Context, ctrl *drilldown.Controller) error {
		return ctrl.BackToBase(ctx)
	})
}

// transition resolves the session, decodes and validates body when given,
// applies fn and renders the resulting view.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, body any, fn func(context.Context, *drilldown.Controller) error) {
	ctrl, err := h.session(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if body != nil {
		if err := httpx.DecodeJSON(r, body); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: malformed body: %v", httpx.ErrValidation, err))
			return
		}
		if err := h.validate.Struct(body); err != nil {
			httpx.RespondError(w, validationFailure(err))
			return
		}
	}

	err = fn(r.Context(), ctrl)
	switch {
	case err == nil, errors.Is(err, drilldown.ErrSuperseded):
	case errors.Is(err, drilldown.ErrNotAtBase):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
		return
	case isInvalidTransition(err):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	default:
		view := ctrl.View()
		if view.Error == nil {
			h.logger.Error("dashboard transition", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, view)
		return
	}
	httpx.JSON(w, http.StatusOK, ctrl.View())
}

func isInvalidTransition(err error) bool {
	for _, target := range []error{
		drilldown.ErrInvalidDrillToken,
		drilldown.ErrInvalidRange,
		drilldown.ErrInvalidPageSize,
		drilldown.ErrInvalidPageIndex,
		settlement.ErrInvalidGranularity,
		settlement.ErrRangeTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) session(r *http.Request) (*drilldown.Controller, error) {
	id, err := sessionIDParam(r)
	if err != nil {
		return nil, err
	}
	ctrl, err := h.sessions.Get(id)
	if err != nil {
		if errors.Is(err, drilldown.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: session %s", httpx.ErrNotFound, id)
		}
		return nil, err
	}
	return ctrl, nil
}

func (h *Handler) publishSessions() {
	if h.gauge != nil {
		h.gauge.SetSessions(h.sessions.Len())
	}
}

func sellerIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "sellerID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid seller id %q", httpx.ErrValidation, raw)
	}
	return id, nil
}

func sessionIDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "sessionID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid session id %q", httpx.ErrValidation, raw)
	}
	return id, nil
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
