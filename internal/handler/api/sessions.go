package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
)

type blackoutResponse struct {
	Active bool               `json:"active"`
	Events []models.NewsEvent `json:"events"`
}

type sessionsResponse struct {
	Sessions []models.TradingSession `json:"sessions"`
	Open     []string                `json:"open"`
}

func (h *Handler) Sessions(c echo.Context) error {
	return xhttp.SuccessResponse(c, sessionsResponse{
		Sessions: h.gate.GetSessions(),
		Open:     h.gate.OpenSessions(),
	})
}

func (h *Handler) UpdateSession(c echo.Context) error {
	req := &models.UpdateSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	found, err := h.gate.UpdateSession(req.Name, models.SessionPatch{
		Start:    req.Start,
		End:      req.End,
		Timezone: req.Timezone,
		Symbols:  req.Symbols,
		Active:   req.Active,
	})
	if !found {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("session %s not found", req.Name))
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("", "%v", err))
	}
	for _, s := range h.gate.GetSessions() {
		if s.Name == req.Name {
			return xhttp.SuccessResponse(c, s)
		}
	}
	return xhttp.SuccessResponse(c, nil)
}

func (h *Handler) UpcomingNews(c echo.Context) error {
	req := &models.UpcomingNewsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.gate.GetUpcomingNewsEvents(req.Hours)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) AddNews(c echo.Context) error {
	req := &models.AddNewsEventRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts, ok := xhttp.ParseTime(req.Time)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("time", "time must be RFC3339 or unix seconds"))
	}
	ev, err := h.gate.AddNewsEvent(models.NewsEvent{
		Time:          ts,
		Currency:      req.Currency,
		Impact:        req.Impact,
		Title:         req.Title,
		BufferMinutes: req.BufferMinutes,
	})
	if errors.Is(err, usecase.ErrInvalidNewsEvent) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("", "%v", err))
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("add news event").WithError(err))
	}
	return xhttp.CreatedResponse(c, ev)
}

func (h *Handler) Tradeable(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.gate.IsSymbolTradeable(req.Symbol))
}

func (h *Handler) Blackout(c echo.Context) error {
	events := h.gate.ActiveBlackouts()
	if events == nil {
		events = []models.NewsEvent{}
	}
	return xhttp.SuccessResponse(c, blackoutResponse{
		Active: h.gate.IsNewsBlackoutActive(),
		Events: events,
	})
}
