package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	xlogger "SignalDesk/pkg/logger"
)

// Signals lists active signals for one symbol, or for every symbol when none is given.
func (h *Handler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol == "" {
		return xhttp.SuccessResponse(c, h.engine.GetAllActiveSignals())
	}
	rows := h.engine.GetSignalsForSymbol(req.Symbol)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.engine.GetSignalHistory(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) Consensus(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cs := h.engine.GetConsensusSignal(req.Symbol)
	if cs == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no consensus for %s", req.Symbol))
	}
	return xhttp.SuccessResponse(c, cs)
}

// Archive queries persisted signals. It is only available with a signal archive.
func (h *Handler) Archive(c echo.Context) error {
	if h.archive == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("signal archive is not configured"))
	}
	req := &models.ArchiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := time.Now().UTC()
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("to", "to must be RFC3339 or unix seconds"))
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from", "from must be RFC3339 or unix seconds"))
		}
		from = t
	}
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from", "from must be <= to"))
	}

	rows, err := h.archive.Query(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("signal archive query error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("archive query failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Generate runs one cycle for the requested symbols. Symbols without market
// data are reported in the response; the request fails only if none succeeded.
func (h *Handler) Generate(c echo.Context) error {
	req := &models.GenerateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	report, err := h.engine.GenerateSignals(c.Request().Context(), req.Symbols)
	if err != nil {
		h.logger.Warn("manual signal cycle had failures",
			xlogger.Strings("symbols", req.Symbols),
			xlogger.Error(err),
		)
		if !errors.Is(err, usecase.ErrMissingMarketData) || len(report.Failed) == len(report.Symbols) {
			return xhttp.AppErrorResponse(c, xhttp.UnprocessableErrorf("signal generation failed").
				WithParam("failed", report.Failed).
				WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *Handler) Providers(c echo.Context) error {
	rows := h.engine.GetProviders()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) EnableProvider(c echo.Context) error {
	return h.toggleProvider(c, true)
}

func (h *Handler) DisableProvider(c echo.Context) error {
	return h.toggleProvider(c, false)
}

func (h *Handler) toggleProvider(c echo.Context, enable bool) error {
	req := &models.ProviderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ok := h.engine.DisableProvider
	if enable {
		ok = h.engine.EnableProvider
	}
	if !ok(req.ID) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("provider %s not found", req.ID))
	}
	for _, p := range h.engine.GetProviders() {
		if p.ID == req.ID {
			return xhttp.SuccessResponse(c, p)
		}
	}
	return xhttp.SuccessResponse(c, nil)
}
