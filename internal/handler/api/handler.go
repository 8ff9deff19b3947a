package api

import (
	"github.com/labstack/echo/v4"

	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/usecase"
	xlogger "SignalDesk/pkg/logger"
)

// Handler serves the signal, provider, session and news endpoints.
type Handler struct {
	logger  *xlogger.Logger
	engine  *usecase.SignalEngine
	gate    *usecase.SessionGate
	archive domrepo.SignalArchive
	limiter *ratelimit.Limiter
}

// NewHandler builds the API handler. archive and limiter may be nil.
func NewHandler(logger *xlogger.Logger, engine *usecase.SignalEngine, gate *usecase.SessionGate, archive domrepo.SignalArchive, limiter *ratelimit.Limiter) *Handler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &Handler{logger: logger, engine: engine, gate: gate, archive: archive, limiter: limiter}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	limited := ratelimit.Middleware(h.limiter)

	g.GET("/signals", h.Signals)
	g.GET("/signals/history", h.History)
	g.GET("/signals/consensus", h.Consensus)
	g.GET("/signals/archive", h.Archive)
	g.POST("/signals/generate", h.Generate, limited)

	g.GET("/providers", h.Providers)
	g.POST("/providers/:id/enable", h.EnableProvider, limited)
	g.POST("/providers/:id/disable", h.DisableProvider, limited)

	g.GET("/sessions", h.Sessions)
	g.PATCH("/sessions/:name", h.UpdateSession, limited)

	g.GET("/news", h.UpcomingNews)
	g.POST("/news", h.AddNews, limited)

	g.GET("/tradeable", h.Tradeable)
	g.GET("/blackout", h.Blackout)
}
