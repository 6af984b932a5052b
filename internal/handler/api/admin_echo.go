package api

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"tickwatch/internal/domain/models"
	domrepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/instrument"
	"tickwatch/internal/usecase"
	xhttp "tickwatch/pkg/http"
	xlogger "tickwatch/pkg/logger"
)

// Subscriptions is the part of the connection pool the admin API drives.
type Subscriptions interface {
	Subscribe(ctx context.Context, tokens []string, mode int) error
	Status() []models.ConnectionStatus
}

// Instruments resolves symbols to feed tokens.
type Instruments interface {
	Token(symbol string) (string, bool)
	Symbol(token string) (string, bool)
	Tokens(symbols []string) ([]string, error)
}

// AdminEchoHandler serves the operational endpoints.
type AdminEchoHandler struct {
	logger    *xlogger.Logger
	pool      Subscriptions
	dir       Instruments
	snapshots domrepo.SnapshotStore
	subs      domrepo.SubscriberStore
}

func NewAdminEchoHandler(logger *xlogger.Logger, pool Subscriptions, dir Instruments, snapshots domrepo.SnapshotStore, subs domrepo.SubscriberStore) *AdminEchoHandler {
	return &AdminEchoHandler{
		logger:    logger.With("admin_api"),
		pool:      pool,
		dir:       dir,
		snapshots: snapshots,
		subs:      subs,
	}
}

func (h *AdminEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/connections", h.Connections)
	g.POST("/subscriptions", h.Subscribe)
	g.GET("/snapshots/:symbol", h.Snapshot)
	g.POST("/watchlist/:symbol", h.AddWatch)
	g.DELETE("/watchlist/:symbol", h.RemoveWatch)
}

type healthResponse struct {
	Status      string                    `json:"status"`
	Connections []models.ConnectionStatus `json:"connections"`
}

// Health is "ok" when at least one connection is streaming, "degraded" otherwise.
// It always answers 200.
func (h *AdminEchoHandler) Health(c echo.Context) error {
	conns := h.pool.Status()
	status := "degraded"
	for _, cs := range conns {
		if cs.State == models.ConnConnected {
			status = "ok"
			break
		}
	}
	return xhttp.SuccessResponse(c, healthResponse{Status: status, Connections: conns})
}

func (h *AdminEchoHandler) Connections(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.pool.Status())
}

func (h *AdminEchoHandler) Subscribe(c echo.Context) error {
	req := &models.SubscribeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	tokens, err := h.dir.Tokens(req.Symbols)
	var unknown *instrument.UnknownSymbolsError
	if errors.As(err, &unknown) {
		return xhttp.AppErrorResponse(c,
			xhttp.BadRequestErrorf("symbols", "%s", unknown.Error()).WithParam("unknown", unknown.Symbols))
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err))
	}

	err = h.pool.Subscribe(c.Request().Context(), tokens, req.Mode)
	var capErr *usecase.CapacityError
	if errors.As(err, &capErr) {
		return xhttp.AppErrorResponse(c,
			xhttp.ConflictErrorf("%d tokens exceed pool capacity", len(capErr.Unassigned)).
				WithParam("unassigned", capErr.Unassigned))
	}
	if errors.Is(err, usecase.ErrUnsupportedMode) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("mode", "%s", err.Error()))
	}
	if err != nil {
		h.logger.Error("subscribe failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err))
	}

	h.logger.Info("subscribed via api", xlogger.Strings("symbols", req.Symbols), xlogger.Int("mode", req.Mode))
	return xhttp.SuccessResponse(c, map[string]interface{}{"tokens": tokens, "mode": req.Mode})
}

func (h *AdminEchoHandler) Snapshot(c echo.Context) error {
	symbol, ok := h.canonical(c.Param("symbol"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", c.Param("symbol")))
	}

	snap, err := h.snapshots.Get(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("snapshot read failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err))
	}
	if snap.Empty() {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no snapshot for %s", symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, map[string]interface{}{"symbol": symbol, "fields": snap.Fields})
}

func (h *AdminEchoHandler) AddWatch(c echo.Context) error {
	return h.watch(c, h.subs.AddSymbolSubscriber, xhttp.CreatedResponse)
}

func (h *AdminEchoHandler) RemoveWatch(c echo.Context) error {
	return h.watch(c, h.subs.RemoveSymbolSubscriber, xhttp.SuccessResponse)
}

func (h *AdminEchoHandler) watch(c echo.Context, apply func(ctx context.Context, symbol, recipient string) error, respond func(echo.Context, interface{}) error) error {
	symbol, ok := h.canonical(c.Param("symbol"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("symbol", "unknown symbol %s", c.Param("symbol")))
	}
	req := &models.WatchlistRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := apply(c.Request().Context(), symbol, req.Recipient); err != nil {
		h.logger.Error("watchlist update failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err))
	}
	return respond(c, map[string]string{"symbol": symbol, "recipient": req.Recipient})
}

// canonical maps user input to the directory spelling used in store keys.
func (h *AdminEchoHandler) canonical(symbol string) (string, bool) {
	tok, ok := h.dir.Token(symbol)
	if !ok {
		return "", false
	}
	return h.dir.Symbol(tok)
}
