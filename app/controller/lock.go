package controller

import (
	"errors"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-mutex/app/dto"
	"github.com/vibast-solutions/ms-go-mutex/app/lock"
	"github.com/vibast-solutions/ms-go-mutex/app/mutex"
)

// LockController exposes one process-wide Manager over HTTP so co-located
// workers can share its locks. Callers on the same host are trusted: any of
// them may release a lock taken by another.
type LockController struct {
	manager *mutex.Manager
	store   lock.Store
	logger  logrus.FieldLogger
}

// NewLockController constructs the HTTP lock controller.
func NewLockController(manager *mutex.Manager, store lock.Store, logger logrus.FieldLogger) *LockController {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LockController{manager: manager, store: store, logger: logger}
}

// Acquire takes the named lock, waiting up to timeout_ms.
func (c *LockController) Acquire(ctx echo.Context) error {
	req, ok, err := c.bind(ctx)
	if !ok {
		return err
	}

	acquired, err := c.manager.AcquireWithTTL(ctx.Request().Context(), req.Name, req.Timeout(), req.TTL())
	if err != nil {
		if errors.Is(err, mutex.ErrAlreadyHeld) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "lock already held by this server"})
		}
		c.logger.WithField("lock", req.Name).WithError(err).Error("Acquire failed")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "lock store unavailable"})
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"acquired": acquired})
}

// Release frees the named lock.
func (c *LockController) Release(ctx echo.Context) error {
	req, ok, err := c.bind(ctx)
	if !ok {
		return err
	}

	released, err := c.manager.Release(ctx.Request().Context(), req.Name)
	if err != nil {
		return c.storeError(ctx, req.Name, "Release", err)
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"released": released})
}

// Refresh extends the named lock to ttl_ms, or its original TTL.
func (c *LockController) Refresh(ctx echo.Context) error {
	req, ok, err := c.bind(ctx)
	if !ok {
		return err
	}

	refreshed, err := c.manager.Refresh(ctx.Request().Context(), req.Name, req.TTL())
	if err != nil {
		return c.storeError(ctx, req.Name, "Refresh", err)
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"refreshed": refreshed})
}

func (c *LockController) storeError(ctx echo.Context, name, op string, err error) error {
	if errors.Is(err, lock.ErrNotConnected) {
		c.logger.WithField("lock", name).WithError(err).Error(op + " failed")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "lock store unavailable"})
	}
	return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// Status reports the local view of the named lock.
func (c *LockController) Status(ctx echo.Context) error {
	req, ok, err := c.bind(ctx)
	if !ok {
		return err
	}

	resp := dto.LockStatusResponse{
		Name:     req.Name,
		Acquired: c.manager.IsAcquired(req.Name),
		Expired:  c.manager.IsExpired(req.Name),
	}
	if remaining, tracked := c.manager.RemainingLifetime(req.Name); tracked {
		ms := remaining.Milliseconds()
		resp.RemainingMS = &ms
	}
	return ctx.JSON(http.StatusOK, resp)
}

// List returns the names currently held by this server.
func (c *LockController) List(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string][]string{"locks": c.manager.Held()})
}

// Health pings the lock store.
func (c *LockController) Health(ctx echo.Context) error {
	if err := c.store.Ping(ctx.Request().Context()); err != nil {
		c.logger.WithError(err).Warn("Lock store health check failed")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics writes the Prometheus exposition of the lock metrics.
func (c *LockController) Metrics(ctx echo.Context) error {
	ctx.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4")
	ctx.Response().WriteHeader(http.StatusOK)
	metrics.WritePrometheus(ctx.Response(), true)
	return nil
}

// bind parses and validates the request; when ok is false the error response
// has already been written and err is what the handler should return.
func (c *LockController) bind(ctx echo.Context) (dto.LockRequest, bool, error) {
	req, err := dto.FromEchoContext(ctx)
	if err != nil {
		return req, false, ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return req, false, ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return req, true, nil
}
