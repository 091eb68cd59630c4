package dto

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	ErrMissingName     = errors.New("lock name is required")
	ErrNegativeTimeout = errors.New("timeout_ms must not be negative")
	ErrNegativeTTL     = errors.New("ttl_ms must not be negative")
)

type LockRequest struct {
	Name      string `param:"name" json:"-"`
	TimeoutMS int64  `json:"timeout_ms"`
	TTLMS     int64  `json:"ttl_ms"`
}

type LockStatusResponse struct {
	Name        string `json:"name"`
	Acquired    bool   `json:"acquired"`
	Expired     bool   `json:"expired"`
	RemainingMS *int64 `json:"remaining_ms"`
}

// FromEchoContext binds the path name and the optional JSON body.
func FromEchoContext(ctx echo.Context) (LockRequest, error) {
	var req LockRequest
	if err := ctx.Bind(&req); err != nil {
		return LockRequest{}, err
	}
	req.normalize()
	return req, nil
}

// Validate checks the name and bounds.
func (r *LockRequest) Validate() error {
	if r.Name == "" {
		return ErrMissingName
	}
	if r.TimeoutMS < 0 {
		return ErrNegativeTimeout
	}
	if r.TTLMS < 0 {
		return ErrNegativeTTL
	}
	return nil
}

func (r *LockRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

func (r *LockRequest) TTL() time.Duration {
	return time.Duration(r.TTLMS) * time.Millisecond
}

func (r *LockRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
}
