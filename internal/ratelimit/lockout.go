// Package ratelimit protects the credential surface from brute force. Guard
// PINs are short, so failed-attempt lockout is the primary defense: a few
// failures inside the window hard-locks the identity for a cooldown.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/platform/cache"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
)

// LockoutConfig tunes the failed-PIN lockout.
type LockoutConfig struct {
	// MaxFailures inside Window triggers the lock.
	MaxFailures int
	// Window is the sliding period failures accumulate over.
	Window time.Duration
	// LockDuration is how long the identity stays locked once triggered.
	LockDuration time.Duration
}

// DefaultLockoutConfig mirrors the field-ops policy: five attempts per
// fifteen minutes, fifteen-minute lock.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxFailures:  5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

type lockoutRecord struct {
	Count       int        `json:"count"`
	WindowStart time.Time  `json:"windowStart"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// Lockout tracks failed PIN attempts per guard identity. State lives in the
// shared cache, so a Redis deployment enforces the lock across replicas.
// A nil *Lockout disables the protection; every method is nil-safe.
type Lockout struct {
	cache  cache.Cache
	cfg    LockoutConfig
	logger *slog.Logger
}

func NewLockout(c cache.Cache, cfg LockoutConfig, logger *slog.Logger) *Lockout {
	if cfg.MaxFailures <= 0 {
		cfg = DefaultLockoutConfig()
	}
	return &Lockout{cache: c, cfg: cfg, logger: logger}
}

// Check returns a forbidden error while the identity is locked. Cache
// failures fail open: a degraded cache must not take down authentication.
func (l *Lockout) Check(ctx context.Context, tenantID uuid.UUID, nationalID string) error {
	if l == nil {
		return nil
	}
	rec, ok := l.load(ctx, l.key(tenantID, nationalID))
	if !ok || rec.LockedUntil == nil {
		return nil
	}
	now := requestcontext.Now(ctx)
	if now.Before(*rec.LockedUntil) {
		return dErrors.New(dErrors.CodeForbidden, "too many failed attempts").
			WithDetails(map[string]any{
				"retry_after_seconds": int(rec.LockedUntil.Sub(now).Seconds()),
			})
	}
	return nil
}

// RecordFailure counts one failed PIN attempt and locks the identity when
// the window limit is reached.
func (l *Lockout) RecordFailure(ctx context.Context, tenantID uuid.UUID, nationalID string) {
	if l == nil {
		return
	}
	key := l.key(tenantID, nationalID)
	now := requestcontext.Now(ctx)

	rec, ok := l.load(ctx, key)
	if !ok || now.Sub(rec.WindowStart) > l.cfg.Window {
		rec = lockoutRecord{WindowStart: now}
	}
	rec.Count++
	if rec.Count >= l.cfg.MaxFailures && rec.LockedUntil == nil {
		until := now.Add(l.cfg.LockDuration)
		rec.LockedUntil = &until
		l.logger.WarnContext(ctx, "credential lockout triggered",
			"tenant_id", tenantID,
			"failures", rec.Count,
			"locked_until", until,
		)
	}
	l.save(ctx, key, rec)
}

// Reset clears the failure history after a successful authentication.
func (l *Lockout) Reset(ctx context.Context, tenantID uuid.UUID, nationalID string) {
	if l == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, l.key(tenantID, nationalID)); err != nil {
		l.logger.WarnContext(ctx, "lockout reset failed", "error", err.Error())
	}
}

func (l *Lockout) key(tenantID uuid.UUID, nationalID string) string {
	return "lockout:" + tenantID.String() + ":" + nationalID
}

func (l *Lockout) load(ctx context.Context, key string) (lockoutRecord, bool) {
	raw, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "lockout lookup failed", "error", err.Error())
		return lockoutRecord{}, false
	}
	if !ok {
		return lockoutRecord{}, false
	}
	var rec lockoutRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return lockoutRecord{}, false
	}
	return rec, true
}

func (l *Lockout) save(ctx context.Context, key string, rec lockoutRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ttl := l.cfg.Window
	if l.cfg.LockDuration > ttl {
		ttl = l.cfg.LockDuration
	}
	if err := l.cache.Set(ctx, key, raw, ttl); err != nil {
		l.logger.WarnContext(ctx, "lockout save failed", "error", err.Error())
	}
}
