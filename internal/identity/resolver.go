package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"vigil/internal/platform/cache"
)

// CachedInstallations wraps an InstallationDirectory with the explicit TTL
// cache. Site-code lookups happen on every clock event and every patrol call,
// so they are the hottest read in the system. When a site code rotates,
// operations must call InvalidateSiteCode.
type CachedInstallations struct {
	inner  InstallationDirectory
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedInstallations(inner InstallationDirectory, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedInstallations {
	return &CachedInstallations{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedInstallations) FindBySiteCode(ctx context.Context, siteCode string) (*Installation, error) {
	key := "site:" + siteCode

	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		// Cache trouble must not take down lookups; fall through to the
		// directory and log.
		c.logger.WarnContext(ctx, "installation cache read failed", "error", err)
	} else if ok {
		var inst Installation
		if err := json.Unmarshal(raw, &inst); err == nil {
			return &inst, nil
		}
		c.logger.WarnContext(ctx, "installation cache entry corrupt, invalidating", "site_code", siteCode)
		_ = c.cache.Invalidate(ctx, key)
	}

	inst, err := c.inner.FindBySiteCode(ctx, siteCode)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(inst); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "installation cache write failed", "error", err)
		}
	}
	return inst, nil
}

// InvalidateSiteCode drops the cached entry for a rotated or deactivated code.
func (c *CachedInstallations) InvalidateSiteCode(ctx context.Context, siteCode string) error {
	return c.cache.Invalidate(ctx, "site:"+siteCode)
}
