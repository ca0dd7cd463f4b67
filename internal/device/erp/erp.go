// Package erp fronts the hospital ERP system that owns applicator product
// metadata. The gateway caches lookups and fails closed: when the upstream is
// unreachable and no sufficiently fresh cache entry exists, validation that
// depends on the metadata must block rather than proceed on stale facts.
package erp

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/logging"
)

// Metadata is the ERP's product record for one applicator serial number.
type Metadata struct {
	SerialNumber string    `json:"serialNumber"`
	ProductCode  string    `json:"productCode"`
	LotNumber    string    `json:"lotNumber"`
	ExpiryDate   time.Time `json:"expiryDate"`
	Recalled     bool      `json:"recalled"`
}

// Client is the upstream lookup interface. The production implementation is
// owned by the ERP integration; this package only consumes it.
type Client interface {
	Lookup(ctx context.Context, serialNumber string) (Metadata, error)
}

// MaxCacheAge bounds how old a cached entry may be and still substitute for
// an unreachable upstream.
const MaxCacheAge = 24 * time.Hour

type cachedEntry struct {
	metadata  Metadata
	fetchedAt time.Time
}

// CacheGateway wraps an upstream Client with a TTL cache and a circuit
// breaker.
type CacheGateway struct {
	upstream Client
	cache    *gocache.Cache
	breaker  *circuitBreaker
	maxAge   time.Duration
	logger   logging.Logger
	now      func() time.Time
}

func NewCacheGateway(upstream Client, logger logging.Logger) *CacheGateway {
	return newCacheGateway(upstream, logger, time.Now)
}

func newCacheGateway(upstream Client, logger logging.Logger, now func() time.Time) *CacheGateway {
	return &CacheGateway{
		upstream: upstream,
		cache:    gocache.New(gocache.NoExpiration, 0),
		breaker:  newCircuitBreaker(now),
		maxAge:   MaxCacheAge,
		logger:   logger,
		now:      now,
	}
}

// Lookup returns product metadata for a serial number. Upstream answers are
// cached; on upstream failure a cache entry younger than MaxCacheAge is
// served instead, and with neither the call fails with
// common.ErrMetadataUnavailable.
func (g *CacheGateway) Lookup(ctx context.Context, serialNumber string) (Metadata, error) {
	upstreamErr := g.breaker.Allow()
	if upstreamErr == nil {
		m, err := g.upstream.Lookup(ctx, serialNumber)
		if err == nil {
			g.breaker.RecordSuccess()
			// Stored without a TTL: the age check below decides staleness
			// against the injected clock, so the stale verdict stays
			// observable instead of the entry silently expiring first.
			g.cache.Set(serialNumber, cachedEntry{metadata: m, fetchedAt: g.now()}, gocache.NoExpiration)
			return m, nil
		}
		if errors.Is(err, common.ErrNotFound) {
			// an authoritative miss, not an outage
			g.breaker.RecordSuccess()
			return Metadata{}, err
		}
		g.breaker.RecordFailure()
		upstreamErr = err
	}

	if raw, ok := g.cache.Get(serialNumber); ok {
		entry := raw.(cachedEntry)
		age := g.now().Sub(entry.fetchedAt)
		if age <= g.maxAge {
			g.logger.Warn(ctx, "serving cached product metadata, upstream unavailable",
				"serialNumber", serialNumber, "age", age.String())
			return entry.metadata, nil
		}
		return Metadata{}, fmt.Errorf("%w: cached entry is %s old (limit %s): %v",
			common.ErrMetadataStale, age, g.maxAge, upstreamErr)
	}

	return Metadata{}, fmt.Errorf("%w: %v", common.ErrMetadataUnavailable, upstreamErr)
}
