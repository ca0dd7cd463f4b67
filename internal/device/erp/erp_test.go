package erp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/seedtrack/internal/common"
	"github.com/avolkov/seedtrack/internal/logging"
)

type fakeUpstream struct {
	metadata Metadata
	err      error
	calls    int
}

func (f *fakeUpstream) Lookup(ctx context.Context, serialNumber string) (Metadata, error) {
	f.calls++
	if f.err != nil {
		return Metadata{}, f.err
	}
	m := f.metadata
	m.SerialNumber = serialNumber
	return m, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGateway(upstream Client, clock *fakeClock) *CacheGateway {
	return newCacheGateway(upstream, logging.NewJSON("erp-test"), clock.Now)
}

func TestCacheGateway_UpstreamHit(t *testing.T) {
	up := &fakeUpstream{metadata: Metadata{ProductCode: "APL-20"}}
	g := newTestGateway(up, &fakeClock{t: time.Now()})

	m, err := g.Lookup(context.Background(), "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "APL-20", m.ProductCode)
	assert.Equal(t, "SN-1", m.SerialNumber)
}

func TestCacheGateway_ServesFreshCacheOnOutage(t *testing.T) {
	up := &fakeUpstream{metadata: Metadata{ProductCode: "APL-20"}}
	clock := &fakeClock{t: time.Now()}
	g := newTestGateway(up, clock)

	_, err := g.Lookup(context.Background(), "SN-1")
	require.NoError(t, err)

	up.err = errors.New("connection refused")
	clock.Advance(2 * time.Hour)

	m, err := g.Lookup(context.Background(), "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "APL-20", m.ProductCode)
}

func TestCacheGateway_FailsClosedOnStaleCache(t *testing.T) {
	up := &fakeUpstream{metadata: Metadata{ProductCode: "APL-20"}}
	clock := &fakeClock{t: time.Now()}
	g := newTestGateway(up, clock)

	_, err := g.Lookup(context.Background(), "SN-1")
	require.NoError(t, err)

	up.err = errors.New("connection refused")
	clock.Advance(MaxCacheAge + time.Hour)

	_, err = g.Lookup(context.Background(), "SN-1")
	require.ErrorIs(t, err, common.ErrMetadataStale)
}

func TestCacheGateway_FailsClosedWithoutCache(t *testing.T) {
	up := &fakeUpstream{err: errors.New("connection refused")}
	g := newTestGateway(up, &fakeClock{t: time.Now()})

	_, err := g.Lookup(context.Background(), "SN-1")
	require.ErrorIs(t, err, common.ErrMetadataUnavailable)
}

func TestCacheGateway_NotFoundPassesThrough(t *testing.T) {
	up := &fakeUpstream{err: common.ErrNotFound}
	g := newTestGateway(up, &fakeClock{t: time.Now()})

	_, err := g.Lookup(context.Background(), "SN-1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	up := &fakeUpstream{err: errors.New("connection refused")}
	clock := &fakeClock{t: time.Now()}
	g := newTestGateway(up, clock)
	ctx := context.Background()

	for i := 0; i < breakerThreshold; i++ {
		_, err := g.Lookup(ctx, "SN-1")
		require.ErrorIs(t, err, common.ErrMetadataUnavailable)
	}
	assert.Equal(t, breakerThreshold, up.calls)

	// circuit is open, upstream is not called anymore
	_, err := g.Lookup(ctx, "SN-1")
	require.ErrorIs(t, err, common.ErrMetadataUnavailable)
	assert.Equal(t, breakerThreshold, up.calls)
}

func TestCircuitBreaker_HalfOpenTrialRecovers(t *testing.T) {
	up := &fakeUpstream{err: errors.New("connection refused")}
	clock := &fakeClock{t: time.Now()}
	g := newTestGateway(up, clock)
	ctx := context.Background()

	for i := 0; i < breakerThreshold; i++ {
		_, _ = g.Lookup(ctx, "SN-1")
	}

	clock.Advance(breakerCooldown + time.Second)
	up.err = nil
	up.metadata = Metadata{ProductCode: "APL-20"}

	m, err := g.Lookup(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "APL-20", m.ProductCode)

	// circuit closed again, subsequent calls go upstream
	before := up.calls
	_, err = g.Lookup(ctx, "SN-2")
	require.NoError(t, err)
	assert.Equal(t, before+1, up.calls)
}
