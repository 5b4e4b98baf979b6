package calculations

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/database"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/runs.db",
		Profile: database.ProfileCache,
		Name:    "runs",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewCache(db.Conn(), zerolog.Nop())
}

type cachedResult struct {
	Weights []float64 `msgpack:"weights"`
	Sharpe  float64   `msgpack:"sharpe"`
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("frontier", "AAA,BBB", "sample", "20")
	b := Key("frontier", "AAA,BBB", "sample", "20")
	c := Key("frontier", "AAA,BBB", "shrinkage", "20")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestSetGetRoundTrip(t *testing.T) {
	cache := testCache(t)
	key := Key("test", "roundtrip")

	in := cachedResult{Weights: []float64{0.6, 0.4}, Sharpe: 1.25}
	require.NoError(t, cache.Set(key, in))

	var out cachedResult
	hit, err := cache.Get(key, &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)
}

func TestGetMiss(t *testing.T) {
	cache := testCache(t)

	var out cachedResult
	hit, err := cache.Get(Key("test", "missing"), &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSetReplacesExisting(t *testing.T) {
	cache := testCache(t)
	key := Key("test", "replace")

	require.NoError(t, cache.Set(key, cachedResult{Sharpe: 1}))
	require.NoError(t, cache.Set(key, cachedResult{Sharpe: 2}))

	var out cachedResult
	hit, err := cache.Get(key, &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2.0, out.Sharpe)
}

func TestPurgeOlderThan(t *testing.T) {
	cache := testCache(t)
	require.NoError(t, cache.Set(Key("test", "old"), cachedResult{}))

	evicted, err := cache.PurgeOlderThan(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), evicted)

	count, err := cache.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDelete(t *testing.T) {
	cache := testCache(t)
	key := Key("test", "delete")
	require.NoError(t, cache.Set(key, cachedResult{}))
	require.NoError(t, cache.Delete(key))

	var out cachedResult
	hit, err := cache.Get(key, &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
