package runs

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/database"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/runs.db",
		Profile: database.ProfileLedger,
		Name:    "runs",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Conn(), zerolog.Nop())
}

type fakeRequest struct {
	Tickers []string `json:"tickers"`
}

type fakeResult struct {
	Sharpe float64 `json:"sharpe"`
}

func TestSaveAndGet(t *testing.T) {
	repo := testRepo(t)

	id, err := repo.Save("frontier", fakeRequest{Tickers: []string{"AAA"}}, fakeResult{Sharpe: 1.2})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := repo.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "frontier", run.Kind)
	assert.JSONEq(t, `{"tickers":["AAA"]}`, string(run.Request))
	assert.JSONEq(t, `{"sharpe":1.2}`, string(run.Result))
	assert.False(t, run.CreatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	repo := testRepo(t)
	_, err := repo.Get("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByKind(t *testing.T) {
	repo := testRepo(t)
	_, err := repo.Save("frontier", fakeRequest{}, fakeResult{})
	require.NoError(t, err)
	_, err = repo.Save("walkforward", fakeRequest{}, fakeResult{})
	require.NoError(t, err)

	all, err := repo.List("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	wf, err := repo.List("walkforward", 10)
	require.NoError(t, err)
	require.Len(t, wf, 1)
	assert.Equal(t, "walkforward", wf[0].Kind)
}

func TestPurgeOlderThan(t *testing.T) {
	repo := testRepo(t)
	_, err := repo.Save("frontier", fakeRequest{}, fakeResult{})
	require.NoError(t, err)

	removed, err := repo.PurgeOlderThan(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := repo.List("", 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
