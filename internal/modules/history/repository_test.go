package history

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/modules/returns"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    t.TempDir() + "/history.db",
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Conn(), zerolog.Nop())
}

func day(offset int) time.Time {
	return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestUpsertAndGetPrices(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 101},
		{Date: day(2), Close: 102},
	}))

	points, err := repo.GetPrices("AAA", 10)
	require.NoError(t, err)
	require.Len(t, points, 3)
	// Chronological order.
	assert.Equal(t, 100.0, points[0].Close)
	assert.Equal(t, 102.0, points[2].Close)
}

func TestUpsertReplacesSameDay(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{{Date: day(0), Close: 100}}))
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{{Date: day(0), Close: 105}}))

	points, err := repo.GetPrices("AAA", 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 105.0, points[0].Close)
}

func TestUpsertRejectsNonPositiveClose(t *testing.T) {
	repo := testRepo(t)
	err := repo.UpsertPrices("AAA", []PricePoint{{Date: day(0), Close: 0}})
	assert.Error(t, err)
}

func TestTickers(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.UpsertPrices("BBB", []PricePoint{{Date: day(0), Close: 50}}))
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{{Date: day(0), Close: 100}}))

	tickers, err := repo.Tickers()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, tickers)
}

func TestReturnMatrixAligned(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 110},
		{Date: day(2), Close: 121},
	}))
	require.NoError(t, repo.UpsertPrices("BBB", []PricePoint{
		{Date: day(0), Close: 200},
		{Date: day(1), Close: 190},
		{Date: day(2), Close: 209},
	}))

	rm, err := repo.ReturnMatrix([]string{"AAA", "BBB"}, 100)
	require.NoError(t, err)

	assert.Equal(t, 2, rm.T())
	assert.Equal(t, []string{"AAA", "BBB"}, rm.Assets())
	assert.InDelta(t, 0.10, rm.Row(0)[0], 1e-9)
	assert.InDelta(t, -0.05, rm.Row(0)[1], 1e-9)
	assert.InDelta(t, 0.10, rm.Row(1)[0], 1e-9)
	assert.InDelta(t, 0.10, rm.Row(1)[1], 1e-9)
}

func TestReturnMatrixFillsGaps(t *testing.T) {
	repo := testRepo(t)
	// BBB is missing day 1; forward fill carries day 0's close, so BBB's
	// return splits across the gap.
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 101},
		{Date: day(2), Close: 102},
	}))
	require.NoError(t, repo.UpsertPrices("BBB", []PricePoint{
		{Date: day(0), Close: 200},
		{Date: day(2), Close: 210},
	}))

	rm, err := repo.ReturnMatrix([]string{"AAA", "BBB"}, 100)
	require.NoError(t, err)

	require.Equal(t, 2, rm.T())
	assert.InDelta(t, 0.0, rm.Row(0)[1], 1e-9)
	assert.InDelta(t, 0.05, rm.Row(1)[1], 1e-9)
}

func TestReturnMatrixUnknownTicker(t *testing.T) {
	repo := testRepo(t)
	require.NoError(t, repo.UpsertPrices("AAA", []PricePoint{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 101},
	}))

	_, err := repo.ReturnMatrix([]string{"AAA", "ZZZ"}, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, returns.ErrInsufficientData)
}
