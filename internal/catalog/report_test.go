package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_Deleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	r := NewReporter(store)

	rep, err := r.Deleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeletedReport{}, rep, "empty store")

	var seeded []Product
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		seeded = append(seeded, seed(t, store, product(id, id, "", ""))...)
	}
	for _, p := range seeded[:3] {
		_, err := store.SoftDelete(ctx, p.ID)
		require.NoError(t, err)
	}

	rep, err = r.Deleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeletedReport{Total: 10, Deleted: 3, Percentage: 30}, rep)
}

func TestReporter_DeletedRoundsToInteger(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	seeded := seed(t, store, product("a", "a", "", ""), product("b", "b", "", ""), product("c", "c", "", ""))
	_, err := store.SoftDelete(ctx, seeded[0].ID)
	require.NoError(t, err)

	rep, err := NewReporter(store).Deleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 33, rep.Percentage)
}

func TestReporter_Active(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	days := []time.Time{
		time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 11, 23, 30, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
	}
	i := 0
	store.now = func() time.Time {
		ts := days[min(i, len(days)-1)]
		i++
		return ts
	}
	seeded := seed(t, store,
		product("a", "a", "", "10"),
		product("b", "b", "", ""),
		product("c", "c", "", "5"),
	)
	_, err := store.SoftDelete(ctx, seeded[2].ID)
	require.NoError(t, err)

	start := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		p    ActiveParams
		want ActiveReport
	}{
		{"no filters", ActiveParams{}, ActiveReport{Count: 2, Percentage: 66.67}},
		{"with price", ActiveParams{WithPrice: boolp(true)}, ActiveReport{Count: 1, Percentage: 33.33}},
		{"without price", ActiveParams{WithPrice: boolp(false)}, ActiveReport{Count: 1, Percentage: 33.33}},
		{"end date covers the whole day", ActiveParams{StartDate: &start, EndDate: &end}, ActiveReport{Count: 1, Percentage: 33.33}},
		{"start only", ActiveParams{StartDate: &start}, ActiveReport{Count: 1, Percentage: 33.33}},
		{"end only", ActiveParams{EndDate: &end}, ActiveReport{Count: 2, Percentage: 66.67}},
	}
	r := NewReporter(store)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Active(ctx, tc.p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReporter_ActiveRejectsInvertedRange(t *testing.T) {
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewReporter(newTestStore()).Active(context.Background(), ActiveParams{StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReporter_ActiveEmptyStore(t *testing.T) {
	rep, err := NewReporter(newTestStore()).Active(context.Background(), ActiveParams{})
	require.NoError(t, err)
	assert.Equal(t, ActiveReport{}, rep)
}

func TestReporter_ByCategory(t *testing.T) {
	store := newTestStore()
	seed(t, store,
		product("a", "a", "Electronics", ""),
		product("b", "b", "Tools", ""),
		product("c", "c", "Electronics", ""),
	)

	got, err := NewReporter(store).ByCategory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []CategoryReport{
		{Category: strp("Electronics"), Count: 2, Percentage: 66.67},
		{Category: strp("Tools"), Count: 1, Percentage: 33.33},
	}, got)
}

func TestReporter_WrapsStoreErrors(t *testing.T) {
	r := NewReporter(failingCountStore{})
	ctx := context.Background()

	_, err := r.Deleted(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = r.Active(ctx, ActiveParams{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = r.ByCategory(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

type failingCountStore struct{ Store }

func (failingCountStore) Count(context.Context, CountFilter) (int, error) { return 0, errBoom }

func (failingCountStore) CountByCategory(context.Context) ([]CategoryCount, error) {
	return nil, errBoom
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(1, 0))
	assert.Equal(t, 66.67, percent(2, 3))
	assert.Equal(t, 33.33, percent(1, 3))
	assert.Equal(t, 12.5, percent(1, 8))
	assert.Equal(t, 100.0, percent(7, 7))
}
