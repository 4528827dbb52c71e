package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/testutil"
)

type recordingSleep struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	return ctx.Err()
}

func (r *recordingSleep) Calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

func inactive(names ...string) []domain.City {
	cities := make([]domain.City, 0, len(names))
	for _, n := range names {
		cities = append(cities, domain.City{CityName: n, CountryName: "Poland", Status: domain.StatusInactive})
	}
	return cities
}

func newEnrichment(store *testutil.CityStore, describer *testutil.Describer, sleep *recordingSleep) *EnrichmentJob {
	return NewEnrichmentJob(EnrichmentDeps{
		Repository: store,
		Describer:  describer,
		BatchPause: DefaultBatchPause,
		Sleep:      sleep.Sleep,
	})
}

func TestEnrichmentBatchesAndPauses(t *testing.T) {
	t.Parallel()

	names := []string{"Warsaw", "Krakow", "Gdansk", "Wroclaw", "Poznan", "Lublin", "Szczecin"}
	descriptions := map[string]string{}
	for _, n := range names {
		descriptions[n] = n + " is a city in Poland."
	}
	delete(descriptions, "Szczecin")

	store := testutil.NewCityStore()
	store.Seed(inactive(names...)...)
	sleep := &recordingSleep{}

	report, err := newEnrichment(store, testutil.NewDescriber(descriptions), sleep).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, EnrichmentReport{Candidates: 7, Batches: 2, Activated: 6, Invalidated: 1}, report)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleep.Calls())

	warsaw, ok := store.Get("Warsaw")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, warsaw.Status)
	require.NotNil(t, warsaw.Description)
	assert.Equal(t, "Warsaw is a city in Poland.", *warsaw.Description)

	szczecin, ok := store.Get("Szczecin")
	require.True(t, ok)
	assert.Equal(t, domain.StatusInvalid, szczecin.Status)
	assert.Nil(t, szczecin.Description)
}

func TestEnrichmentSkipsLookupForInvalidNames(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	store.Seed(inactive("Central Station", "Site 42", "Katowice")...)
	describer := testutil.NewDescriber(map[string]string{
		"Central Station": "should never be used",
		"Katowice":        "Katowice is a city in Silesia.",
	})

	report, err := newEnrichment(store, describer, &recordingSleep{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Activated)
	assert.Equal(t, 2, report.Invalidated)
	assert.Equal(t, []string{"Katowice"}, describer.Calls())

	station, _ := store.Get("Central Station")
	assert.Equal(t, domain.StatusInvalid, station.Status)
	assert.Nil(t, station.Description)
}

func TestEnrichmentTrimsStoredName(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	store.Seed(inactive("  Bydgoszcz ")...)
	describer := testutil.NewDescriber(map[string]string{"Bydgoszcz": "Bydgoszcz lies on the Brda river."})

	_, err := newEnrichment(store, describer, &recordingSleep{}).Run(context.Background())
	require.NoError(t, err)

	city, ok := store.Get("Bydgoszcz")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, city.Status)
	_, ok = store.Get("  Bydgoszcz ")
	assert.False(t, ok)

	updates := store.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "  Bydgoszcz ", updates[0].CityName)
	require.NotNil(t, updates[0].Update.CityName)
	assert.Equal(t, "Bydgoszcz", *updates[0].Update.CityName)
}

func TestEnrichmentKeepsStoredNameWhenTrimmedNameIsTaken(t *testing.T) {
	t.Parallel()

	description := "Capital of Poland."
	store := testutil.NewCityStore()
	store.Seed(
		domain.City{CityName: "Warsaw", CountryName: "Poland", Status: domain.StatusActive, Description: &description},
		domain.City{CityName: " Warsaw", CountryName: "Poland", Status: domain.StatusInactive},
	)
	describer := testutil.NewDescriber(map[string]string{"Warsaw": description})

	report, err := newEnrichment(store, describer, &recordingSleep{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EnrichmentReport{Candidates: 1, Batches: 1, Activated: 1}, report)

	city, ok := store.Get(" Warsaw")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, city.Status)
	require.NotNil(t, city.Description)
	assert.Equal(t, description, *city.Description)

	kept, ok := store.Get("Warsaw")
	require.True(t, ok)
	assert.Equal(t, int64(1), kept.ID)

	updates := store.Updates()
	require.Len(t, updates, 2)
	assert.NotNil(t, updates[0].Update.CityName)
	assert.Nil(t, updates[1].Update.CityName)

	again, err := newEnrichment(store, describer, &recordingSleep{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Candidates)
}

func TestEnrichmentTreatsLookupErrorAsNotFound(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	store.Seed(inactive("Torun")...)
	describer := testutil.NewDescriber(nil)
	describer.Errors["Torun"] = errors.New("upstream timeout")

	report, err := newEnrichment(store, describer, &recordingSleep{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invalidated)

	city, _ := store.Get("Torun")
	assert.Equal(t, domain.StatusInvalid, city.Status)
}

func TestEnrichmentCountsUpdateFailures(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	store.Seed(inactive("Opole", "Kielce")...)
	store.UpdateErr["Opole"] = errors.New("deadlock detected")
	describer := testutil.NewDescriber(map[string]string{"Opole": "x", "Kielce": "y"})

	report, err := newEnrichment(store, describer, &recordingSleep{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Activated)
	city, _ := store.Get("Opole")
	assert.Equal(t, domain.StatusInactive, city.Status)
}

func TestEnrichmentCapsCandidates(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	cities := make([]domain.City, 0, 205)
	for i := range 205 {
		cities = append(cities, domain.City{CityName: fmt.Sprintf("Town %c%c", 'A'+rune(i/26), 'a'+rune(i%26))})
	}
	store.Seed(cities...)
	sleep := &recordingSleep{}

	report, err := newEnrichment(store, testutil.NewDescriber(nil), sleep).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 200, report.Candidates)
	assert.Equal(t, 40, report.Batches)
	assert.Len(t, sleep.Calls(), 39)
}

func TestEnrichmentNoCandidates(t *testing.T) {
	t.Parallel()

	sleep := &recordingSleep{}
	report, err := newEnrichment(testutil.NewCityStore(), testutil.NewDescriber(nil), sleep).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EnrichmentReport{}, report)
	assert.Empty(t, sleep.Calls())
}

func TestEnrichmentCandidateFetchFailure(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	store.ListErr = errors.New("relation cities does not exist")

	_, err := newEnrichment(store, testutil.NewDescriber(nil), &recordingSleep{}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCandidateFetch)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestEnrichmentCancellationLeavesCitiesInactive(t *testing.T) {
	t.Parallel()

	store := testutil.NewCityStore()
	store.Seed(inactive("Rzeszow", "Olsztyn")...)
	describer := testutil.NewDescriber(map[string]string{"Rzeszow": "a", "Olsztyn": "b"})
	describer.Block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := newEnrichment(store, describer, &recordingSleep{}).Run(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(describer.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("enrichment did not stop after cancellation")
	}

	assert.Empty(t, store.Updates())
	for _, c := range store.All() {
		assert.Equal(t, domain.StatusInactive, c.Status)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	batches := chunk(inactive("a", "b", "c", "d", "e", "f", "g"), 5)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 2)
	assert.Empty(t, chunk(nil, 5))
}
