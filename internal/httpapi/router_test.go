package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func ptr[T any](v T) *T { return &v }

func seededStore() *testutil.CityStore {
	store := testutil.NewCityStore()
	store.Seed(
		domain.City{CityName: "Warsaw", CountryName: "Poland", Pollution: ptr(55.5), Description: ptr("Capital of Poland."), Status: domain.StatusActive},
		domain.City{CityName: "Krakow", CountryName: "Poland", Pollution: ptr(71.2), Description: ptr("Former royal capital."), Status: domain.StatusActive},
		domain.City{CityName: "Gdansk", CountryName: "Poland", Pollution: ptr(20.0), Status: domain.StatusInactive},
		domain.City{CityName: "Area 51", CountryName: "Poland", Pollution: ptr(99.0), Status: domain.StatusInvalid},
		domain.City{CityName: "Berlin", CountryName: "Germany", Pollution: ptr(40.0), Description: ptr("Capital of Germany."), Status: domain.StatusActive},
	)
	return store
}

func serve(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewRouter(Deps{Repository: testutil.NewCityStore()}), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":"ok"}`, rec.Body.String())
}

func TestListCitiesReturnsActiveCitiesByPollution(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewRouter(Deps{Repository: seededStore()}), "/cities/PL")
	require.Equal(t, http.StatusOK, rec.Code)

	var body citiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 10, body.Limit)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Cities, 2)
	assert.Equal(t, "Krakow", body.Cities[0].Name)
	assert.Equal(t, "Warsaw", body.Cities[1].Name)
	assert.Equal(t, "Poland", body.Cities[0].Country)
	require.NotNil(t, body.Cities[0].Description)
	assert.Equal(t, "Former royal capital.", *body.Cities[0].Description)
}

func TestListCitiesPaginates(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewRouter(Deps{Repository: seededStore()}), "/cities/PL?page=2&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body citiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 1, body.Limit)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Cities, 1)
	assert.Equal(t, "Warsaw", body.Cities[0].Name)
}

func TestListCitiesEmptyPageHasEmptyArray(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewRouter(Deps{Repository: seededStore()}), "/cities/ES")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"page":1,"limit":10,"total":0,"cities":[]}`, rec.Body.String())
}

func TestListCitiesValidation(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{Repository: seededStore()})

	tests := []struct {
		name   string
		target string
		detail string
	}{
		{name: "unknown country", target: "/cities/XX", detail: `"countryCode" must be one of [PL, DE, FR, ES]`},
		{name: "lowercase country", target: "/cities/pl", detail: `"countryCode" must be one of [PL, DE, FR, ES]`},
		{name: "page zero", target: "/cities/PL?page=0", detail: `"page" must be greater than or equal to 1`},
		{name: "limit too large", target: "/cities/PL?limit=51", detail: `"limit" must be less than or equal to 50`},
		{name: "limit zero", target: "/cities/DE?limit=0", detail: `"limit" must be greater than or equal to 1`},
		{name: "page not a number", target: "/cities/FR?page=abc", detail: `"page" and "limit" must be integers`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, router, tt.target)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Validation error", body.Error)
			assert.Contains(t, body.Details, tt.detail)
		})
	}
}

func TestListCitiesHidesStoreErrors(t *testing.T) {
	t.Parallel()

	store := seededStore()
	store.ListErr = errors.New("pq: password authentication failed for user sync")

	rec := serve(t, NewRouter(Deps{Repository: store}), "/cities/PL")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "pollution_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := NewRouter(Deps{
		Repository: testutil.NewCityStore(),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	rec := serve(t, router, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pollution_test_total 1")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	router := NewRouter(Deps{
		Repository:     testutil.NewCityStore(),
		AllowedOrigins: []string{"https://app.example.org"},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.org")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
