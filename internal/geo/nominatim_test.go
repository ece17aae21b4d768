package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"klimatik/internal/config"
	"klimatik/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) *NominatimResolver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewNominatimResolver(config.GeocoderConfig{
		BaseURL:   server.URL,
		UserAgent: "klimatik-test",
	}, nil)
}

func TestResolve(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ул. Ленина, 5", r.URL.Query().Get("q"))
		assert.Equal(t, "klimatik-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat":"55.7558","lon":"37.6173"}]`))
	})

	loc, err := resolver.Resolve(context.Background(), models.Contact{Address: "ул. Ленина, 5"})
	require.NoError(t, err)
	assert.InDelta(t, 55.7558, loc.Latitude, 0.0001)
	assert.InDelta(t, 37.6173, loc.Longitude, 0.0001)
}

func TestResolveNoResults(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := resolver.Resolve(context.Background(), models.Contact{Address: "несуществующий адрес"})
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestResolveEmptyAddress(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be made for empty address")
	})

	_, err := resolver.Resolve(context.Background(), models.Contact{})
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestResolveBadStatus(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := resolver.Resolve(context.Background(), models.Contact{Address: "x"})
	assert.Error(t, err)
}

func TestResolveCancelledContext(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := resolver.Resolve(ctx, models.Contact{Address: "x"})
	assert.Error(t, err)
}
