package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently,
// each call owning its own registry
func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for range numGoroutines {
		go func() {
			defer wg.Done()

			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Playback)
			assert.NotNil(t, m.MQTT)
			assert.NotNil(t, m.HTTP)
		}()
	}

	wg.Wait()
}

func TestMetricsHandlerServesPlaybackMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Playback.AddBytesWritten(4096)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "playback_bytes_written_total 4096")
	assert.Contains(t, string(body), "go_goroutines")
}
