package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/audiocore"
)

func TestPlaybackMetricsRecorder(t *testing.T) {
	t.Parallel()

	m, err := NewPlaybackMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOperation("batch_pull", "success")
	m.RecordOperation("batch_pull", "success")
	m.RecordError("write", "peripheral")
	m.AddBytesWritten(2048)
	m.AddBytesWritten(-1)
	m.RecordDuration("engine_wake", 0.0001)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues("batch_pull", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues("write", "peripheral")), 0)
	assert.InDelta(t, 2048, testutil.ToFloat64(m.bytesWrittenTotal), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestPlaybackMetricsSessions(t *testing.T) {
	t.Parallel()

	m, err := NewPlaybackMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	info := audiocore.SessionInfo{ID: "s1", Kind: audiocore.KindFile, SampleRate: 44100, StartedAt: time.Now()}
	m.SessionStarted(info)
	assert.InDelta(t, 1, m.SessionActive(), 0)
	assert.InDelta(t, 44100, testutil.ToFloat64(m.sessionSampleRate), 0)

	info.Reason = audiocore.ReasonStopped
	info.Complete = true
	m.SessionEnded(info)
	assert.InDelta(t, 0, m.SessionActive(), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsStarted.WithLabelValues("file")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsEnded.WithLabelValues("stopped", "true")), 0)
}

func TestPlaybackMetricsUploads(t *testing.T) {
	t.Parallel()

	m, err := NewPlaybackMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordUpload("success", 1000)
	m.RecordUpload("rejected", 0)

	expected := `
# HELP playback_upload_bytes_total Total bytes received through uploads
# TYPE playback_upload_bytes_total counter
playback_upload_bytes_total 1000
`
	require.NoError(t, testutil.CollectAndCompare(m.uploadBytesTotal, strings.NewReader(expected)))
	assert.InDelta(t, 1, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("rejected")), 0)
}

func TestPlaybackMetricsDoubleRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewPlaybackMetrics(registry)
	require.NoError(t, err)
	_, err = NewPlaybackMetrics(registry)
	assert.Error(t, err)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.RecordCommand("play", "success")
	m.RecordStatusPublished("started", 3*time.Millisecond)
	m.RecordStatusPublished("ended", time.Millisecond)
	m.RecordError(MQTTOpPublish)
	m.RecordReconnect()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CommandsReceived.WithLabelValues("play", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StatusPublished.WithLabelValues("started")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(MQTTOpPublish)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReconnectAttempts), 0)
	assert.Positive(t, testutil.ToFloat64(m.LastConnectTime))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PublishLatency))

	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConnectionStatus), 0)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordHTTPRequest("GET", "/health-check", "200", 0.002, 15)
	m.RecordHTTPRequest("GET", "/health-check", "200", 0.001, -1)
	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/health-check", "200")), 0)
}

func TestTestRecorder(t *testing.T) {
	t.Parallel()

	r := NewTestRecorder()
	assert.False(t, r.HasRecordedMetrics())

	r.RecordOperation("batch_pull", "success")
	r.RecordDuration("engine_wake", 0.5)
	r.RecordError("write", "peripheral")
	r.AddBytesWritten(10)

	assert.Equal(t, 1, r.GetOperationCount("batch_pull", "success"))
	assert.Equal(t, []float64{0.5}, r.GetDurations("engine_wake"))
	assert.Nil(t, r.GetDurations("missing"))
	assert.Equal(t, 1, r.GetErrorCount("write", "peripheral"))
	assert.Equal(t, int64(10), r.BytesWritten())
	assert.True(t, r.HasRecordedMetrics())
}
