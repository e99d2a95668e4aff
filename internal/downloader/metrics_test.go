package downloader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsThrottlesSnapshotsWithinOneSecond(t *testing.T) {
	start := time.Now()
	m := NewMetrics(1000, start)

	m.AccumulateBytes(100, start)
	m.AccumulateBytes(200, start.Add(100*time.Millisecond))

	stats := m.GetStats()
	assert.EqualValues(t, 200, stats.BytesDownloaded)
	// Only the first AccumulateBytes landed a snapshot; the second was
	// throttled (same 1s window), so the rate reflects one 100-byte sample.
	assert.EqualValues(t, 100, stats.DownloadRate)
}

func TestMetricsComputesMovingAverageRate(t *testing.T) {
	start := time.Now()
	m := NewMetrics(1000, start)

	for i := int64(1); i <= 5; i++ {
		m.AccumulateBytes(i*100, start.Add(time.Duration(i)*time.Second))
	}

	stats := m.GetStats()
	assert.EqualValues(t, 500, stats.BytesDownloaded)
	assert.EqualValues(t, 100, stats.DownloadRate)
	assert.EqualValues(t, 5*time.Second, stats.TimeLeft)
}

func TestMetricsRateIsZeroWhenDownloadComplete(t *testing.T) {
	start := time.Now()
	m := NewMetrics(100, start)
	m.AccumulateBytes(100, start.Add(time.Second))

	stats := m.GetStats()
	assert.EqualValues(t, 0, stats.DownloadRate)
	assert.EqualValues(t, -1*time.Second, stats.TimeLeft)
}

func TestMetricsPingResetsStallClock(t *testing.T) {
	start := time.Now()
	m := NewMetrics(1000, start)
	require.Equal(t, start, m.LastChange())

	later := start.Add(2 * time.Second)
	m.Ping(later)
	assert.Equal(t, later, m.LastChange())
}

func TestMetricsSnapshotPingsOnMeaningfulProgress(t *testing.T) {
	start := time.Now()
	m := NewMetrics(1000, start)

	progressed := start.Add(time.Second)
	m.AccumulateBytes(50, progressed)
	assert.Equal(t, progressed, m.LastChange())
}
