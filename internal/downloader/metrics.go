package downloader

import (
	"sync"
	"time"
)

// throttle limits f to firing at most once per interval per instance,
// mirroring wraptor.decorators.throttle as used on DownloadMetrics.ping/
// snapshot in original_source/memsql_loader/execution/downloader.py.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func (t *throttle) attempt(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Stats is the snapshot DownloadMetrics.GetStats returns.
type Stats struct {
	BytesDownloaded int64
	DownloadRate    int64
	TimeLeft        time.Duration
}

const avgLen = 30

// Metrics tracks a download's progress, computing a moving-average rate
// over the last 30 samples and detecting stalls, mirroring
// DownloadMetrics in the same file.
type Metrics struct {
	totalSize int64

	mu          sync.Mutex
	currentSize int64
	lastSnapshot int64
	lastChange  time.Time
	snapshots   []int64

	pingThrottle     throttle
	snapshotThrottle throttle
}

// NewMetrics creates a Metrics tracker for a download of totalSize bytes,
// starting the stall clock at now.
func NewMetrics(totalSize int64, now time.Time) *Metrics {
	return &Metrics{
		totalSize:        totalSize,
		lastChange:       now,
		pingThrottle:     throttle{interval: time.Second},
		snapshotThrottle: throttle{interval: time.Second},
	}
}

// AccumulateBytes records current as the new total bytes transferred and
// takes a throttled snapshot.
func (m *Metrics) AccumulateBytes(current int64, now time.Time) {
	m.mu.Lock()
	m.currentSize = current
	m.mu.Unlock()
	m.Snapshot(now)
}

// LastChange returns the last time the transfer was observed making
// meaningful progress (or Ping was called to reset the stall clock).
func (m *Metrics) LastChange() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChange
}

// Ping resets the stall clock, throttled to once per second.
func (m *Metrics) Ping(now time.Time) {
	if !m.pingThrottle.attempt(now) {
		return
	}
	m.mu.Lock()
	m.lastChange = now
	m.mu.Unlock()
}

// Snapshot records a rate sample, throttled to once per second. If progress
// exceeds 10 bytes since the previous snapshot, it also pings the stall
// clock.
func (m *Metrics) Snapshot(now time.Time) {
	if !m.snapshotThrottle.attempt(now) {
		return
	}
	m.mu.Lock()
	current := m.currentSize
	diff := current - m.lastSnapshot
	m.lastSnapshot = current
	m.snapshots = append(m.snapshots, diff)
	if len(m.snapshots) > avgLen {
		m.snapshots = m.snapshots[len(m.snapshots)-avgLen:]
	}
	m.mu.Unlock()

	if diff > 10 {
		m.Ping(now)
	}
}

// GetStats computes bytes_downloaded/download_rate/time_left exactly as
// DownloadMetrics.get_stats does.
func (m *Metrics) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rate int64
	if m.currentSize != m.totalSize && len(m.snapshots) > 0 {
		var sum int64
		for _, s := range m.snapshots {
			sum += s
		}
		rate = sum / int64(len(m.snapshots))
	}

	timeLeft := -1 * time.Second
	if rate != 0 {
		remaining := m.totalSize - m.currentSize
		timeLeft = time.Duration(remaining/rate) * time.Second
	}

	return Stats{
		BytesDownloaded: m.currentSize,
		DownloadRate:    rate,
		TimeLeft:        timeLeft,
	}
}
