package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks the counters of one engine run with lock-free atomics,
// so a progress reporter may read them while the run is in flight.
type Collector struct {
	startTime time.Time

	files              atomic.Int64
	folders            atomic.Int64
	bytes              atomic.Int64
	skippedMountPoints atomic.Int64
	retries            atomic.Int64
	failed             atomic.Int64
	attributesCleared  atomic.Int64
	verified           atomic.Int64
	verifyFailed       atomic.Int64

	// Ring buffer, written only by Tick.
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per tick
	filesPerSec [ringSize]int64 // files delta per tick
	ringIdx     int
	ringCount   int
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Files              int64
	Folders            int64
	Bytes              int64
	SkippedMountPoints int64
	Retries            int64
	Failed             int64
	AttributesCleared  int64
	Verified           int64
	VerifyFailed       int64
	Elapsed            time.Duration
}

func (c *Collector) AddFiles(n int64)              { c.files.Add(n) }
func (c *Collector) AddFolders(n int64)            { c.folders.Add(n) }
func (c *Collector) AddBytes(n int64)              { c.bytes.Add(n) }
func (c *Collector) AddSkippedMountPoints(n int64) { c.skippedMountPoints.Add(n) }
func (c *Collector) AddRetries(n int64)            { c.retries.Add(n) }
func (c *Collector) AddFailed(n int64)             { c.failed.Add(n) }
func (c *Collector) AddAttributesCleared(n int64)  { c.attributesCleared.Add(n) }
func (c *Collector) AddVerified(n int64)           { c.verified.Add(n) }
func (c *Collector) AddVerifyFailed(n int64)       { c.verifyFailed.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Files:              c.files.Load(),
		Folders:            c.folders.Load(),
		Bytes:              c.bytes.Load(),
		SkippedMountPoints: c.skippedMountPoints.Load(),
		Retries:            c.retries.Load(),
		Failed:             c.failed.Load(),
		AttributesCleared:  c.attributesCleared.Load(),
		Verified:           c.verified.Load(),
		VerifyFailed:       c.verifyFailed.Load(),
		Elapsed:            c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called once per
// second by the progress reporter.
func (c *Collector) Tick() {
	currentBytes := c.bytes.Load()
	currentFiles := c.files.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = currentBytes - c.lastBytes
	c.filesPerSec[c.ringIdx] = currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"files=%d folders=%d bytes=%d mountpoints_skipped=%d retries=%d failed=%d",
		s.Files, s.Folders, s.Bytes, s.SkippedMountPoints, s.Retries, s.Failed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
