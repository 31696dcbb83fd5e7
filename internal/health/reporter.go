package health

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const ringBufferSize = 50

// Reporter accumulates counters and the last 50 errors/warnings, and
// derives the status snapshot per §4.7's decision table. Counters are
// updated with atomic increments; the ring buffers are protected by a
// small mutex — matching the spec's explicit concurrency guidance in §5/§9.
type Reporter struct {
	collected         atomic.Int64
	forwarded         atomic.Int64
	cached            atomic.Int64
	filtered          atomic.Int64
	droppedByRetry    atomic.Int64
	droppedByAge      atomic.Int64
	droppedByCapacity atomic.Int64

	ringMu   sync.Mutex
	errors   []LogEntry
	warnings []LogEntry

	workingDir string
	proc       *process.Process
}

// NewReporter builds a Reporter that samples the on-disk footprint of
// workingDir and the current process's resource usage.
func NewReporter(workingDir string) *Reporter {
	r := &Reporter{workingDir: workingDir}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		r.proc = p
	}
	return r
}

func (r *Reporter) IncCollected()                 { r.collected.Add(1) }
func (r *Reporter) IncForwarded()                 { r.forwarded.Add(1) }
func (r *Reporter) IncForwardedBy(n int64)        { r.forwarded.Add(n) }
func (r *Reporter) IncCached()                    { r.cached.Add(1) }
func (r *Reporter) IncFiltered()                  { r.filtered.Add(1) }
func (r *Reporter) IncDroppedByRetry()            { r.droppedByRetry.Add(1) }
func (r *Reporter) IncDroppedByAge(n int64)       { r.droppedByAge.Add(n) }
func (r *Reporter) IncDroppedByCapacity()         { r.droppedByCapacity.Add(1) }

// RecordError appends to the error ring buffer, evicting the oldest entry
// once the buffer holds 50.
func (r *Reporter) RecordError(msg string) {
	r.ringMu.Lock()
	defer r.ringMu.Unlock()
	r.errors = appendRing(r.errors, LogEntry{Timestamp: time.Now().UTC(), Message: msg})
}

// RecordWarning appends to the warning ring buffer.
func (r *Reporter) RecordWarning(msg string) {
	r.ringMu.Lock()
	defer r.ringMu.Unlock()
	r.warnings = appendRing(r.warnings, LogEntry{Timestamp: time.Now().UTC(), Message: msg})
}

func appendRing(buf []LogEntry, entry LogEntry) []LogEntry {
	buf = append(buf, entry)
	if len(buf) > ringBufferSize {
		buf = buf[len(buf)-ringBufferSize:]
	}
	return buf
}

func (r *Reporter) counters() Counters {
	return Counters{
		Collected:         r.collected.Load(),
		Forwarded:         r.forwarded.Load(),
		Cached:            r.cached.Load(),
		Filtered:          r.filtered.Load(),
		DroppedByRetry:    r.droppedByRetry.Load(),
		DroppedByAge:      r.droppedByAge.Load(),
		DroppedByCapacity: r.droppedByCapacity.Load(),
	}
}

// sampleResources measures process CPU percent over a 1-second window,
// resident set size, and the working directory's on-disk footprint, per
// §4.7. It is slow (blocks ~1s), and Build calls it for every snapshot it
// assembles, so each Build call takes about a second.
func (r *Reporter) sampleResources(ctx context.Context) ResourceSample {
	sample := ResourceSample{}
	if r.proc != nil {
		if pct, err := r.proc.PercentWithContext(ctx, time.Second); err == nil {
			sample.CPUPercent = pct
		}
		if mem, err := r.proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			sample.MemBytes = int64(mem.RSS)
		}
	}
	sample.DiskBytes = dirSize(r.workingDir)
	return sample
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Snapshot parameters not owned by Reporter itself (connectivity,
// last-config-update) are supplied by the caller at build time so Reporter
// stays decoupled from the supervisor and config manager.
type SnapshotInputs struct {
	Connected             bool
	LastSuccessfulConnect *time.Time
	LastConfigUpdate      *time.Time
}

// Build assembles the full Snapshot, deriving Status per §4.7's table.
func (r *Reporter) Build(ctx context.Context, in SnapshotInputs) Snapshot {
	r.ringMu.Lock()
	errs := append([]LogEntry(nil), r.errors...)
	warns := append([]LogEntry(nil), r.warnings...)
	r.ringMu.Unlock()

	resources := r.sampleResources(ctx)

	snap := Snapshot{
		Counters:              r.counters(),
		Connected:             in.Connected,
		LastSuccessfulConnect: in.LastSuccessfulConnect,
		LastConfigUpdate:      in.LastConfigUpdate,
		Resources:             resources,
		RecentErrors:          errs,
		RecentWarnings:        warns,
	}
	snap.Status = deriveStatus(snap)
	return snap
}

func deriveStatus(s Snapshot) Status {
	switch {
	case len(s.RecentErrors) > 0:
		return StatusError
	case !s.Connected:
		return StatusWarning
	case s.LastConfigUpdate != nil && time.Since(*s.LastConfigUpdate) > time.Hour:
		return StatusWarning
	case s.Resources.CPUPercent > 80 || s.Resources.MemBytes > 1<<30:
		return StatusWarning
	case len(s.RecentWarnings) > 0:
		return StatusWarning
	default:
		return StatusRunning
	}
}
