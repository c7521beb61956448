// Package diskprofiler measures the Mods folder's disk throughput and
// derives the concurrency budget (pool size) that bounds the Reset
// manager's parallel deletions. The benchmark-then-persist shape follows
// the download progress reporting of dreamdenizen-factorio-mod-updater's
// Updater, generalized from a single progress bar to a ProgressSink
// callback so this package stays free of any presentation dependency.
package diskprofiler

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/fsutil"
)

// ProgressSink receives benchmark progress in [0, 100].
type ProgressSink func(percent int)

// Thresholds maps measured throughput (MB/s) to a disk type and pool size.
// Exposed as a package-level var, not a constant, so an operator can
// recalibrate without a code change.
var Thresholds = []struct {
	MinMBps  int
	DiskType domain.DiskType
	PoolSize int
}{
	{MinMBps: 0, DiskType: domain.DiskHDD, PoolSize: 2},
	{MinMBps: 100, DiskType: domain.DiskSATASSD, PoolSize: 6},
	{MinMBps: 400, DiskType: domain.DiskNVMe, PoolSize: 12},
}

// probeFileCount * probeFileSize is the aggregate size written and read
// back during a benchmark run: 8 files of 32 MiB, ~256 MiB total.
const (
	probeFileCount = 8
	probeFileSize  = 32 << 20
)

// Profiler benchmarks a target directory and persists the resulting
// DiskPerformanceConfig alongside it.
type Profiler struct {
	configPath string
	cached     *domain.DiskPerformanceConfig
}

// New creates a Profiler that persists its config at configPath (typically
// "SimsForge/disk-performance.json" under the application data root).
func New(configPath string) *Profiler {
	return &Profiler{configPath: configPath}
}

// CurrentConfig returns the last persisted benchmark result, loading it
// from disk on first use. It returns (nil, nil) if no benchmark has ever
// run.
func (p *Profiler) CurrentConfig() (*domain.DiskPerformanceConfig, error) {
	if p.cached != nil {
		return p.cached, nil
	}

	var cfg domain.DiskPerformanceConfig
	if err := fsutil.ReadJSON(p.configPath, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewError(domain.ErrKindCacheCorrupt, "diskprofiler.CurrentConfig", err)
	}
	if cfg.Version > domain.CurrentDiskPerformanceVersion {
		return nil, domain.NewError(domain.ErrKindSchemaTooNew, "diskprofiler.CurrentConfig", fmt.Errorf("disk-performance.json version %d newer than supported %d", cfg.Version, domain.CurrentDiskPerformanceVersion))
	}

	p.cached = &cfg
	return p.cached, nil
}

// PoolSize returns the persisted pool size, or domain.DefaultPoolSize if no
// benchmark has ever run.
func (p *Profiler) PoolSize() int {
	cfg, err := p.CurrentConfig()
	if err != nil || cfg == nil {
		return domain.DefaultPoolSize
	}
	return cfg.PoolSize
}

// Benchmark writes and reads back a fixed aggregate size of probe files
// under targetDir, measures wall-clock throughput, classifies it per
// Thresholds, persists the result, and returns it. Probe files are removed
// on both success and failure.
func (p *Profiler) Benchmark(targetDir string, sink ProgressSink) (*domain.DiskPerformanceConfig, error) {
	if sink == nil {
		sink = func(int) {}
	}

	probeDir, err := os.MkdirTemp(targetDir, ".simsforge-bench-*")
	if err != nil {
		return nil, domain.NewError(domain.ErrKindExtractionFailed, "diskprofiler.Benchmark", fmt.Errorf("creating probe dir: %w", err))
	}
	defer os.RemoveAll(probeDir)

	start := time.Now()
	payload := make([]byte, probeFileSize)
	if _, err := rand.Read(payload); err != nil {
		return nil, domain.NewError(domain.ErrKindExtractionFailed, "diskprofiler.Benchmark", fmt.Errorf("generating probe payload: %w", err))
	}

	for i := 0; i < probeFileCount; i++ {
		path := filepath.Join(probeDir, fmt.Sprintf("probe-%d.bin", i))
		if err := writeProbeFile(path, payload); err != nil {
			return nil, domain.NewError(domain.ErrKindExtractionFailed, "diskprofiler.Benchmark", err)
		}
		sink((i + 1) * 50 / probeFileCount)
	}

	for i := 0; i < probeFileCount; i++ {
		path := filepath.Join(probeDir, fmt.Sprintf("probe-%d.bin", i))
		if err := readProbeFile(path); err != nil {
			return nil, domain.NewError(domain.ErrKindExtractionFailed, "diskprofiler.Benchmark", err)
		}
		sink(50 + (i+1)*50/probeFileCount)
	}

	elapsed := time.Since(start)
	totalMB := float64(probeFileCount*probeFileSize) * 2 / (1 << 20) // write + read
	mbps := int(totalMB / elapsed.Seconds())

	cfg := classify(mbps)
	cfg.SymlinkCapable = ProbeSymlinkSupport(targetDir)
	cfg.Version = domain.CurrentDiskPerformanceVersion
	cfg.LastBenchmarkedAt = time.Now()

	if err := fsutil.WriteJSONAtomic(p.configPath, cfg); err != nil {
		return nil, domain.NewError(domain.ErrKindCacheCorrupt, "diskprofiler.Benchmark", fmt.Errorf("persisting config: %w", err))
	}

	sink(100)
	p.cached = cfg
	return cfg, nil
}

func classify(mbps int) *domain.DiskPerformanceConfig {
	best := Thresholds[0]
	for _, t := range Thresholds {
		if mbps >= t.MinMBps {
			best = t
		}
	}
	return &domain.DiskPerformanceConfig{
		DiskSpeedMBps: mbps,
		DiskType:      best.DiskType,
		PoolSize:      best.PoolSize,
	}
}

func writeProbeFile(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating probe file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("writing probe file: %w", err)
	}
	return f.Sync()
}

func readProbeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening probe file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(io.Discard, f); err != nil {
		return fmt.Errorf("reading probe file: %w", err)
	}
	return nil
}

// ProbeSymlinkSupport reports whether the process can create a directory
// symlink under dir. Used to decide, once per volume, whether the
// Activator should use LinkSymlink or fall back to LinkJunction (Windows
// only; on POSIX this always succeeds).
func ProbeSymlinkSupport(dir string) bool {
	tmpTarget, err := os.MkdirTemp(dir, ".simsforge-symlink-probe-target-*")
	if err != nil {
		return false
	}
	defer os.RemoveAll(tmpTarget)

	linkPath := filepath.Join(dir, fmt.Sprintf(".simsforge-symlink-probe-link-%d", time.Now().UnixNano()))
	defer os.Remove(linkPath)

	if err := os.Symlink(tmpTarget, linkPath); err != nil {
		return false
	}
	return true
}
