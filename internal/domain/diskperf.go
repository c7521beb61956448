package domain

import "time"

// DiskType classifies the measured storage medium backing a Mods folder.
type DiskType string

const (
	DiskHDD     DiskType = "hdd"
	DiskSATASSD DiskType = "sata-ssd"
	DiskNVMe    DiskType = "nvme"
)

// DiskPerformanceConfig is the persisted result of the last disk benchmark:
// the throughput class observed and the concurrency budget derived from it.
type DiskPerformanceConfig struct {
	Version            int       `json:"version"`
	DiskType           DiskType  `json:"diskType"`
	DiskSpeedMBps      int       `json:"diskSpeedMBps"`
	PoolSize           int       `json:"poolSize"`
	SymlinkCapable     bool      `json:"symlinkCapable"`
	LastBenchmarkedAt  time.Time `json:"lastBenchmarkedAt"`
}

// CurrentDiskPerformanceVersion is the schema tag written by this build.
const CurrentDiskPerformanceVersion = 1

// DefaultPoolSize is the conservative concurrency budget used when no
// benchmark has ever run.
const DefaultPoolSize = 4
