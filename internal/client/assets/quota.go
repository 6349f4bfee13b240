package assets

import (
	"fmt"
	"syscall"
)

// Callers are expected to warn at WarnThresholdPercent and refuse new
// large downloads at BlockThresholdPercent. The policy lives with the
// caller; this package only reports numbers.
const (
	WarnThresholdPercent  = 80.0
	BlockThresholdPercent = 95.0
)

// QuotaReport is a read-only capacity probe of the storage medium
// backing the local store.
type QuotaReport struct {
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	Total       uint64  `json:"total"`
	PercentUsed float64 `json:"percentUsed"`
}

// StorageStat reports raw usage numbers. Injectable so tests and other
// platforms can supply their own probe.
type StorageStat interface {
	Usage() (used, total uint64, err error)
}

// DirStat probes the filesystem holding the given path.
func DirStat(path string) StorageStat {
	return dirStat{path: path}
}

type dirStat struct {
	path string
}

func (d dirStat) Usage() (uint64, uint64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(d.path, &fs); err != nil {
		return 0, 0, fmt.Errorf("failed to stat filesystem at %s: %w", d.path, err)
	}

	total := fs.Blocks * uint64(fs.Bsize)
	available := fs.Bavail * uint64(fs.Bsize)
	return total - available, total, nil
}

// CheckStorageQuota turns raw usage numbers into a QuotaReport.
func CheckStorageQuota(stat StorageStat) (QuotaReport, error) {
	used, total, err := stat.Usage()
	if err != nil {
		return QuotaReport{}, err
	}

	report := QuotaReport{
		Used:  used,
		Total: total,
	}
	if total > used {
		report.Available = total - used
	}
	if total > 0 {
		report.PercentUsed = float64(used) / float64(total) * 100
	}

	return report, nil
}
