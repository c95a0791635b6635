package diskmanager

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/leafnet/leafnet-go/internal/errors"
)

const lowSpaceWarnPercent = 95.0

// Usage describes the filesystem holding a directory.
type Usage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// GetUsage returns filesystem usage for path.
func GetUsage(ctx context.Context, path string) (Usage, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Usage{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return Usage{
		Path:        path,
		TotalBytes:  stat.Total,
		FreeBytes:   stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}
