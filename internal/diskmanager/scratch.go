// Package diskmanager keeps the pipeline scratch directory clean. Scratch
// files are removed by the pipeline after every record; the sweeper catches
// the ones a crash or kill left behind.
package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
	"github.com/leafnet/leafnet-go/internal/logger"
)

// ScratchPrefix is the file name prefix of pipeline scratch files.
const ScratchPrefix = "leafnet-"

// maxDeletionsPerSweep caps one sweep so a huge backlog doesn't stall the loop.
const maxDeletionsPerSweep = 1000

// SweepResult summarises one sweep.
type SweepResult struct {
	Removed    int
	FreedBytes int64
}

// SweepScratch removes scratch files in dir whose modification time is
// older than olderThan. Only regular files carrying ScratchPrefix are
// touched, so dir may be shared with other programs.
func SweepScratch(ctx context.Context, dir string, olderThan time.Duration, now time.Time) (SweepResult, error) {
	var res SweepResult

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryFileIO).
			Context("scratch_dir", dir).
			Build()
	}

	cutoff := now.Add(-olderThan)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if res.Removed >= maxDeletionsPerSweep {
			GetLogger().Debug("reached sweep deletion cap", logger.Int("max", maxDeletionsPerSweep))
			break
		}
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), ScratchPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed concurrently by the pipeline.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			GetLogger().Warn("failed to remove stale scratch file",
				logger.String("path", path),
				logger.Error(err))
			continue
		}
		res.Removed++
		res.FreedBytes += info.Size()
	}

	if res.Removed > 0 {
		GetLogger().Info("removed stale scratch files",
			logger.String("dir", dir),
			logger.Int("files", res.Removed),
			logger.Int64("bytes", res.FreedBytes))
	}
	return res, nil
}

// Sweeper periodically sweeps one scratch directory.
type Sweeper struct {
	dir       string
	olderThan time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewSweeper returns a sweeper for dir. Files older than olderThan are
// removed every interval.
func NewSweeper(dir string, olderThan, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{dir: dir, olderThan: olderThan, interval: interval, now: time.Now}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := SweepScratch(ctx, s.dir, s.olderThan, s.now()); err != nil && ctx.Err() == nil {
		GetLogger().Warn("scratch sweep failed", logger.Error(err))
	}
	if usage, err := GetUsage(ctx, s.dir); err == nil && usage.UsedPercent >= lowSpaceWarnPercent {
		GetLogger().Warn("scratch filesystem is nearly full",
			logger.String("dir", s.dir),
			logger.Float64("used_percent", usage.UsedPercent))
	}
}
