package datastore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/leafnet/leafnet-go/internal/errors"
)

// StatsWindow is the look-back period for disease statistics.
const StatsWindow = 30 * 24 * time.Hour

// StatsPeriod labels the window in stats responses.
const StatsPeriod = "Last 30 days"

// CountCompletedByClass counts completed records processed at or after since,
// grouped by classification.
func (ds *DataStore) CountCompletedByClass(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Classification string
		Count          int64
	}

	err := ds.DB.WithContext(ctx).
		Model(&ImageRecord{}).
		Select("classification, COUNT(*) AS count").
		Where("status = ? AND processed_at >= ? AND classification IS NOT NULL", StatusCompleted, since.UTC()).
		Group("classification").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "count_completed_by_class", errors.PriorityLow, "since", since.Format(time.RFC3339))
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Classification] = r.Count
	}
	return counts, nil
}

// DiseaseStats is the per-class breakdown of recent classifications.
type DiseaseStats struct {
	Counts      map[string]int64  `json:"counts"`
	Percentages map[string]string `json:"percentages"`
	Total       int64             `json:"total"`
	Period      string            `json:"period"`
}

// BuildDiseaseStats seeds every label with zero, merges counts and formats
// percentages with two decimals. Classes outside labels are kept.
func BuildDiseaseStats(labels []string, counts map[string]int64) *DiseaseStats {
	stats := &DiseaseStats{
		Counts:      make(map[string]int64, len(labels)),
		Percentages: make(map[string]string, len(labels)),
		Period:      StatsPeriod,
	}
	for _, l := range labels {
		stats.Counts[l] = 0
	}
	for class, n := range counts {
		stats.Counts[class] += n
	}
	for _, n := range stats.Counts {
		stats.Total += n
	}
	for class, n := range stats.Counts {
		if stats.Total == 0 {
			stats.Percentages[class] = "0%"
			continue
		}
		stats.Percentages[class] = fmt.Sprintf("%.2f%%", float64(n)/float64(stats.Total)*100)
	}
	return stats
}

// Classes returns the stat keys in a stable order.
func (s *DiseaseStats) Classes() []string {
	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// DiseaseStatsSince queries the store and builds stats for the window ending at now.
func DiseaseStatsSince(ctx context.Context, store Interface, labels []string, now time.Time) (*DiseaseStats, error) {
	counts, err := store.CountCompletedByClass(ctx, now.Add(-StatsWindow))
	if err != nil {
		return nil, err
	}
	return BuildDiseaseStats(labels, counts), nil
}
