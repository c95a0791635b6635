package analysis

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafnet/leafnet-go/internal/datastore"
	"github.com/leafnet/leafnet-go/internal/leafnet"
)

func TestWriteResultSortsByProbability(t *testing.T) {
	t.Parallel()

	result := &leafnet.Result{
		Class:      "late_blight_leaf",
		Confidence: 0.8,
		Probabilities: []leafnet.ClassProbability{
			{Class: "healthy_leaf", Probability: 0.05},
			{Class: "early_blight_leaf", Probability: 0.1},
			{Class: "late_blight_leaf", Probability: 0.8},
			{Class: "tomato_yellow_leaf_curl_virus", Probability: 0.05},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, "leaf.jpg", result))
	out := buf.String()

	assert.Contains(t, out, "late_blight_leaf (80.00%)")
	late := strings.Index(out, "late_blight_leaf  ")
	early := strings.Index(out, "early_blight_leaf")
	assert.Less(t, late, early, "most likely class first")
	// original order kept for ties
	assert.Less(t, strings.Index(out, "healthy_leaf"), strings.Index(out, "tomato_yellow_leaf_curl_virus"))
}

func TestWriteStats(t *testing.T) {
	t.Parallel()

	stats := datastore.BuildDiseaseStats(leafnet.DefaultLabels(), map[string]int64{
		"early_blight_leaf": 2,
		"healthy_leaf":      1,
	})

	var table bytes.Buffer
	require.NoError(t, writeStats(&table, stats, false))
	assert.Contains(t, table.String(), "Last 30 days, 3 analysed")
	assert.Contains(t, table.String(), "66.67%")

	var js bytes.Buffer
	require.NoError(t, writeStats(&js, stats, true))
	assert.Contains(t, js.String(), `"period": "Last 30 days"`)
	assert.Contains(t, js.String(), `"early_blight_leaf": "66.67%"`)
}

func TestValidateImageFile(t *testing.T) {
	t.Parallel()

	require.Error(t, validateImageFile(t.TempDir()))
	require.Error(t, validateImageFile("/definitely/not/here.jpg"))
}

func TestScratchMaxAge(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4*time.Minute, scratchMaxAge(0))
	assert.Equal(t, 10*time.Minute, scratchMaxAge(5*time.Minute))
}
