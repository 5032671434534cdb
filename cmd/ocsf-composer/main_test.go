package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosajjal/ocsf-composer/pkg/composer"
)

func TestWriteReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := &composer.RunReport{RunID: "r-1", Status: composer.StatusPartial}
	require.NoError(t, writeReport(path, report))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "r-1", decoded["run_id"])
	assert.Equal(t, "partial", decoded["status"])
}

func TestWriteReportBadPath(t *testing.T) {
	err := writeReport(filepath.Join(t.TempDir(), "missing", "report.json"), &composer.RunReport{})
	assert.Error(t, err)
}
