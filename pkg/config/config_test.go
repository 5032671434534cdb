package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	a, err := Parse([]string{"--endpoint", "https://search.internal:9200", "--count", "4002=20", "4003=10"})
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	assert.Equal(t, DestinationOpenSearch, a.Destination)
	assert.False(t, a.TLSSkipVerify)
	assert.Empty(t, a.Username)
	assert.Empty(t, a.Password)
	assert.Equal(t, 500, a.BatchSize)
	assert.Equal(t, 5, a.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, a.BackoffBase)
	assert.False(t, a.ISMPolicy)
	assert.False(t, a.OpenSearchConfig("").RolloverAlias)

	counts, err := a.ClassCounts(nil)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4002: 20, 4003: 10}, counts)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("OCSF_DESTINATION", "hec")
	t.Setenv("OCSF_ENDPOINTS", "https://hec-a:8088,https://hec-b:8088")
	t.Setenv("HEC_TOKEN", "arn:aws:secretsmanager:us-east-1:123456789012:secret:hec")
	t.Setenv("OCSF_EVENTS_PER_CLASS", "7")
	t.Setenv("OCSF_BATCH_SIZE", "50")

	a, err := Parse(nil)
	require.NoError(t, err)
	require.NoError(t, a.Validate())
	assert.Equal(t, []string{"https://hec-a:8088", "https://hec-b:8088"}, a.Endpoints)
	assert.Equal(t, 50, a.UploaderConfig().BatchSize)

	hecCfg := a.HECConfig("resolved")
	assert.Equal(t, "resolved", hecCfg.Token)
	assert.Equal(t, "roundrobin", hecCfg.BalanceStrategy)

	counts, err := a.ClassCounts([]int{4002, 4003})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4002: 7, 4003: 7}, counts)
}

func TestValidate(t *testing.T) {
	base := func() Args {
		return Args{
			Destination: DestinationOpenSearch,
			Endpoints:   []string{"https://search.internal:9200"},
			Counts:      []string{"4002=1"},
			BatchSize:   10,
			MaxAttempts: 3,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Args)
		ok     bool
	}{
		{"valid", func(a *Args) {}, true},
		{"dry run needs no endpoint", func(a *Args) { a.Destination = DestinationMemory; a.Endpoints = nil }, true},
		{"missing endpoint", func(a *Args) { a.Endpoints = nil }, false},
		{"unknown destination", func(a *Args) { a.Destination = "kafka" }, false},
		{"hec without token", func(a *Args) { a.Destination = DestinationHEC }, false},
		{"nothing requested", func(a *Args) { a.Counts = nil }, false},
		{"input only", func(a *Args) { a.Counts = nil; a.Input = "-" }, true},
		{"zero batch", func(a *Args) { a.BatchSize = 0 }, false},
		{"zero attempts", func(a *Args) { a.MaxAttempts = 0 }, false},
		{"half s3 credentials", func(a *Args) { a.S3AccessKeyID = "AKIA" }, false},
		{"bad count", func(a *Args) { a.Counts = []string{"4002"} }, false},
		{"rollover policy on opensearch", func(a *Args) { a.ISMPolicy = true }, true},
		{"rollover policy on hec", func(a *Args) { a.ISMPolicy = true; a.Destination = DestinationHEC; a.Token = "t" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base()
			tt.mutate(&a)
			err := a.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRolloverPolicy(t *testing.T) {
	a, err := Parse([]string{"--endpoint", "https://search.internal:9200", "--count", "4002=1", "--ism-policy", "--index-prefix", "lab", "--ism-retention", "30d"})
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	assert.True(t, a.OpenSearchConfig("").RolloverAlias)
	p := a.RolloverPolicy()
	assert.Equal(t, RolloverPolicyID, p.ID)
	assert.Equal(t, "lab-*", p.Pattern)
	assert.Equal(t, "40gb", p.MinSize)
	assert.Equal(t, "1d", p.MinAge)
	assert.Equal(t, "30d", p.Retention)

	a.IndexPrefix = ""
	assert.Equal(t, "ocsf-*", a.RolloverPolicy().Pattern)
}

func TestParseCounts(t *testing.T) {
	got, err := ParseCounts([]string{"4002=20", " 1001 = 0 "})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4002: 20, 1001: 0}, got)

	for _, bad := range [][]string{{"4002"}, {"x=1"}, {"4002=y"}, {"4002=-1"}, {"4002=1", "4002=2"}} {
		_, err := ParseCounts(bad)
		assert.Error(t, err, "%v", bad)
	}
}
