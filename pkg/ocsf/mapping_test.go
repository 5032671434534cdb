package ocsf

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesRoundTrip(t *testing.T) {
	m := Mapping{
		"time":                  Date,
		"http_request.url.path": Keyword,
		"http_request.headers":  Object,
		"src_endpoint.ip":       IP,
	}

	props := m.Properties()
	url := props["http_request"].(map[string]any)["properties"].(map[string]any)["url"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "keyword"}, url["properties"].(map[string]any)["path"])
	assert.Equal(t, "epoch_millis||strict_date_optional_time", props["time"].(map[string]any)["format"])

	// decode the rendered tree the way it would come back over the wire
	raw, err := json.Marshal(props)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	parsed := ParseProperties(decoded)
	for path, want := range m {
		assert.Equal(t, want, parsed[path], path)
	}
	assert.Equal(t, Object, parsed["http_request"])
	assert.Equal(t, Object, parsed["http_request.url"])
}

func TestCompare(t *testing.T) {
	want := Mapping{
		"class_uid":             Integer,
		"http_request.url.path": Keyword,
		"http_response.code":    Integer,
	}

	t.Run("superset is compatible", func(t *testing.T) {
		existing := want.Merge(Mapping{"extra": Keyword, "http_request": Object, "http_request.url": Object})
		missing, conflicts := want.Compare(existing)
		assert.Empty(t, missing)
		assert.Empty(t, conflicts)
	})

	t.Run("missing fields are reported", func(t *testing.T) {
		missing, conflicts := want.Compare(Mapping{"class_uid": Integer})
		assert.Empty(t, conflicts)
		assert.Equal(t, Mapping{"http_request.url.path": Keyword, "http_response.code": Integer}, missing)
	})

	t.Run("type mismatch conflicts", func(t *testing.T) {
		_, conflicts := want.Compare(Mapping{"class_uid": Keyword})
		require.Len(t, conflicts, 1)
		assert.Equal(t, Conflict{Path: "class_uid", Want: Integer, Have: Keyword}, conflicts[0])
	})

	t.Run("leaf ancestor conflicts once", func(t *testing.T) {
		w := Mapping{"http_request.url.path": Keyword, "http_request.http_method": Keyword}
		_, conflicts := w.Compare(Mapping{"http_request": Keyword})
		require.Len(t, conflicts, 1)
		assert.Equal(t, "http_request", conflicts[0].Path)
	})
}
