package ocsf

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHTTPEvent() Event {
	ev := Event{}
	ev.Set("class_uid", ClassHTTPActivity)
	ev.Set("class_name", HTTPActivity.Name)
	ev.Set("category_uid", HTTPActivity.CategoryUID)
	ev.Set("category_name", HTTPActivity.CategoryName)
	ev.Set("activity_id", 3)
	ev.Set("activity_name", "Get")
	ev.Set("type_uid", HTTPActivity.TypeUID(3))
	ev.Set("severity_id", SeverityInformational)
	ev.Set("severity", "Informational")
	ev.Set("status_id", StatusSuccess)
	ev.Set("time", int64(1718000000000))
	ev.Set("metadata.version", SchemaVersion)
	ev.Set("metadata.product.name", "Web Server")
	ev.Set("metadata.product.vendor_name", "OCSF")
	ev.Set("http_request.http_method", "GET")
	ev.Set("http_request.url.path", "/login")
	ev.Set("http_response.code", 200)
	ev.Set("src_endpoint.ip", "10.0.0.1")
	ev.Set("dst_endpoint.ip", "10.0.0.2")
	return ev
}

func TestEventGetSet(t *testing.T) {
	ev := Event{}
	ev.Set("http_request.url.path", "/login")
	ev.Set("http_request.http_method", "POST")

	v, ok := ev.Get("http_request.url.path")
	require.True(t, ok)
	assert.Equal(t, "/login", v)

	_, ok = ev.Get("http_request.url.query_string")
	assert.False(t, ok)

	_, ok = ev.Get("http_request.http_method.x")
	assert.False(t, ok, "descending into a leaf must fail")
}

func TestClassUIDFromDecodedJSON(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"class_uid":4003,"dns":{"x":1}}`), &ev))

	uid, ok := ev.ClassUID()
	require.True(t, ok)
	assert.Equal(t, 4003, uid)

	ev["class_uid"] = 4003.5
	_, ok = ev.ClassUID()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(HTTPActivity, validHTTPEvent()))

	tests := []struct {
		name  string
		edit  func(Event)
		field string
	}{
		{"missing required", func(e Event) { delete(e["http_request"].(map[string]any), "http_method") }, "http_request.http_method"},
		{"empty string", func(e Event) { e.Set("src_endpoint.ip", "") }, "src_endpoint.ip"},
		{"nil value", func(e Event) { e.Set("time", nil) }, "time"},
		{"activity outside enum", func(e Event) { e.Set("activity_id", 42); e.Set("type_uid", 400242) }, "activity_id"},
		{"severity outside enum", func(e Event) { e.Set("severity_id", 7) }, "severity_id"},
		{"wrong class", func(e Event) { e.Set("class_uid", ClassDNSActivity) }, "class_uid"},
		{"bad type_uid", func(e Event) { e.Set("type_uid", 400201) }, "type_uid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validHTTPEvent()
			tt.edit(ev)
			err := Validate(HTTPActivity, ev)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.field, fe.Path)
		})
	}
}

func TestBuiltinCatalogIsConsistent(t *testing.T) {
	seen := map[int]bool{}
	for _, c := range Builtin() {
		assert.False(t, seen[c.UID], "duplicate class %d", c.UID)
		seen[c.UID] = true

		mapping := c.IndexMapping()
		for _, path := range c.RequiredFields() {
			_, ok := mapping[path]
			assert.True(t, ok, "class %d: required field %s has no mapping", c.UID, path)
		}
		for path := range c.Enums {
			assert.Equal(t, Integer, mapping[path], "class %d: enum %s must be mapped as integer", c.UID, path)
		}
		_, conflicts := mapping.Compare(mapping)
		assert.Empty(t, conflicts)
	}
}
