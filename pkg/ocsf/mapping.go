package ocsf

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType is a search-engine field type
type FieldType string

const (
	Keyword FieldType = "keyword"
	Text    FieldType = "text"
	Integer FieldType = "integer"
	Long    FieldType = "long"
	Float   FieldType = "float"
	Boolean FieldType = "boolean"
	IP      FieldType = "ip"
	Date    FieldType = "date"
	Object  FieldType = "object"
	Nested  FieldType = "nested"
)

// Mapping is a flattened field mapping: dotted path -> type.
// Object paths may appear alongside their children.
type Mapping map[string]FieldType

// BaseMapping covers the attributes shared by every class
func BaseMapping() Mapping {
	return Mapping{
		"class_uid":                    Integer,
		"class_name":                   Keyword,
		"category_uid":                 Integer,
		"category_name":                Keyword,
		"activity_id":                  Integer,
		"activity_name":                Keyword,
		"type_uid":                     Long,
		"type_name":                    Keyword,
		"severity_id":                  Integer,
		"severity":                     Keyword,
		"status_id":                    Integer,
		"status":                       Keyword,
		"message":                      Text,
		"time":                         Date,
		"metadata.uid":                 Keyword,
		"metadata.version":             Keyword,
		"metadata.original_time":       Date,
		"metadata.product.name":        Keyword,
		"metadata.product.vendor_name": Keyword,
		"metadata.product.version":     Keyword,
	}
}

// Merge returns a new mapping holding m overlaid with o
func (m Mapping) Merge(o Mapping) Mapping {
	out := make(Mapping, len(m)+len(o))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Paths returns the mapping's field paths in sorted order
func (m Mapping) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Properties renders the mapping as a search-engine "properties" tree
func (m Mapping) Properties() map[string]any {
	root := map[string]any{}
	for _, path := range m.Paths() {
		parts := strings.Split(path, ".")
		props := root
		for _, part := range parts[:len(parts)-1] {
			node, ok := props[part].(map[string]any)
			if !ok {
				node = map[string]any{}
				props[part] = node
			}
			// an object with children is expressed through its properties alone
			if node["type"] == string(Object) {
				delete(node, "type")
			}
			children, ok := node["properties"].(map[string]any)
			if !ok {
				children = map[string]any{}
				node["properties"] = children
			}
			props = children
		}
		leaf := parts[len(parts)-1]
		props[leaf] = fieldDefinition(m[path])
	}
	return root
}

func fieldDefinition(t FieldType) map[string]any {
	def := map[string]any{"type": string(t)}
	if t == Date {
		def["format"] = "epoch_millis||strict_date_optional_time"
	}
	return def
}

// ParseProperties flattens a "properties" tree read back from the search
// engine. Intermediate objects are recorded with type Object.
func ParseProperties(props map[string]any) Mapping {
	out := Mapping{}
	flattenProperties("", props, out)
	return out
}

func flattenProperties(prefix string, props map[string]any, out Mapping) {
	for name, raw := range props {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		t, _ := node["type"].(string)
		if children, ok := node["properties"].(map[string]any); ok {
			if t == "" {
				t = string(Object)
			}
			out[path] = FieldType(t)
			flattenProperties(path, children, out)
			continue
		}
		if t == "" {
			t = string(Object)
		}
		out[path] = FieldType(t)
	}
}

// Conflict is a required field whose existing type differs from the wanted one
type Conflict struct {
	Path string
	Want FieldType
	Have FieldType
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: want %s, have %s", c.Path, c.Want, c.Have)
}

// Compare checks the required mapping m against an existing one. Fields the
// existing mapping lacks are returned as missing; fields it types differently
// are returned as conflicts. A field is also in conflict when an ancestor
// path is mapped as a leaf in the existing mapping.
func (m Mapping) Compare(existing Mapping) (missing Mapping, conflicts []Conflict) {
	missing = Mapping{}
	seen := map[string]bool{}
	for _, path := range m.Paths() {
		want := m[path]
		if have, ok := existing[path]; ok {
			if want != have {
				conflicts = append(conflicts, Conflict{Path: path, Want: want, Have: have})
			}
			continue
		}
		if ancestor, have, ok := leafAncestor(path, existing); ok {
			if !seen[ancestor] {
				seen[ancestor] = true
				conflicts = append(conflicts, Conflict{Path: ancestor, Want: Object, Have: have})
			}
			continue
		}
		missing[path] = want
	}
	return missing, conflicts
}

func leafAncestor(path string, existing Mapping) (string, FieldType, bool) {
	for i := strings.LastIndex(path, "."); i > 0; i = strings.LastIndex(path[:i], ".") {
		prefix := path[:i]
		if t, ok := existing[prefix]; ok && t != Object && t != Nested {
			return prefix, t, true
		}
	}
	return "", "", false
}
