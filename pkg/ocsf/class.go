package ocsf

import (
	"fmt"
	"slices"
	"sort"
)

// Categories used by the built-in classes
const (
	CategorySystem      = 1
	CategoryFindings    = 2
	CategoryIAM         = 3
	CategoryNetwork     = 4
	CategoryDiscovery   = 5
	CategoryApplication = 6
)

// Severity ids shared by every class
const (
	SeverityUnknown       = 0
	SeverityInformational = 1
	SeverityLow           = 2
	SeverityMedium        = 3
	SeverityHigh          = 4
	SeverityCritical      = 5
	SeverityFatal         = 6
	SeverityOther         = 99
)

// Status ids shared by every class
const (
	StatusUnknown = 0
	StatusSuccess = 1
	StatusFailure = 2
	StatusOther   = 99
)

// Finding status ids, used by the finding classes in place of StatusNames
const (
	FindingNew        = 1
	FindingInProgress = 2
	FindingSuppressed = 3
	FindingResolved   = 4
)

// SeverityNames maps severity_id to its caption
var SeverityNames = map[int]string{
	SeverityUnknown:       "Unknown",
	SeverityInformational: "Informational",
	SeverityLow:           "Low",
	SeverityMedium:        "Medium",
	SeverityHigh:          "High",
	SeverityCritical:      "Critical",
	SeverityFatal:         "Fatal",
	SeverityOther:         "Other",
}

// StatusNames maps status_id to its caption
var StatusNames = map[int]string{
	StatusUnknown: "Unknown",
	StatusSuccess: "Success",
	StatusFailure: "Failure",
	StatusOther:   "Other",
}

// FindingStatusNames maps the status_id of a finding to its caption
var FindingStatusNames = map[int]string{
	StatusUnknown:     "Unknown",
	FindingNew:        "New",
	FindingInProgress: "In Progress",
	FindingSuppressed: "Suppressed",
	FindingResolved:   "Resolved",
	StatusOther:       "Other",
}

// BaseRequired lists the fields every event must carry regardless of class
var BaseRequired = []string{
	"class_uid",
	"class_name",
	"category_uid",
	"category_name",
	"activity_id",
	"activity_name",
	"type_uid",
	"severity_id",
	"severity",
	"status_id",
	"time",
	"metadata.version",
	"metadata.product.name",
	"metadata.product.vendor_name",
}

// Class describes one OCSF event class: its identity, the fields an event
// must carry, the integer fields restricted to an enumeration, and the index
// mapping its documents need.
type Class struct {
	UID          int
	Name         string
	Slug         string
	CategoryUID  int
	CategoryName string
	Activities   map[int]string
	// Required holds class-specific field paths on top of BaseRequired
	Required []string
	// Enums holds class-specific enumerated fields on top of activity_id,
	// severity_id and status_id
	Enums map[string][]int
	// Statuses replaces StatusNames for classes with their own status_id
	// enumeration
	Statuses map[int]string
	Mapping  Mapping
}

// TypeUID returns class_uid * 100 + activity_id
func (c Class) TypeUID(activityID int) int {
	return c.UID*100 + activityID
}

// StatusCaptions returns the status_id captions that apply to the class
func (c Class) StatusCaptions() map[int]string {
	if c.Statuses != nil {
		return c.Statuses
	}
	return StatusNames
}

// RequiredFields returns the base and class-specific required paths
func (c Class) RequiredFields() []string {
	out := make([]string, 0, len(BaseRequired)+len(c.Required))
	out = append(out, BaseRequired...)
	return append(out, c.Required...)
}

// EnumeratedFields returns every enumerated field of the class with its
// valid values, sorted by path.
func (c Class) EnumeratedFields() map[string][]int {
	out := map[string][]int{
		"activity_id": sortedKeys(c.Activities),
		"severity_id": sortedKeys(SeverityNames),
		"status_id":   sortedKeys(c.StatusCaptions()),
	}
	for path, values := range c.Enums {
		out[path] = values
	}
	return out
}

// IndexMapping is the base mapping merged with the class mapping
func (c Class) IndexMapping() Mapping {
	return BaseMapping().Merge(c.Mapping)
}

// FieldError reports the first field that makes an event invalid for its class
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Path, e.Reason)
}

// Validate checks that ev carries every required field of c with a non-empty
// value and that every enumerated field holds an allowed value.
func Validate(c Class, ev Event) error {
	for _, path := range c.RequiredFields() {
		v, ok := ev.Get(path)
		if !ok || v == nil {
			return &FieldError{Path: path, Reason: "missing"}
		}
		if s, isStr := v.(string); isStr && s == "" {
			return &FieldError{Path: path, Reason: "empty"}
		}
	}

	uid, ok := ev.ClassUID()
	if !ok {
		return &FieldError{Path: "class_uid", Reason: "not an integer"}
	}
	if uid != c.UID {
		return &FieldError{Path: "class_uid", Reason: fmt.Sprintf("got %d, want %d", uid, c.UID)}
	}

	enums := c.EnumeratedFields()
	paths := make([]string, 0, len(enums))
	for p := range enums {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, path := range paths {
		v, ok := ev.Get(path)
		if !ok {
			continue
		}
		n, ok := AsInt(v)
		if !ok {
			return &FieldError{Path: path, Reason: "not an integer"}
		}
		if !slices.Contains(enums[path], n) {
			return &FieldError{Path: path, Reason: fmt.Sprintf("value %d outside enumeration", n)}
		}
	}

	activity, _ := ev.Get("activity_id")
	act, _ := AsInt(activity)
	typeUID, _ := ev.Get("type_uid")
	if t, ok := AsInt(typeUID); !ok || t != c.TypeUID(act) {
		return &FieldError{Path: "type_uid", Reason: fmt.Sprintf("want %d", c.TypeUID(act))}
	}
	return nil
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
