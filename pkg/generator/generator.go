package generator

import (
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

// Generator produces synthetic events for one OCSF class. A Generator owns
// its random source and is not safe for concurrent use; run one per worker.
type Generator interface {
	Class() ocsf.Class
	// Generate returns one complete event, or a *GenerationError and no event
	Generate() (ocsf.Event, error)
}

// Config controls a generator instance
type Config struct {
	// Seed makes the event sequence reproducible. Zero picks a random seed.
	Seed int64
	// Clock is the reference time events are stamped relative to. Nil means time.Now.
	Clock func() time.Time
}

// Factory builds a generator for a class
type Factory func(cfg Config) Generator

// Definition ties a class to the factory that generates it
type Definition struct {
	Class   ocsf.Class
	Factory Factory
}

// Builtin returns a definition for every class in the built-in catalog
func Builtin() []Definition {
	return []Definition{
		{Class: ocsf.FileSystemActivity, Factory: NewFileSystemActivity},
		{Class: ocsf.KernelActivity, Factory: NewKernelActivity},
		{Class: ocsf.SecurityFinding, Factory: NewSecurityFinding},
		{Class: ocsf.ComplianceFinding, Factory: NewComplianceFinding},
		{Class: ocsf.DetectionFinding, Factory: NewDetectionFinding},
		{Class: ocsf.AccountChange, Factory: NewAccountChange},
		{Class: ocsf.Authentication, Factory: NewAuthentication},
		{Class: ocsf.NetworkActivity, Factory: NewNetworkActivity},
		{Class: ocsf.HTTPActivity, Factory: NewHTTPActivity},
		{Class: ocsf.DNSActivity, Factory: NewDNSActivity},
		{Class: ocsf.DatabaseActivity, Factory: NewDatabaseActivity},
		{Class: ocsf.ApplicationActivity, Factory: NewApplicationActivity},
		{Class: ocsf.APIActivity, Factory: NewAPIActivity},
	}
}

// ErrEmptyTable is returned when a lookup table a field is drawn from has no entries
var ErrEmptyTable = errors.New("lookup table is empty")

// GenerationError reports a field a generator could not produce
type GenerationError struct {
	ClassUID int
	Field    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("class %d: cannot generate %s: %v", e.ClassUID, e.Field, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// base carries what every class generator shares: the class, a private
// faker and the clock.
type base struct {
	class   ocsf.Class
	product string
	faker   *gofakeit.Faker
	clock   func() time.Time
}

func newBase(class ocsf.Class, product string, cfg Config) base {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return base{
		class:   class,
		product: product,
		faker:   gofakeit.New(cfg.Seed),
		clock:   clock,
	}
}

func (b *base) Class() ocsf.Class {
	return b.class
}

func (b *base) fail(field string, err error) error {
	return &GenerationError{ClassUID: b.class.UID, Field: field, Err: err}
}

// header starts an event with the attributes every class carries
func (b *base) header(activityID, severityID, statusID int) (ocsf.Event, error) {
	activity, ok := b.class.Activities[activityID]
	if !ok {
		return nil, b.fail("activity_name", fmt.Errorf("no caption for activity %d", activityID))
	}
	severity, ok := ocsf.SeverityNames[severityID]
	if !ok {
		return nil, b.fail("severity", fmt.Errorf("no caption for severity %d", severityID))
	}
	status, ok := b.class.StatusCaptions()[statusID]
	if !ok {
		return nil, b.fail("status", fmt.Errorf("no caption for status %d", statusID))
	}

	// events are spread over the hour before the reference time
	ts := b.clock().Add(-time.Duration(b.faker.Number(0, 3600)) * time.Second).UnixMilli()

	return ocsf.Event{
		"class_uid":     b.class.UID,
		"class_name":    b.class.Name,
		"category_uid":  b.class.CategoryUID,
		"category_name": b.class.CategoryName,
		"activity_id":   activityID,
		"activity_name": activity,
		"type_uid":      b.class.TypeUID(activityID),
		"type_name":     b.class.Name + ": " + activity,
		"severity_id":   severityID,
		"severity":      severity,
		"status_id":     statusID,
		"status":        status,
		"time":          ts,
		"metadata": map[string]any{
			"uid":           b.faker.UUID(),
			"version":       ocsf.SchemaVersion,
			"original_time": ts,
			"product": map[string]any{
				"name":        b.product,
				"vendor_name": "OCSF",
				"version":     "1.0.0",
			},
		},
	}, nil
}

// finish validates a complete event against its class
func (b *base) finish(ev ocsf.Event) (ocsf.Event, error) {
	if err := ocsf.Validate(b.class, ev); err != nil {
		var fe *ocsf.FieldError
		if errors.As(err, &fe) {
			return nil, b.fail(fe.Path, err)
		}
		return nil, b.fail("event", err)
	}
	return ev, nil
}

func pick[T any](f *gofakeit.Faker, table []T) (T, error) {
	var zero T
	if len(table) == 0 {
		return zero, ErrEmptyTable
	}
	return table[f.Number(0, len(table)-1)], nil
}

// code is a numeric id with its caption
type code struct {
	ID   int
	Name string
}

func endpoint(f *gofakeit.Faker, hostname string, port int) map[string]any {
	ep := map[string]any{
		"ip":   f.IPv4Address(),
		"port": port,
	}
	if hostname != "" {
		ep["hostname"] = hostname
	}
	return ep
}

// sample draws n distinct entries of table, or all of them when n is larger
func sample[T any](f *gofakeit.Faker, table []T, n int) []T {
	pool := append([]T(nil), table...)
	if n > len(pool) {
		n = len(pool)
	}
	for i := 0; i < n; i++ {
		j := f.Number(i, len(pool)-1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}

func severityFor(f *gofakeit.Faker) int {
	return f.Number(ocsf.SeverityInformational, ocsf.SeverityCritical)
}
