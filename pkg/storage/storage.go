package storage

import (
	"context"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

// StorageBackend keeps events a destination did not persist
type StorageBackend interface {
	// Store saves events together with the reason they were set aside
	Store(ctx context.Context, record Record) error

	// Close cleans up resources
	Close() error
}

// Record is one batch of undelivered events
type Record struct {
	Index    string       `json:"index"`
	ClassUID int          `json:"class_uid"`
	Reason   string       `json:"reason"`
	Events   []ocsf.Event `json:"-"`
}

// StorageConfig holds common storage configuration
type StorageConfig struct {
	URL             string
	Region          string
	CompressionType string // gzip, none
}
