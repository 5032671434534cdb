package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

// ErrIndexExists is returned by CreateIndex when another creator won the race
var ErrIndexExists = errors.New("index already exists")

// ItemResult is the destination's verdict on one document of a bulk request
type ItemResult struct {
	Status    int
	ErrorType string
	Reason    string
}

// Accepted reports whether the document was persisted
func (i ItemResult) Accepted() bool {
	return i.Status >= 200 && i.Status < 300 && i.ErrorType == ""
}

// BulkResponse holds one ItemResult per submitted document, in submission order
type BulkResponse struct {
	Items []ItemResult
}

// BulkWriter writes a batch of events to a single index in one request
type BulkWriter interface {
	Bulk(ctx context.Context, index string, events []ocsf.Event) (*BulkResponse, error)
}

// IndexAdmin manages destination indices
type IndexAdmin interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	// CreateIndex returns ErrIndexExists when the index appeared concurrently
	CreateIndex(ctx context.Context, index string, mapping ocsf.Mapping) error
	// GetMapping returns nil when the destination does not enforce mappings
	GetMapping(ctx context.Context, index string) (ocsf.Mapping, error)
	PutMapping(ctx context.Context, index string, mapping ocsf.Mapping) error
}

// AliasAdmin is implemented by destinations that group dated indices of one
// family under an alias
type AliasAdmin interface {
	// PutAlias adds index to alias; repeating it is harmless
	PutAlias(ctx context.Context, index, alias string) error
}

// Destination is a complete write target
type Destination interface {
	BulkWriter
	IndexAdmin
	Close() error
}

// TransportError is a whole-request failure: the destination could not be
// reached, answered with an error status, or answered with something that
// could not be interpreted.
type TransportError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is a reachable destination answering with a body
// that is neither a clean success nor a per-document result list
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %v", e.Err)
	}
	return "malformed response"
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NetworkError wraps a failure to complete the request at all
func NetworkError(op string, err error) *TransportError {
	return &TransportError{Op: op, Retryable: true, Err: err}
}

// StatusError wraps an error status; throttling and server errors are retryable
func StatusError(op string, status int, body string) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: status,
		Retryable:  RetryableStatus(status),
		Err:        errors.New(truncate(body, 512)),
	}
}

// Malformed wraps an uninterpretable response. It is retried like a network failure.
func Malformed(op string, status int, body []byte, err error) *TransportError {
	return &TransportError{
		Op:         op,
		StatusCode: status,
		Retryable:  true,
		Err:        &MalformedResponseError{Body: truncate(string(body), 512), Err: err},
	}
}

// RetryableStatus reports whether an HTTP status is worth retrying
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500
}

// IsRetryable reports whether err is a TransportError marked retryable
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
