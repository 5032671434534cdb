package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/storage"
)

// putObjectAPI is the part of the S3 client Storage needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Storage writes undelivered batches to S3 as NDJSON objects
type Storage struct {
	config    storage.StorageConfig
	client    putObjectAPI
	bucket    string
	keyPrefix string
	now       func() time.Time
}

var _ storage.StorageBackend = (*Storage)(nil)

// NewStorage creates a new S3 storage backend
func NewStorage(cfg storage.StorageConfig, awsCfg aws.Config) (*Storage, error) {
	return newStorage(cfg, s3.NewFromConfig(awsCfg))
}

func newStorage(cfg storage.StorageConfig, client putObjectAPI) (*Storage, error) {
	bucket, keyPrefix, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &Storage{
		config:    cfg,
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// ParseURL splits an S3 URL into bucket and key prefix. Virtual-hosted,
// path-style and s3:// URLs are accepted.
func ParseURL(raw string) (bucket, keyPrefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL: %w", err)
	}

	switch {
	case u.Scheme == "s3":
		bucket = u.Host
		keyPrefix = strings.Trim(u.Path, "/")
	case strings.Contains(u.Host, ".s3.") || strings.Contains(u.Host, ".s3-"):
		// Virtual-hosted-style URL: bucket.s3.region.amazonaws.com
		bucket = strings.Split(u.Host, ".")[0]
		keyPrefix = strings.Trim(u.Path, "/")
	default:
		// Path-style URL: s3.region.amazonaws.com/bucket
		pathParts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
		bucket = pathParts[0]
		if len(pathParts) > 1 {
			keyPrefix = pathParts[1]
		}
	}

	if bucket == "" {
		return "", "", fmt.Errorf("could not parse bucket name from URL: %s", raw)
	}
	return bucket, keyPrefix, nil
}

func (s *Storage) compress() bool {
	return s.config.CompressionType != "none"
}

// Key builds the object key for a record written at t
func (s *Storage) Key(record storage.Record, t time.Time) string {
	ext := "ndjson"
	if s.compress() {
		ext += ".gz"
	}
	key := fmt.Sprintf("%d/%02d/%02d/%02d/%s/%s-%s.%s",
		t.Year(),
		t.Month(),
		t.Day(),
		t.Hour(),
		record.Index,
		t.Format("2006-01-02T15:04:05.000Z"),
		uuid.New().String(),
		ext,
	)
	if s.keyPrefix != "" {
		key = s.keyPrefix + "/" + key
	}
	return key
}

// Encode renders the record events as NDJSON, gzipped unless compression is off
func (s *Storage) Encode(record storage.Record) ([]byte, error) {
	var buf bytes.Buffer
	var enc *json.Encoder
	var gz *gzip.Writer
	if s.compress() {
		gz, _ = gzip.NewWriterLevel(&buf, gzip.BestCompression)
		enc = json.NewEncoder(gz)
	} else {
		enc = json.NewEncoder(&buf)
	}

	for i, ev := range record.Events {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("failed to marshal event %d: %w", i, err)
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Store saves a record to S3
func (s *Storage) Store(ctx context.Context, record storage.Record) error {
	if len(record.Events) == 0 {
		return nil
	}
	body, err := s.Encode(record)
	if err != nil {
		return err
	}

	key := s.Key(record, s.now().UTC())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
		Metadata: map[string]string{
			"index":     record.Index,
			"class-uid": strconv.Itoa(record.ClassUID),
			"reason":    strings.Join(strings.Fields(record.Reason), " "),
		},
	}
	if s.compress() {
		input.ContentEncoding = aws.String("gzip")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Info().Int("events", len(record.Events)).Str("bucket", s.bucket).Str("key", key).Msg("stored undelivered events")
	return nil
}

// Close cleans up resources
func (s *Storage) Close() error {
	return nil
}
