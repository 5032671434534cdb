// Package config holds the command line and environment surface. Nothing
// that reaches a destination has a default: endpoints and credentials must
// be supplied explicitly.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/mosajjal/ocsf-composer/pkg/sink/hec"
	"github.com/mosajjal/ocsf-composer/pkg/sink/opensearch"
	"github.com/mosajjal/ocsf-composer/pkg/uploader"
)

const (
	DestinationOpenSearch = "opensearch"
	DestinationHEC        = "hec"
	DestinationMemory     = "memory"
)

// Args is parsed from flags, falling back to environment variables
type Args struct {
	Destination   string   `arg:"--destination,env:OCSF_DESTINATION" default:"opensearch" help:"opensearch, hec or memory (dry run)"`
	Endpoints     []string `arg:"--endpoint,env:OCSF_ENDPOINTS" help:"destination base URLs"`
	Username      string   `arg:"--username,env:OCSF_USERNAME"`
	Password      string   `arg:"--password,env:OCSF_PASSWORD" help:"password, or an arn:aws:secretsmanager: ARN"`
	Token         string   `arg:"--token,env:HEC_TOKEN" help:"HEC token, or an arn:aws:secretsmanager: ARN"`
	TLSSkipVerify bool     `arg:"--tls-skip-verify,env:OCSF_TLS_SKIP_VERIFY"`
	Proxy         string   `arg:"--proxy,env:OCSF_PROXY"`

	Counts         []string `arg:"--count,env:OCSF_COUNTS" help:"events per class as CLASS_UID=N"`
	EventsPerClass int      `arg:"--events-per-class,env:OCSF_EVENTS_PER_CLASS" help:"events for every registered class without an explicit --count"`
	Seed           int64    `arg:"--seed,env:OCSF_SEED" help:"0 picks a random seed"`
	IndexPrefix    string   `arg:"--index-prefix,env:OCSF_INDEX_PREFIX" help:"replaces the leading ocsf of index names"`
	Input          string   `arg:"--input,env:OCSF_INPUT" help:"NDJSON file of OCSF events to ingest instead of generating, - for stdin"`
	Report         string   `arg:"--report,env:OCSF_REPORT" default:"-" help:"where to write the JSON run report, - for stdout"`

	BatchSize      int           `arg:"--batch-size,env:OCSF_BATCH_SIZE" default:"500"`
	MaxAttempts    int           `arg:"--max-attempts,env:OCSF_MAX_ATTEMPTS" default:"5"`
	BackoffBase    time.Duration `arg:"--backoff-base,env:OCSF_BACKOFF_BASE" default:"500ms"`
	BackoffMax     time.Duration `arg:"--backoff-max,env:OCSF_BACKOFF_MAX" default:"30s"`
	AttemptTimeout time.Duration `arg:"--attempt-timeout,env:OCSF_ATTEMPT_TIMEOUT" default:"60s"`

	Shards   int `arg:"--shards,env:OCSF_SHARDS" default:"1"`
	Replicas int `arg:"--replicas,env:OCSF_REPLICAS" default:"1"`

	ISMPolicy    bool   `arg:"--ism-policy,env:OCSF_ISM_POLICY" help:"install a rollover and expiry policy and make each class alias its rollover target"`
	ISMMinSize   string `arg:"--ism-min-size,env:OCSF_ISM_MIN_SIZE" default:"40gb"`
	ISMMinAge    string `arg:"--ism-min-age,env:OCSF_ISM_MIN_AGE" default:"1d"`
	ISMRetention string `arg:"--ism-retention,env:OCSF_ISM_RETENTION" default:"15d" help:"age at which rolled indices are deleted"`

	HECIndex      string        `arg:"--hec-index,env:HEC_INDEX" help:"send every class to this index instead of the per-class name"`
	HECSource     string        `arg:"--hec-source,env:HEC_SOURCE" default:"ocsf-composer"`
	HECSourceType string        `arg:"--hec-sourcetype,env:HEC_SOURCETYPE" default:"ocsf"`
	HECHost       string        `arg:"--hec-host,env:HEC_HOST"`
	HECChannelID  string        `arg:"--hec-channel,env:HEC_CHANNEL_ID"`
	HECBalance    string        `arg:"--hec-balance,env:HEC_BALANCE" default:"roundrobin"`
	HECTimeout    time.Duration `arg:"--hec-timeout,env:HEC_TIMEOUT" default:"10s"`

	Region            string `arg:"--region,env:AWS_REGION"`
	DeadLetterURL     string `arg:"--dead-letter-url,env:S3_URL" help:"example: https://YOURBUCKET.s3.ap-southeast-2.amazonaws.com/YOURFOLDER/"`
	S3AccessKeyID     string `arg:"--s3-access-key-id,env:S3_ACCESS_KEY_ID"`
	S3AccessKeySecret string `arg:"--s3-access-key-secret,env:S3_ACCESS_KEY_SECRET"`

	LogLevel  string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	LogPretty bool   `arg:"--log-pretty,env:LOG_PRETTY"`
}

// Description is shown in --help
func (Args) Description() string {
	return "Generates synthetic OCSF events and bulk-loads them into OpenSearch or Splunk HEC"
}

// Parse reads argv and the environment into Args
func Parse(argv []string) (Args, error) {
	var a Args
	p, err := arg.NewParser(arg.Config{Program: "ocsf-composer"}, &a)
	if err != nil {
		return a, err
	}
	if err := p.Parse(argv); err != nil {
		return a, err
	}
	return a, nil
}

// MustParse parses os.Args, exiting on error or --help
func MustParse() Args {
	var a Args
	arg.MustParse(&a)
	return a
}

// Validate checks everything that does not depend on the registered classes
func (a Args) Validate() error {
	switch a.Destination {
	case DestinationOpenSearch, DestinationHEC:
		if len(a.Endpoints) == 0 {
			return fmt.Errorf("at least one --endpoint is required for destination %s", a.Destination)
		}
	case DestinationMemory:
	default:
		return fmt.Errorf("unknown destination %q", a.Destination)
	}
	if a.Destination == DestinationHEC && a.Token == "" {
		return fmt.Errorf("--token is required for destination hec")
	}
	if (a.S3AccessKeyID == "") != (a.S3AccessKeySecret == "") {
		return fmt.Errorf("S3 access key id and secret must be given together")
	}
	if a.ISMPolicy && a.Destination != DestinationOpenSearch {
		return fmt.Errorf("--ism-policy needs destination opensearch")
	}
	if a.EventsPerClass < 0 {
		return fmt.Errorf("events per class must not be negative")
	}
	if a.Input == "" && len(a.Counts) == 0 && a.EventsPerClass == 0 {
		return fmt.Errorf("nothing to do: give --count, --events-per-class or --input")
	}
	if _, err := ParseCounts(a.Counts); err != nil {
		return err
	}
	return a.UploaderConfig().Validate()
}

// ParseCounts turns CLASS_UID=N pairs into a map
func ParseCounts(pairs []string) (map[int]int, error) {
	out := make(map[int]int, len(pairs))
	for _, pair := range pairs {
		uidText, countText, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid count %q, want CLASS_UID=N", pair)
		}
		uid, err := strconv.Atoi(strings.TrimSpace(uidText))
		if err != nil {
			return nil, fmt.Errorf("invalid class uid in %q: %w", pair, err)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countText))
		if err != nil {
			return nil, fmt.Errorf("invalid count in %q: %w", pair, err)
		}
		if count < 0 {
			return nil, fmt.Errorf("count for class %d must not be negative", uid)
		}
		if _, dup := out[uid]; dup {
			return nil, fmt.Errorf("class %d given more than once", uid)
		}
		out[uid] = count
	}
	return out, nil
}

// ClassCounts resolves the requested events per class. Explicit counts win;
// EventsPerClass fills in every other registered class.
func (a Args) ClassCounts(registered []int) (map[int]int, error) {
	counts, err := ParseCounts(a.Counts)
	if err != nil {
		return nil, err
	}
	if a.EventsPerClass > 0 {
		for _, uid := range registered {
			if _, ok := counts[uid]; !ok {
				counts[uid] = a.EventsPerClass
			}
		}
	}
	return counts, nil
}

// UploaderConfig returns the batching and retry settings
func (a Args) UploaderConfig() uploader.Config {
	return uploader.Config{
		BatchSize:      a.BatchSize,
		MaxAttempts:    a.MaxAttempts,
		BackoffBase:    a.BackoffBase,
		BackoffMax:     a.BackoffMax,
		AttemptTimeout: a.AttemptTimeout,
	}
}

// OpenSearchConfig returns the OpenSearch destination settings with password resolved
func (a Args) OpenSearchConfig(password string) opensearch.Config {
	return opensearch.Config{
		Addresses:       a.Endpoints,
		Username:        a.Username,
		Password:        password,
		TLSSkipVerify:   a.TLSSkipVerify,
		Proxy:           a.Proxy,
		ResponseTimeout: a.AttemptTimeout,
		Shards:          a.Shards,
		Replicas:        a.Replicas,
		RolloverAlias:   a.ISMPolicy,
	}
}

// RolloverPolicyID names the index state management policy installed with --ism-policy
const RolloverPolicyID = "rollover-expiration-policy"

// RolloverPolicy returns the policy covering every index this run can write
func (a Args) RolloverPolicy() opensearch.RolloverPolicy {
	prefix := a.IndexPrefix
	if prefix == "" {
		prefix = "ocsf"
	}
	return opensearch.RolloverPolicy{
		ID:        RolloverPolicyID,
		Pattern:   prefix + "-*",
		MinSize:   a.ISMMinSize,
		MinAge:    a.ISMMinAge,
		Retention: a.ISMRetention,
	}
}

// HECConfig returns the HEC destination settings with token resolved
func (a Args) HECConfig(token string) hec.Config {
	return hec.Config{
		Endpoints:       a.Endpoints,
		TLSSkipVerify:   a.TLSSkipVerify,
		Proxy:           a.Proxy,
		Token:           token,
		ChannelID:       a.HECChannelID,
		Index:           a.HECIndex,
		Source:          a.HECSource,
		SourceType:      a.HECSourceType,
		Host:            a.HECHost,
		Timeout:         a.HECTimeout,
		BalanceStrategy: a.HECBalance,
	}
}
