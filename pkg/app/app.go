// Package app wires configuration into a ready composer, shared by the CLI
// and the Lambda handler
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/awsutil"
	"github.com/mosajjal/ocsf-composer/pkg/composer"
	"github.com/mosajjal/ocsf-composer/pkg/config"
	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
	"github.com/mosajjal/ocsf-composer/pkg/provision"
	"github.com/mosajjal/ocsf-composer/pkg/registry"
	"github.com/mosajjal/ocsf-composer/pkg/secrets"
	"github.com/mosajjal/ocsf-composer/pkg/sink"
	"github.com/mosajjal/ocsf-composer/pkg/sink/hec"
	"github.com/mosajjal/ocsf-composer/pkg/sink/memory"
	"github.com/mosajjal/ocsf-composer/pkg/sink/opensearch"
	"github.com/mosajjal/ocsf-composer/pkg/source"
	"github.com/mosajjal/ocsf-composer/pkg/storage"
	s3storage "github.com/mosajjal/ocsf-composer/pkg/storage/s3"
	"github.com/mosajjal/ocsf-composer/pkg/uploader"
)

// App holds the wired components of one process
type App struct {
	Args        config.Args
	Registry    *registry.Registry
	Destination sink.Destination
	Composer    *composer.Composer

	deadLetter storage.StorageBackend
}

// New validates args and builds every component. runID tags the reports.
func New(ctx context.Context, args config.Args, runID string) (*App, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			cfg, err := awsutil.LoadConfig(ctx, args.Region, args.S3AccessKeyID, args.S3AccessKeySecret)
			if err != nil {
				return aws.Config{}, err
			}
			awsCfg = &cfg
		}
		return *awsCfg, nil
	}
	resolve := func(value string) (string, error) {
		if !secrets.IsARN(value) {
			return value, nil
		}
		cfg, err := loadAWS()
		if err != nil {
			return "", err
		}
		return secrets.NewResolver(cfg).Resolve(ctx, value)
	}

	dst, err := newDestination(ctx, args, resolve)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Default(args.IndexPrefix)
	if err != nil {
		dst.Close()
		return nil, err
	}

	a := &App{Args: args, Registry: reg, Destination: dst}
	var opts []uploader.Option
	if args.DeadLetterURL != "" {
		cfg, err := loadAWS()
		if err != nil {
			dst.Close()
			return nil, err
		}
		a.deadLetter, err = s3storage.NewStorage(storage.StorageConfig{
			URL:             args.DeadLetterURL,
			Region:          args.Region,
			CompressionType: "gzip",
		}, cfg)
		if err != nil {
			dst.Close()
			return nil, fmt.Errorf("failed to set up dead-letter storage: %w", err)
		}
		opts = append(opts, uploader.WithDeadLetter(a.deadLetter))
	} else {
		log.Info().Msg("no dead-letter URL configured, undelivered events are only counted")
	}

	up, err := uploader.New(dst, args.UploaderConfig(), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Composer = composer.New(reg, provision.New(dst), up,
		composer.WithSeed(args.Seed),
		composer.WithRunID(runID),
	)
	return a, nil
}

func newDestination(ctx context.Context, args config.Args, resolve func(string) (string, error)) (sink.Destination, error) {
	switch args.Destination {
	case config.DestinationOpenSearch:
		password, err := resolve(args.Password)
		if err != nil {
			return nil, err
		}
		client, err := opensearch.NewClient(args.OpenSearchConfig(password))
		if err != nil {
			return nil, err
		}
		if args.ISMPolicy {
			if err := client.PutRolloverPolicy(ctx, args.RolloverPolicy()); err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to install rollover policy: %w", err)
			}
		}
		return client, nil
	case config.DestinationHEC:
		token, err := resolve(args.Token)
		if err != nil {
			return nil, err
		}
		return hec.NewClient(args.HECConfig(token))
	case config.DestinationMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown destination %q", args.Destination)
}

// Generate runs the configured per-class counts
func (a *App) Generate(ctx context.Context) (*composer.RunReport, error) {
	counts, err := a.Args.ClassCounts(a.Registry.Classes())
	if err != nil {
		return nil, err
	}
	return a.Composer.Run(ctx, counts, 0)
}

// IngestFile uploads the NDJSON events of path, - meaning stdin
func (a *App) IngestFile(ctx context.Context, path string) (*composer.RunReport, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	events, bad, err := source.ReadNDJSON(r)
	if err != nil {
		return nil, err
	}
	return a.ingest(ctx, events, bad)
}

// IngestCloudWatch uploads the OCSF records carried by a CloudWatch Logs delivery
func (a *App) IngestCloudWatch(ctx context.Context, raw []byte) (*composer.RunReport, error) {
	events, bad, err := source.ParseCloudWatch(raw)
	if err != nil {
		return nil, err
	}
	return a.ingest(ctx, events, bad)
}

func (a *App) ingest(ctx context.Context, events []ocsf.Event, bad []error) (*composer.RunReport, error) {
	for _, err := range bad {
		log.Warn().Err(err).Msg("unusable record")
	}
	return a.Composer.Ingest(ctx, events, bad)
}

// Close releases the destination and storage
func (a *App) Close() error {
	if a.deadLetter != nil {
		a.deadLetter.Close()
	}
	return a.Destination.Close()
}
