package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mosajjal/ocsf-composer/pkg/app"
	"github.com/mosajjal/ocsf-composer/pkg/composer"
	"github.com/mosajjal/ocsf-composer/pkg/config"
	"github.com/mosajjal/ocsf-composer/pkg/logging"
	"github.com/mosajjal/ocsf-composer/pkg/source"
)

var args config.Args

func init() {
	var err error
	// Lambda has no command line; everything comes from the environment
	args, err = config.Parse(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}
	logging.Init(args.LogLevel, false, "")
	log.Info().Str("destination", args.Destination).Msg("AWS Lambda handler initialized successfully")
}

// countsPayload is the optional body of a scheduled invocation, either at the
// top level or in the detail of an EventBridge event
type countsPayload struct {
	Counts map[string]int `json:"counts"`
	Detail struct {
		Counts map[string]int `json:"counts"`
	} `json:"detail"`
}

// isCloudWatch reports whether raw is a CloudWatch Logs delivery
func isCloudWatch(raw []byte) bool {
	var cw source.CloudWatchLogs
	if err := json.Unmarshal(raw, &cw); err != nil {
		return false
	}
	return cw.AWSLogs.Data != "" || len(cw.Records) > 0
}

// scheduledArgs returns base with any counts carried by raw replacing the
// configured ones
func scheduledArgs(base config.Args, raw []byte) config.Args {
	var p countsPayload
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return base
	}
	counts := p.Counts
	if len(counts) == 0 {
		counts = p.Detail.Counts
	}
	if len(counts) == 0 {
		return base
	}
	pairs := make([]string, 0, len(counts))
	for uid, n := range counts {
		pairs = append(pairs, uid+"="+strconv.Itoa(n))
	}
	sort.Strings(pairs)
	base.Counts = pairs
	base.EventsPerClass = 0
	return base
}

// HandleRequest relays CloudWatch Logs deliveries of OCSF records and runs a
// generation for any other event, such as an EventBridge schedule
func HandleRequest(ctx context.Context, raw json.RawMessage) (*composer.RunReport, error) {
	runID := uuid.New().String()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		runID = lc.AwsRequestID
	}

	if isCloudWatch(raw) {
		runArgs := args
		// a relay needs no counts
		runArgs.Input = "-"
		a, err := app.New(ctx, runArgs, runID)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.IngestCloudWatch(ctx, raw)
	}

	var scheduled events.CloudWatchEvent
	if err := json.Unmarshal(raw, &scheduled); err == nil && scheduled.DetailType != "" {
		log.Info().Str("source", scheduled.Source).Str("detail_type", scheduled.DetailType).Msg("scheduled generation")
	}

	a, err := app.New(ctx, scheduledArgs(args, raw), runID)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	report, err := a.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if report.Status == composer.StatusSuccess {
		log.Info().Int("accepted", report.Totals().Accepted).Msg("generation finished")
	} else {
		log.Warn().Err(report.Err()).Str("status", string(report.Status)).Msg("generation fell short")
	}
	return report, nil
}

func main() {
	lambda.Start(HandleRequest)
}
