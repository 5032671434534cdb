// Package source turns pre-shaped OCSF records from outside the generator
// path into events: NDJSON streams and CloudWatch Logs subscription payloads.
package source

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

// maxLine bounds a single NDJSON record
const maxLine = 4 << 20

// LineError is a record that could not be used
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseEvent decodes one JSON object into an event. The object must carry a
// class_uid so it can be routed.
func ParseEvent(data []byte) (ocsf.Event, error) {
	var ev ocsf.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("event is not a JSON object")
	}
	if _, ok := ev.ClassUID(); !ok {
		return nil, fmt.Errorf("event has no integer class_uid")
	}
	return ev, nil
}

// ReadNDJSON reads one event per line. Blank lines are skipped; unusable
// lines are returned as LineErrors next to the events that did parse.
func ReadNDJSON(r io.Reader) ([]ocsf.Event, []error, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var events []ocsf.Event
	var bad []error
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		ev, err := ParseEvent(raw)
		if err != nil {
			bad = append(bad, &LineError{Line: line, Err: err})
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return events, bad, fmt.Errorf("failed to read input: %w", err)
	}
	return events, bad, nil
}

// CloudWatchLogs is a CloudWatch Logs subscription delivery, either direct
// or through Kinesis records
type CloudWatchLogs struct {
	AWSLogs struct {
		Data string `json:"data"`
	} `json:"awslogs"`
	Records []struct {
		RecordID string `json:"recordId"`
		Data     string `json:"data"`
	} `json:"records"`
}

// CloudWatchLogsData is the decoded CloudWatch Logs payload
type CloudWatchLogsData struct {
	MessageType         string     `json:"messageType"`
	Owner               string     `json:"owner"`
	LogGroup            string     `json:"logGroup"`
	LogStream           string     `json:"logStream"`
	SubscriptionFilters []string   `json:"subscriptionFilters"`
	LogEvents           []LogEvent `json:"logEvents"`
}

// LogEvent is a single log line
type LogEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// ParseCloudWatch extracts events from a raw subscription delivery. Each log
// message must be an OCSF record; control messages carry none.
func ParseCloudWatch(raw []byte) ([]ocsf.Event, []error, error) {
	var cwLogs CloudWatchLogs
	if err := json.Unmarshal(raw, &cwLogs); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal CloudWatch Logs: %w", err)
	}

	payloads := make([]string, 0, len(cwLogs.Records)+1)
	if cwLogs.AWSLogs.Data != "" {
		payloads = append(payloads, cwLogs.AWSLogs.Data)
	}
	for _, record := range cwLogs.Records {
		payloads = append(payloads, record.Data)
	}

	var events []ocsf.Event
	var bad []error
	for _, payload := range payloads {
		decoded, err := decodeCloudWatchData(payload)
		if err != nil {
			return events, bad, fmt.Errorf("failed to decode CloudWatch data: %w", err)
		}
		var data CloudWatchLogsData
		if err := json.Unmarshal(decoded, &data); err != nil {
			return events, bad, fmt.Errorf("failed to unmarshal CloudWatch payload: %w", err)
		}
		if data.MessageType == "CONTROL_MESSAGE" {
			continue
		}
		for i, logEvent := range data.LogEvents {
			ev, err := ParseEvent([]byte(logEvent.Message))
			if err != nil {
				bad = append(bad, &LineError{Line: i + 1, Err: fmt.Errorf("%s/%s: %w", data.LogGroup, data.LogStream, err)})
				continue
			}
			events = append(events, ev)
		}
	}
	return events, bad, nil
}

func decodeCloudWatchData(data string) ([]byte, error) {
	base64Decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(base64Decoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip: %w", err)
	}
	return decompressed, nil
}
