package generator

import (
	"fmt"
	"strings"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type detectionFinding struct {
	base
	types      []code
	categories []string
	statuses   []int
	sources    []string
	processes  []string
}

// NewDetectionFinding returns a generator for class 2004
func NewDetectionFinding(cfg Config) Generator {
	return &detectionFinding{
		base: newBase(ocsf.DetectionFinding, "Security Detection System", cfg),
		types: []code{
			{1, "Malware Detected"}, {2, "Suspicious Activity"}, {3, "Policy Violation"},
			{4, "System Compromise"}, {5, "Data Exfiltration"},
		},
		categories: []string{
			"MALWARE", "BACKDOOR", "CRYPTOMINER", "RANSOMWARE",
			"TROJAN", "SUSPICIOUS_BEHAVIOR", "LATERAL_MOVEMENT",
		},
		statuses:  []int{ocsf.FindingNew, ocsf.FindingInProgress, ocsf.FindingSuppressed, ocsf.FindingResolved},
		sources:   []string{"Antivirus", "IDS", "EDR", "SIEM", "Firewall", "Threat Intelligence"},
		processes: []string{"chrome.exe", "svchost.exe", "explorer.exe", "cmd.exe"},
	}
}

func (g *detectionFinding) Generate() (ocsf.Event, error) {
	kind, err := pick(g.faker, g.types)
	if err != nil {
		return nil, g.fail("finding.type_id", err)
	}
	statusID, err := pick(g.faker, g.statuses)
	if err != nil {
		return nil, g.fail("status_id", err)
	}
	source, err := pick(g.faker, g.sources)
	if err != nil {
		return nil, g.fail("detection_source.name", err)
	}
	process, err := pick(g.faker, g.processes)
	if err != nil {
		return nil, g.fail("finding.src_endpoint.processes", err)
	}
	if len(g.categories) == 0 {
		return nil, g.fail("finding.categories", ErrEmptyTable)
	}

	// findings that left the New state are updates, resolved ones are closed
	activityID := 2
	switch statusID {
	case ocsf.FindingNew:
		activityID = 1
	case ocsf.FindingResolved:
		activityID = 3
	}

	severityID := severityFor(g.faker)
	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}
	finding := map[string]any{
		"uid":        g.faker.UUID(),
		"type":       kind.Name,
		"type_id":    kind.ID,
		"categories": sample(g.faker, g.categories, g.faker.Number(1, 3)),
		"title":      fmt.Sprintf("%s on %s", kind.Name, g.faker.IPv4Address()),
		"message":    fmt.Sprintf("Detection system identified %s activity", strings.ToLower(kind.Name)),
		"src_endpoint": map[string]any{
			"ip":       g.faker.IPv4Address(),
			"hostname": fmt.Sprintf("host-%d", g.faker.Number(1000, 9999)),
			"processes": []any{map[string]any{
				"pid":  g.faker.Number(1000, 65535),
				"name": process,
			}},
		},
		"confidence": g.faker.Number(1, 100),
	}
	if severityID >= ocsf.SeverityHigh {
		finding["threat_intel"] = map[string]any{
			"indicators": []any{
				map[string]any{"type": "ip", "value": g.faker.IPv4Address(), "confidence": g.faker.Number(70, 100)},
				map[string]any{"type": "hash", "value": strings.ReplaceAll(g.faker.UUID(), "-", ""), "confidence": g.faker.Number(70, 100)},
			},
			"sources": []any{map[string]any{"name": "ThreatIntel Provider", "uid": g.faker.UUID()}},
		}
	}
	ev["finding"] = finding
	ev["detection_source"] = map[string]any{
		"name": source,
		"uid":  g.faker.UUID(),
	}
	ev["detection"] = map[string]any{
		"rule": map[string]any{
			"uid":     g.faker.UUID(),
			"name":    fmt.Sprintf("Rule-%d", g.faker.Number(1000, 9999)),
			"version": "1.0",
		},
		"type":    "Signature Based",
		"type_id": 1,
	}
	return g.finish(ev)
}
