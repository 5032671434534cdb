package generator

import (
	"fmt"
	"strings"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type securityFinding struct {
	base
	types      []code
	categories []string
	sources    []string
}

// NewSecurityFinding returns a generator for class 2001
func NewSecurityFinding(cfg Config) Generator {
	return &securityFinding{
		base: newBase(ocsf.SecurityFinding, "Security Monitor", cfg),
		types: []code{
			{1, "Intrusion Attempt"}, {2, "Malware Detection"}, {3, "Data Leak"},
			{4, "Policy Violation"}, {5, "Configuration Issue"},
		},
		categories: []string{"ACCESS_CONTROL", "NETWORK_SECURITY", "DATA_PROTECTION", "ENDPOINT_SECURITY", "CONFIGURATION"},
		sources:    []string{"IDS", "Firewall", "EDR", "SIEM", "Security Scanner"},
	}
}

func (g *securityFinding) Generate() (ocsf.Event, error) {
	kind, err := pick(g.faker, g.types)
	if err != nil {
		return nil, g.fail("finding.type_id", err)
	}
	source, err := pick(g.faker, g.sources)
	if err != nil {
		return nil, g.fail("detection_source.name", err)
	}
	if len(g.categories) == 0 {
		return nil, g.fail("finding.categories", ErrEmptyTable)
	}

	severityID := severityFor(g.faker)
	ev, err := g.header(1, severityID, ocsf.FindingNew)
	if err != nil {
		return nil, err
	}
	finding := map[string]any{
		"uid":        g.faker.UUID(),
		"title":      kind.Name + " detected",
		"type":       kind.Name,
		"type_id":    kind.ID,
		"categories": sample(g.faker, g.categories, g.faker.Number(1, 3)),
		"message":    "Security system detected " + strings.ToLower(kind.Name),
		"src_endpoint": map[string]any{
			"ip":       g.faker.IPv4Address(),
			"hostname": fmt.Sprintf("host-%d", g.faker.Number(1000, 9999)),
		},
	}
	if severityID >= ocsf.SeverityHigh {
		finding["risk_score"] = g.faker.Number(70, 100)
	}
	ev["finding"] = finding
	ev["detection_source"] = map[string]any{
		"name": source,
		"uid":  g.faker.UUID(),
	}
	ev["metadata"].(map[string]any)["created_time"] = ev["time"]
	return g.finish(ev)
}
