package generator

import (
	"fmt"
	"time"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type framework struct {
	Name         string
	Description  string
	Requirements []string
}

type resourceKind struct {
	Type  string
	Names []string
}

type complianceFinding struct {
	base
	frameworks   []framework
	findingTypes []string
	resources    []resourceKind
}

// NewComplianceFinding returns a generator for class 2003
func NewComplianceFinding(cfg Config) Generator {
	return &complianceFinding{
		base: newBase(ocsf.ComplianceFinding, "Compliance Scanner", cfg),
		frameworks: []framework{
			{"PCI DSS", "Payment Card Industry Data Security Standard", []string{"3.2.1", "4.1", "8.2", "10.2"}},
			{"HIPAA", "Health Insurance Portability and Accountability Act", []string{"Privacy Rule", "Security Rule", "Enforcement Rule"}},
			{"SOX", "Sarbanes-Oxley Act", []string{"Section 302", "Section 404", "Section 409"}},
			{"GDPR", "General Data Protection Regulation", []string{"Article 5", "Article 17", "Article 32"}},
			{"ISO 27001", "Information Security Management", []string{"A.5", "A.9", "A.12", "A.14"}},
			{"NIST 800-53", "Security and Privacy Controls", []string{"AC-2", "AU-2", "CM-6", "SC-7"}},
		},
		findingTypes: []string{
			"Configuration Issue", "Missing Control", "Policy Violation",
			"Access Control Issue", "Encryption Issue", "Audit Log Issue",
		},
		resources: []resourceKind{
			{"Database", []string{"prod-db", "user-db", "auth-db"}},
			{"Server", []string{"web-server", "app-server", "auth-server"}},
			{"Network", []string{"internal-net", "dmz", "backend-net"}},
			{"Application", []string{"payment-app", "crm-system", "hr-portal"}},
			{"Storage", []string{"user-data", "logs-storage", "backup-storage"}},
		},
	}
}

func (g *complianceFinding) Generate() (ocsf.Event, error) {
	fw, err := pick(g.faker, g.frameworks)
	if err != nil {
		return nil, g.fail("finding.compliance.framework.name", err)
	}
	requirement, err := pick(g.faker, fw.Requirements)
	if err != nil {
		return nil, g.fail("finding.compliance.requirement.id", err)
	}
	kind, err := pick(g.faker, g.findingTypes)
	if err != nil {
		return nil, g.fail("finding.type", err)
	}
	resource, err := pick(g.faker, g.resources)
	if err != nil {
		return nil, g.fail("finding.resources", err)
	}
	resourceName, err := pick(g.faker, resource.Names)
	if err != nil {
		return nil, g.fail("finding.resources.name", err)
	}

	severityID := severityFor(g.faker)
	ev, err := g.header(1, severityID, ocsf.FindingNew)
	if err != nil {
		return nil, err
	}
	deadline := g.clock().Add(time.Duration(g.faker.Number(1, 30)) * 24 * time.Hour).UnixMilli()
	finding := map[string]any{
		"uid":   g.faker.UUID(),
		"title": fmt.Sprintf("%s Compliance Issue - %s", fw.Name, kind),
		"type":  kind,
		"compliance": map[string]any{
			"framework": map[string]any{
				"name":        fw.Name,
				"version":     fmt.Sprintf("%d.%d", g.faker.Number(1, 3), g.faker.Number(0, 9)),
				"description": fw.Description,
			},
			"requirement": map[string]any{
				"id":          requirement,
				"description": "Compliance requirement for " + fw.Name,
			},
		},
		"resources": []any{map[string]any{
			"type": resource.Type,
			"name": resourceName,
			"uid":  g.faker.UUID(),
		}},
		"message": fmt.Sprintf("Found non-compliance with %s requirements", fw.Name),
		"remediation": map[string]any{
			"description": fmt.Sprintf("Implement required controls for %s compliance", fw.Name),
			"deadline":    deadline,
		},
	}
	if severityID >= ocsf.SeverityHigh {
		finding["risk_score"] = g.faker.Number(70, 100)
		finding["risk_level"] = "High"
	}
	ev["finding"] = finding
	return g.finish(ev)
}
