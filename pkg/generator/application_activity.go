package generator

import (
	"fmt"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type application struct {
	Name     string
	Category string
}

type applicationActivity struct {
	base
	applications []application
	actions      []code
	users        []string
	// outcomes are the status_detail values; Error is reported as a failure
	outcomes []string
}

// NewApplicationActivity returns a generator for class 6001
func NewApplicationActivity(cfg Config) Generator {
	return &applicationActivity{
		base: newBase(ocsf.ApplicationActivity, "Application Monitor", cfg),
		applications: []application{
			{"CRM System", "Sales"},
			{"ERP System", "Operations"},
			{"HR Portal", "Human Resources"},
			{"Inventory Management", "Logistics"},
			{"Billing System", "Finance"},
		},
		actions: []code{
			{1, "Login"}, {2, "Logout"}, {3, "Create"}, {4, "Update"},
			{5, "Delete"}, {6, "Export"}, {7, "Import"}, {8, "Search"},
		},
		users:    []string{"john.doe", "jane.smith", "admin.user", "system.service", "app.user", "batch.process"},
		outcomes: []string{"Success", "Failure", "Error"},
	}
}

func (g *applicationActivity) Generate() (ocsf.Event, error) {
	app, err := pick(g.faker, g.applications)
	if err != nil {
		return nil, g.fail("application.name", err)
	}
	action, err := pick(g.faker, g.actions)
	if err != nil {
		return nil, g.fail("activity_id", err)
	}
	user, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("actor.user.name", err)
	}
	outcome, err := pick(g.faker, g.outcomes)
	if err != nil {
		return nil, g.fail("status_detail", err)
	}

	severityID, statusID := ocsf.SeverityInformational, ocsf.StatusSuccess
	if outcome != "Success" {
		severityID, statusID = ocsf.SeverityMedium, ocsf.StatusFailure
	}
	ev, err := g.header(action.ID, severityID, statusID)
	if err != nil {
		return nil, err
	}
	ev["status_detail"] = outcome
	ev["application"] = map[string]any{
		"name":     app.Name,
		"uid":      g.faker.UUID(),
		"category": app.Category,
		"version":  fmt.Sprintf("%d.%d.%d", g.faker.Number(1, 5), g.faker.Number(0, 9), g.faker.Number(0, 9)),
	}
	ev["actor"] = map[string]any{
		"user": map[string]any{
			"name":    user,
			"uid":     g.faker.UUID(),
			"type":    "User",
			"type_id": 1,
		},
	}
	ev["src_endpoint"] = map[string]any{
		"ip":       g.faker.IPv4Address(),
		"hostname": fmt.Sprintf("host-%d", g.faker.Number(1000, 9999)),
	}
	return g.finish(ev)
}
