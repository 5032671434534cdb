package generator

import (
	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type accountChange struct {
	base
	activities []int
	users      []string
	groups     []string
	domains    []string
	protocols  []string
}

// NewAccountChange returns a generator for class 3001
func NewAccountChange(cfg Config) Generator {
	return &accountChange{
		base:       newBase(ocsf.AccountChange, "Identity Management System", cfg),
		activities: []int{1, 2, 3, 4, 5, 6, 9},
		users:      []string{"john.doe", "jane.smith", "admin", "root", "jenkins", "service.account", "developer", "analyst", "support", "manager"},
		groups:     []string{"users", "admins", "developers", "operators", "support", "management"},
		domains:    []string{"corp.local", "dev.local", "prod.local"},
		protocols:  []string{"Local", "LDAP", "OAuth2", "SAML", "Kerberos"},
	}
}

func (g *accountChange) Generate() (ocsf.Event, error) {
	activityID, err := pick(g.faker, g.activities)
	if err != nil {
		return nil, g.fail("activity_id", err)
	}
	actor, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("actor.user.name", err)
	}
	target, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("user.name", err)
	}

	failed := g.faker.Number(1, 6) == 1
	severityID, statusID := ocsf.SeverityInformational, ocsf.StatusSuccess
	if failed {
		severityID, statusID = ocsf.SeverityMedium, ocsf.StatusFailure
	}
	// successful deletes and locks are reported as low
	if !failed && (activityID == 6 || activityID == 9) {
		severityID = ocsf.SeverityLow
	}

	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}
	ev["actor"] = map[string]any{"user": g.user(actor, 2, "Admin")}
	ev["user"] = g.user(target, 1, "User")
	ev["auth_protocol"] = g.faker.RandomString(g.protocols)

	unmapped := map[string]any{
		"session_id": g.faker.UUID(),
		"request_id": g.faker.UUID(),
	}
	switch activityID {
	case 3, 4:
		unmapped["password_score"] = g.faker.Number(60, 100)
	case 9:
		unmapped["lock_duration"] = g.faker.Number(300, 3600)
	}
	ev["unmapped"] = unmapped
	return g.finish(ev)
}

func (g *accountChange) user(name string, typeID int, typeName string) map[string]any {
	n := g.faker.Number(1, 3)
	groups := make([]any, 0, n)
	for i := 0; i < n; i++ {
		groups = append(groups, map[string]any{"name": g.faker.RandomString(g.groups)})
	}
	return map[string]any{
		"name":    name,
		"uid":     g.faker.UUID(),
		"type":    typeName,
		"type_id": typeID,
		"domain":  g.faker.RandomString(g.domains),
		"groups":  groups,
	}
}
