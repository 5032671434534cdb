package generator

import (
	"fmt"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type authentication struct {
	base
	activities []int
	protocols  []code
	logonTypes []code
	users      []string
	userTypes  []code
	domains    []string
	services   []string
	failures   []string
	ports      []int
}

// NewAuthentication returns a generator for class 3002
func NewAuthentication(cfg Config) Generator {
	return &authentication{
		base:       newBase(ocsf.Authentication, "Authentication Service", cfg),
		activities: []int{1, 1, 1, 2, 3, 4},
		protocols: []code{
			{1, "NTLM"}, {2, "Kerberos"}, {5, "SAML"}, {6, "OAUTH 2.0"}, {4, "OpenID"}, {10, "RADIUS"},
		},
		logonTypes: []code{
			{2, "Interactive"}, {3, "Network"}, {5, "OS Service"}, {10, "Remote Interactive"}, {11, "Cached Interactive"},
		},
		users:     []string{"john.doe", "jane.smith", "admin", "service.account", "developer1", "analyst2", "support.user", "system.admin"},
		userTypes: []code{{1, "User"}, {2, "Admin"}, {3, "System"}},
		domains:   []string{"corp.local", "dev.domain", "prod.internal"},
		services:  []string{"VPN", "Web Portal", "Email", "Database", "File Server", "Cloud Service"},
		failures:  []string{"Invalid Credentials", "Account Locked", "Password Expired", "Invalid Token"},
		ports:     []int{389, 443, 636, 1812},
	}
}

func (g *authentication) Generate() (ocsf.Event, error) {
	activityID, err := pick(g.faker, g.activities)
	if err != nil {
		return nil, g.fail("activity_id", err)
	}
	protocol, err := pick(g.faker, g.protocols)
	if err != nil {
		return nil, g.fail("auth_protocol_id", err)
	}
	logon, err := pick(g.faker, g.logonTypes)
	if err != nil {
		return nil, g.fail("logon_type_id", err)
	}
	user, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("user.name", err)
	}
	userType, err := pick(g.faker, g.userTypes)
	if err != nil {
		return nil, g.fail("user.type_id", err)
	}
	port, err := pick(g.faker, g.ports)
	if err != nil {
		return nil, g.fail("dst_endpoint.port", err)
	}

	// roughly one attempt in five fails
	failed := g.faker.Number(1, 5) == 1
	severityID, statusID := ocsf.SeverityInformational, ocsf.StatusSuccess
	if failed {
		severityID, statusID = ocsf.SeverityMedium, ocsf.StatusFailure
	}

	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}
	ev["auth_protocol_id"] = protocol.ID
	ev["auth_protocol"] = protocol.Name
	ev["logon_type_id"] = logon.ID
	ev["logon_type"] = logon.Name
	ev["is_mfa"] = g.faker.Bool()
	ev["is_remote"] = logon.ID == 3 || logon.ID == 10
	ev["user"] = map[string]any{
		"name":    user,
		"uid":     g.faker.UUID(),
		"type":    userType.Name,
		"type_id": userType.ID,
		"domain":  g.faker.RandomString(g.domains),
	}
	ev["session"] = map[string]any{"uid": g.faker.UUID()}
	ev["service"] = map[string]any{
		"name": g.faker.RandomString(g.services),
		"uid":  g.faker.UUID(),
	}
	ev["src_endpoint"] = endpoint(g.faker, fmt.Sprintf("host-%d", g.faker.Number(1000, 9999)), g.faker.Number(1024, 65535))
	ev["dst_endpoint"] = endpoint(g.faker, fmt.Sprintf("auth-server-%d", g.faker.Number(1, 5)), port)
	if failed {
		reason, err := pick(g.faker, g.failures)
		if err != nil {
			return nil, g.fail("status_detail", err)
		}
		ev["status_detail"] = reason
		ev["message"] = fmt.Sprintf("authentication failed for %s: %s", user, reason)
	}
	return g.finish(ev)
}
