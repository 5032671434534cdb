package generator

import (
	"fmt"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type dnsActivity struct {
	base
	queryTypes []code
	rcodes     []code
	domains    []string
	answers    map[string][]string
}

// NewDNSActivity returns a generator for class 4003
func NewDNSActivity(cfg Config) Generator {
	return &dnsActivity{
		base: newBase(ocsf.DNSActivity, "DNS Server", cfg),
		queryTypes: []code{
			{1, "A"}, {28, "AAAA"}, {15, "MX"}, {2, "NS"},
			{12, "PTR"}, {5, "CNAME"}, {16, "TXT"}, {6, "SOA"},
		},
		rcodes: []code{
			{0, "NoError"}, {3, "NXDomain"}, {2, "ServFail"}, {5, "Refused"}, {1, "FormError"},
		},
		domains: []string{
			"example.com", "test.org", "dev.local", "prod.company.com",
			"mail.example.com", "api.service.com", "cdn.site.net", "db.internal",
		},
		answers: map[string][]string{
			"A":     {"192.168.1.1", "10.0.0.1", "172.16.0.1", "203.0.113.1"},
			"AAAA":  {"2001:db8::1", "2001:db8::2", "2001:db8::3", "2001:db8::4"},
			"MX":    {"mail1.example.com", "mail2.example.com"},
			"NS":    {"ns1.example.com", "ns2.example.com"},
			"PTR":   {"host1.example.com", "host2.example.com"},
			"CNAME": {"www.example.com", "cdn.example.com"},
			"TXT":   {"v=spf1 include:_spf.example.com ~all", "verification=abc123"},
			"SOA":   {"ns1.example.com admin.example.com 2024012001 3600 900 604800 86400"},
		},
	}
}

func (g *dnsActivity) Generate() (ocsf.Event, error) {
	qtype, err := pick(g.faker, g.queryTypes)
	if err != nil {
		return nil, g.fail("query.type", err)
	}
	rcode, err := pick(g.faker, g.rcodes)
	if err != nil {
		return nil, g.fail("rcode_id", err)
	}
	domain, err := pick(g.faker, g.domains)
	if err != nil {
		return nil, g.fail("query.hostname", err)
	}

	// a resolved query is reported as a response, everything else as the query
	activityID, severityID, statusID := 1, ocsf.SeverityInformational, ocsf.StatusFailure
	if rcode.ID == 0 {
		activityID, statusID = 2, ocsf.StatusSuccess
	} else if rcode.ID == 2 {
		severityID = ocsf.SeverityLow
	}

	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}
	ev["query"] = map[string]any{
		"hostname": domain,
		"type":     qtype.Name,
		"class":    "IN",
		"uid":      g.faker.UUID(),
	}
	ev["rcode_id"] = rcode.ID
	ev["rcode"] = rcode.Name
	ev["src_endpoint"] = endpoint(g.faker, fmt.Sprintf("client-%d", g.faker.Number(1, 1000)), g.faker.Number(1024, 65535))
	ev["dst_endpoint"] = endpoint(g.faker, fmt.Sprintf("dns-server-%d", g.faker.Number(1, 10)), 53)

	if activityID == 2 {
		pool, ok := g.answers[qtype.Name]
		if !ok || len(pool) == 0 {
			return nil, g.fail("answers.rdata", fmt.Errorf("%w: no answers for %s", ErrEmptyTable, qtype.Name))
		}
		n := g.faker.Number(1, 3)
		answers := make([]any, 0, n)
		for i := 0; i < n; i++ {
			answers = append(answers, map[string]any{
				"type":  qtype.Name,
				"rdata": pool[g.faker.Number(0, len(pool)-1)],
				"ttl":   g.faker.Number(300, 86400),
			})
		}
		ev["answers"] = answers
	}
	return g.finish(ev)
}
