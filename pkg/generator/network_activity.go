package generator

import (
	"strings"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type netProtocol struct {
	App       string
	Transport code
	Port      int
}

type networkActivity struct {
	base
	protocols  []netProtocol
	directions []code
	activities []int
	severities []int
}

var (
	protoTCP  = code{6, "tcp"}
	protoUDP  = code{17, "udp"}
	protoICMP = code{1, "icmp"}
)

// NewNetworkActivity returns a generator for class 4001
func NewNetworkActivity(cfg Config) Generator {
	return &networkActivity{
		base: newBase(ocsf.NetworkActivity, "Network Monitor", cfg),
		protocols: []netProtocol{
			{"TCP", protoTCP, 0},
			{"UDP", protoUDP, 0},
			{"ICMP", protoICMP, 0},
			{"HTTP", protoTCP, 80},
			{"HTTPS", protoTCP, 443},
			{"DNS", protoUDP, 53},
			{"SSH", protoTCP, 22},
			{"FTP", protoTCP, 21},
			{"SMTP", protoTCP, 25},
			{"SNMP", protoUDP, 161},
		},
		directions: []code{{1, "Inbound"}, {2, "Outbound"}, {3, "Lateral"}},
		activities: []int{1, 2, 3, 4, 5, 6, 6, 6},
		severities: []int{
			ocsf.SeverityInformational, ocsf.SeverityInformational, ocsf.SeverityLow,
			ocsf.SeverityMedium, ocsf.SeverityHigh, ocsf.SeverityCritical,
		},
	}
}

func (g *networkActivity) Generate() (ocsf.Event, error) {
	proto, err := pick(g.faker, g.protocols)
	if err != nil {
		return nil, g.fail("connection_info.protocol_name", err)
	}
	direction, err := pick(g.faker, g.directions)
	if err != nil {
		return nil, g.fail("connection_info.direction_id", err)
	}
	activityID, err := pick(g.faker, g.activities)
	if err != nil {
		return nil, g.fail("activity_id", err)
	}
	severityID, err := pick(g.faker, g.severities)
	if err != nil {
		return nil, g.fail("severity_id", err)
	}

	// failed and refused connections are the only failures
	statusID := ocsf.StatusSuccess
	if activityID == 4 || activityID == 5 {
		statusID = ocsf.StatusFailure
	}

	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}

	servicePort := proto.Port
	if servicePort == 0 {
		servicePort = g.faker.Number(1, 65535)
	}
	ephemeral := g.faker.Number(1024, 65535)
	srcPort, dstPort := ephemeral, servicePort
	if direction.ID == 1 {
		srcPort, dstPort = servicePort, ephemeral
	}

	src := endpoint(g.faker, "", srcPort)
	src["hostname"] = "host-" + strings.ReplaceAll(src["ip"].(string), ".", "-")
	dst := endpoint(g.faker, "", dstPort)
	dst["hostname"] = "host-" + strings.ReplaceAll(dst["ip"].(string), ".", "-")
	ev["src_endpoint"] = src
	ev["dst_endpoint"] = dst

	ev["connection_info"] = map[string]any{
		"uid":           g.faker.UUID(),
		"protocol_name": proto.Transport.Name,
		"protocol_num":  proto.Transport.ID,
		"direction":     direction.Name,
		"direction_id":  direction.ID,
	}
	ev["app_name"] = proto.App
	ev["traffic"] = map[string]any{
		"bytes_in":    g.faker.Number(100, 1000000),
		"bytes_out":   g.faker.Number(100, 1000000),
		"packets_in":  g.faker.Number(1, 1000),
		"packets_out": g.faker.Number(1, 1000),
	}
	return g.finish(ev)
}
