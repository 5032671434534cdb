package generator

import (
	"fmt"
	"strconv"
	"strings"

	ua "github.com/mileusna/useragent"
	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type httpStatus struct {
	Code    int
	Message string
}

type httpActivity struct {
	base
	methods      []string
	statuses     []httpStatus
	paths        []string
	userAgents   []string
	contentTypes []string
	versions     []string
}

var httpMethodActivity = map[string]int{
	"CONNECT": 1,
	"DELETE":  2,
	"GET":     3,
	"HEAD":    4,
	"OPTIONS": 5,
	"POST":    6,
	"PUT":     7,
	"TRACE":   8,
	"PATCH":   9,
}

// NewHTTPActivity returns a generator for class 4002
func NewHTTPActivity(cfg Config) Generator {
	return &httpActivity{
		base:    newBase(ocsf.HTTPActivity, "Web Server", cfg),
		methods: []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH"},
		statuses: []httpStatus{
			{200, "OK"},
			{201, "Created"},
			{301, "Moved Permanently"},
			{302, "Found"},
			{400, "Bad Request"},
			{401, "Unauthorized"},
			{403, "Forbidden"},
			{404, "Not Found"},
			{500, "Internal Server Error"},
			{503, "Service Unavailable"},
		},
		paths: []string{"/api/v1/users", "/login", "/assets/images", "/products", "/cart", "/checkout", "/admin", "/docs", "/health"},
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Mobile/15E148 Safari/604.1",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
			"curl/7.64.1",
			"PostmanRuntime/7.28.0",
			"python-requests/2.26.0",
		},
		contentTypes: []string{"application/json", "text/html", "application/xml", "text/plain", "application/x-www-form-urlencoded"},
		versions:     []string{"HTTP/1.1", "HTTP/2.0"},
	}
}

func (g *httpActivity) Generate() (ocsf.Event, error) {
	method, err := pick(g.faker, g.methods)
	if err != nil {
		return nil, g.fail("http_request.http_method", err)
	}
	activityID, ok := httpMethodActivity[method]
	if !ok {
		return nil, g.fail("activity_id", fmt.Errorf("no activity for method %s", method))
	}
	status, err := pick(g.faker, g.statuses)
	if err != nil {
		return nil, g.fail("http_response.code", err)
	}
	path, err := pick(g.faker, g.paths)
	if err != nil {
		return nil, g.fail("http_request.url.path", err)
	}
	agent, err := pick(g.faker, g.userAgents)
	if err != nil {
		return nil, g.fail("user_agent.original", err)
	}

	severityID, statusID := ocsf.SeverityInformational, ocsf.StatusSuccess
	switch {
	case status.Code >= 500:
		severityID, statusID = ocsf.SeverityHigh, ocsf.StatusFailure
	case status.Code >= 400:
		severityID, statusID = ocsf.SeverityMedium, ocsf.StatusFailure
	}

	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}

	host := g.faker.DomainName()
	request := map[string]any{
		"http_method": method,
		"version":     g.faker.RandomString(g.versions),
		"user_agent":  agent,
		"url": map[string]any{
			"hostname":   host,
			"path":       path,
			"url_string": "https://" + host + path,
		},
	}
	if strings.HasPrefix(path, "/api") {
		request["url"].(map[string]any)["query_string"] = "page=1&limit=10"
	}
	if method == "POST" || method == "PUT" || method == "PATCH" {
		request["length"] = g.faker.Number(100, 1000)
	}

	ev["http_request"] = request
	ev["http_response"] = map[string]any{
		"code":         status.Code,
		"message":      status.Message,
		"content_type": g.faker.RandomString(g.contentTypes),
		"length":       g.faker.Number(100, 10000),
	}
	ev["src_endpoint"] = endpoint(g.faker, "", g.faker.Number(10000, 65535))
	ev["dst_endpoint"] = endpoint(g.faker, host, 443)
	ev["user_agent"] = userAgent(agent)
	if statusID == ocsf.StatusFailure {
		ev["status_code"] = strconv.Itoa(status.Code)
		ev["status_detail"] = fmt.Sprintf("Failed to %s %s", method, path)
	}
	return g.finish(ev)
}

func userAgent(original string) map[string]any {
	parsed := ua.Parse(original)
	deviceType := "Unknown"
	switch {
	case parsed.Bot:
		deviceType = "Bot"
	case parsed.Tablet:
		deviceType = "Tablet"
	case parsed.Mobile:
		deviceType = "Mobile"
	case parsed.Desktop:
		deviceType = "Desktop"
	}

	out := map[string]any{
		"original": original,
		"device":   map[string]any{"type": deviceType},
	}
	if parsed.Device != "" {
		out["device"].(map[string]any)["name"] = parsed.Device
	}
	if parsed.Name != "" {
		out["browser"] = map[string]any{"name": parsed.Name, "version": parsed.Version}
	}
	if parsed.OS != "" {
		out["os"] = map[string]any{"name": parsed.OS, "version": parsed.OSVersion}
	}
	return out
}
