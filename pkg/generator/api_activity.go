package generator

import (
	"fmt"
	"strings"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

var apiMethodActivity = map[string]int{
	"POST":   1,
	"GET":    2,
	"PUT":    3,
	"PATCH":  3,
	"DELETE": 4,
}

type apiActivity struct {
	base
	methods   []string
	endpoints []string
	statuses  []httpStatus
	users     []string
	versions  []string
	services  []string
}

// NewAPIActivity returns a generator for class 6003
func NewAPIActivity(cfg Config) Generator {
	return &apiActivity{
		base:    newBase(ocsf.APIActivity, "API Gateway", cfg),
		methods: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
		endpoints: []string{
			"/api/v1/users", "/api/v1/resources", "/api/v2/data", "/api/v1/auth",
			"/api/v1/config", "/api/v2/metrics", "/api/v1/events", "/api/v2/analytics",
		},
		statuses: []httpStatus{
			{200, "OK"},
			{201, "Created"},
			{400, "Bad Request"},
			{401, "Unauthorized"},
			{403, "Forbidden"},
			{404, "Not Found"},
			{500, "Internal Server Error"},
		},
		users:    []string{"api_user", "service_account", "admin", "system", "app_client", "integration_user"},
		versions: []string{"v1", "v2", "v3"},
		services: []string{"UserManagement", "ResourceService", "AuthService", "DataProcessor", "ConfigManager", "AnalyticsEngine"},
	}
}

func (g *apiActivity) Generate() (ocsf.Event, error) {
	method, err := pick(g.faker, g.methods)
	if err != nil {
		return nil, g.fail("api.operation", err)
	}
	activityID, ok := apiMethodActivity[method]
	if !ok {
		return nil, g.fail("activity_id", fmt.Errorf("no activity for method %s", method))
	}
	path, err := pick(g.faker, g.endpoints)
	if err != nil {
		return nil, g.fail("http_request.url.path", err)
	}
	status, err := pick(g.faker, g.statuses)
	if err != nil {
		return nil, g.fail("api.response.code", err)
	}
	service, err := pick(g.faker, g.services)
	if err != nil {
		return nil, g.fail("api.service.name", err)
	}
	user, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("actor.user.name", err)
	}

	severityID, statusID := ocsf.SeverityInformational, ocsf.StatusSuccess
	if status.Code >= 400 {
		severityID, statusID = ocsf.SeverityHigh, ocsf.StatusFailure
	}

	ev, err := g.header(activityID, severityID, statusID)
	if err != nil {
		return nil, err
	}

	response := map[string]any{
		"code":    status.Code,
		"message": status.Message,
	}
	if statusID == ocsf.StatusFailure {
		response["error"] = fmt.Sprintf("Failed to %s %s", strings.ToLower(method), path)
	}
	ev["api"] = map[string]any{
		"operation": method + " " + path,
		"version":   g.faker.RandomString(g.versions),
		"service": map[string]any{
			"name":    service,
			"version": fmt.Sprintf("%d.%d.%d", g.faker.Number(1, 5), g.faker.Number(0, 9), g.faker.Number(0, 9)),
		},
		"request":  map[string]any{"uid": g.faker.UUID()},
		"response": response,
	}
	ev["http_request"] = map[string]any{"url": map[string]any{"path": path}}
	ev["actor"] = map[string]any{
		"user": map[string]any{
			"name":    user,
			"uid":     g.faker.UUID(),
			"type":    "System",
			"type_id": 3,
		},
	}
	ev["src_endpoint"] = endpoint(g.faker, fmt.Sprintf("client-%d", g.faker.Number(1000, 9999)), g.faker.Number(10000, 65535))
	ev["dst_endpoint"] = endpoint(g.faker, fmt.Sprintf("api-server-%d", g.faker.Number(1, 10)), 443)
	ev["unmapped"] = map[string]any{
		"latency_ms": g.faker.Number(10, 500),
		"client_id":  g.faker.UUID(),
	}
	return g.finish(ev)
}
