package generator

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type fileAction struct {
	ActivityID int
	Verb       string
}

type fileSystemActivity struct {
	base
	actions     []fileAction
	users       []string
	groups      []string
	directories []string
	extensions  []string
	permissions []string
}

// NewFileSystemActivity returns a generator for class 1001
func NewFileSystemActivity(cfg Config) Generator {
	return &fileSystemActivity{
		base: newBase(ocsf.FileSystemActivity, "File System Monitor", cfg),
		actions: []fileAction{
			{1, "create"}, {2, "read"}, {3, "modify"}, {4, "delete"},
			{5, "rename"}, {7, "chmod"}, {14, "open"},
		},
		users:  []string{"john.doe", "jane.smith", "admin", "root", "jenkins", "mysql", "nginx", "elasticsearch", "tomcat"},
		groups: []string{"users", "www-data", "admin", "root"},
		directories: []string{
			"/home/users/documents", "/var/www/html", "/tmp", "/etc", "/var/jenkins/workspace",
			"/var/lib/mysql/database", "/usr/local/bin", "/var/log/nginx", "/var/lib/elasticsearch", "/backup/daily",
		},
		extensions:  []string{"pdf", "html", "json", "log", "jar", "sh", "docx", "gz", "conf", "txt"},
		permissions: []string{"644", "600", "755", "640"},
	}
}

func (g *fileSystemActivity) Generate() (ocsf.Event, error) {
	action, err := pick(g.faker, g.actions)
	if err != nil {
		return nil, g.fail("activity_id", err)
	}
	user, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("actor.user.name", err)
	}
	dir, err := pick(g.faker, g.directories)
	if err != nil {
		return nil, g.fail("file.path", err)
	}
	ext, err := pick(g.faker, g.extensions)
	if err != nil {
		return nil, g.fail("file.name", err)
	}

	severityID := ocsf.SeverityInformational
	if action.ActivityID == 4 || action.ActivityID == 7 {
		severityID = ocsf.SeverityLow
	}
	// writes under /etc stand out
	if strings.HasPrefix(dir, "/etc") && action.ActivityID != 2 {
		severityID = ocsf.SeverityMedium
	}

	ev, err := g.header(action.ActivityID, severityID, ocsf.StatusSuccess)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("file_%d.%s", g.faker.Number(1000, 9999), ext)
	file := map[string]any{
		"name":        name,
		"path":        path.Join(dir, name),
		"type":        "Regular File",
		"type_id":     1,
		"extension":   ext,
		"size":        g.faker.Number(1024, 10485760),
		"permissions": g.faker.RandomString(g.permissions),
		"owner":       map[string]any{"name": user},
		"group":       map[string]any{"name": g.faker.RandomString(g.groups)},
	}
	ev["file"] = file
	if action.ActivityID == 5 {
		ev["file_result"] = map[string]any{
			"path": path.Join(dir, fmt.Sprintf("file_%d.%s", g.faker.Number(1000, 9999), ext)),
		}
	}
	ev["actor"] = map[string]any{
		"user": map[string]any{
			"name":    user,
			"uid":     strconv.Itoa(g.faker.Number(1000, 65534)),
			"type_id": 1,
			"type":    "User",
		},
	}
	ev["process"] = map[string]any{
		"pid":  g.faker.Number(1000, 9999),
		"name": "fs_monitor",
		"file": map[string]any{"path": "/usr/sbin/fs_monitor"},
	}
	ev["device"] = map[string]any{
		"hostname": g.faker.DomainName(),
		"ip":       g.faker.IPv4Address(),
	}
	ev["message"] = fmt.Sprintf("%s %s by %s", action.Verb, file["path"], user)
	return g.finish(ev)
}
