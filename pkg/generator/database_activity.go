package generator

import (
	"fmt"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

type database struct {
	Name   string
	Tables []string
}

type databaseActivity struct {
	base
	operations []code
	databases  []database
	users      []string
}

// NewDatabaseActivity returns a generator for class 5001
func NewDatabaseActivity(cfg Config) Generator {
	return &databaseActivity{
		base: newBase(ocsf.DatabaseActivity, "Database Monitor", cfg),
		operations: []code{
			{1, "SELECT"}, {2, "INSERT"}, {3, "UPDATE"}, {4, "DELETE"}, {5, "CREATE"},
			{6, "ALTER"}, {7, "DROP"}, {8, "GRANT"}, {9, "REVOKE"},
		},
		databases: []database{
			{"users_db", []string{"users", "roles", "permissions", "sessions"}},
			{"orders_db", []string{"orders", "order_items", "shipments", "invoices"}},
			{"products_db", []string{"products", "categories", "inventory", "suppliers"}},
			{"analytics_db", []string{"events", "metrics", "reports", "dashboards"}},
			{"audit_db", []string{"access_logs", "changes", "alerts", "incidents"}},
		},
		users: []string{"db_admin", "app_user", "reporting_user", "backup_user", "readonly_user"},
	}
}

func (g *databaseActivity) Generate() (ocsf.Event, error) {
	op, err := pick(g.faker, g.operations)
	if err != nil {
		return nil, g.fail("database.operation", err)
	}
	db, err := pick(g.faker, g.databases)
	if err != nil {
		return nil, g.fail("database.name", err)
	}
	table, err := pick(g.faker, db.Tables)
	if err != nil {
		return nil, g.fail("database.schema", err)
	}
	user, err := pick(g.faker, g.users)
	if err != nil {
		return nil, g.fail("actor.user.name", err)
	}

	// schema and privilege changes are worth a look
	severityID := ocsf.SeverityInformational
	if op.ID >= 7 {
		severityID = ocsf.SeverityMedium
	}
	ev, err := g.header(op.ID, severityID, ocsf.StatusSuccess)
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"name":      db.Name,
		"instance":  fmt.Sprintf("%s-%d", db.Name, g.faker.Number(1, 5)),
		"schema":    table,
		"operation": op.Name,
		"query":     sqlFor(op.Name, table),
	}
	switch op.Name {
	case "INSERT", "UPDATE", "DELETE":
		details["rows_affected"] = g.faker.Number(1, 1000)
	case "SELECT":
		details["rows_returned"] = g.faker.Number(1, 10000)
	case "GRANT", "REVOKE":
		details["privileges"] = sample(g.faker, []string{"SELECT", "INSERT", "UPDATE", "DELETE", "ALL"}, g.faker.Number(1, 3))
	}
	ev["database"] = details
	ev["actor"] = map[string]any{
		"user": map[string]any{
			"name":    user,
			"uid":     g.faker.UUID(),
			"type":    "User",
			"type_id": 1,
		},
	}
	ev["src_endpoint"] = map[string]any{
		"ip":       fmt.Sprintf("10.%d.%d.%d", g.faker.Number(0, 255), g.faker.Number(0, 255), g.faker.Number(0, 255)),
		"hostname": fmt.Sprintf("app-server-%d", g.faker.Number(1, 100)),
	}
	ev["dst_endpoint"] = map[string]any{
		"ip":       fmt.Sprintf("10.%d.%d.%d", g.faker.Number(0, 255), g.faker.Number(0, 255), g.faker.Number(0, 255)),
		"hostname": fmt.Sprintf("db-server-%d", g.faker.Number(1, 10)),
		"port":     3306,
	}
	return g.finish(ev)
}

func sqlFor(operation, table string) string {
	switch operation {
	case "SELECT":
		return "SELECT * FROM " + table + " WHERE id = ?"
	case "INSERT":
		return "INSERT INTO " + table + " (column1, column2) VALUES (?, ?)"
	case "UPDATE":
		return "UPDATE " + table + " SET column1 = ? WHERE id = ?"
	case "DELETE":
		return "DELETE FROM " + table + " WHERE id = ?"
	case "CREATE":
		return "CREATE TABLE " + table + " (id INT PRIMARY KEY, name VARCHAR(255))"
	case "ALTER":
		return "ALTER TABLE " + table + " ADD COLUMN new_column VARCHAR(255)"
	case "DROP":
		return "DROP TABLE " + table
	case "GRANT":
		return "GRANT SELECT, INSERT ON " + table + " TO user"
	case "REVOKE":
		return "REVOKE ALL ON " + table + " FROM user"
	}
	return "-- " + operation
}
