// Package tabular implements the structured-data tool: a fixed registry
// of parameterized SQL templates over the maintenance database. Queries
// never reach the database except through a registered template.
package tabular

import (
	"errors"
	"fmt"
)

// ErrUnknownTemplate marks a request for a template that is not
// registered.
var ErrUnknownTemplate = errors.New("unknown query template")

// ErrMissingParam marks a template invocation without a required
// parameter.
var ErrMissingParam = errors.New("missing template parameter")

// Template is one registered query. Required params must be present;
// optional params widen to an unfiltered clause when absent.
type Template struct {
	Name     string
	SQL      string
	Required []string
	Optional []string
	Columns  []string
}

// Registry holds the query templates in a fixed order.
var registry = []Template{
	{
		Name: "labor_cost_month_top1",
		SQL: `SELECT park_name, SUM(amount) AS total
			FROM maintenance_costs
			WHERE cost_type = 'labor' AND month = $1 AND year = $2
			GROUP BY park_name
			ORDER BY total DESC
			LIMIT 1`,
		Required: []string{"month", "year"},
		Columns:  []string{"park_name", "total"},
	},
	{
		Name: "last_mowing_date",
		SQL: `SELECT park_name, MAX(performed_on) AS last_date
			FROM maintenance_logs
			WHERE activity = 'mowing'
			  AND ($1::text IS NULL OR park_name = $1)
			GROUP BY park_name
			ORDER BY park_name`,
		Optional: []string{"park_name"},
		Columns:  []string{"park_name", "last_date"},
	},
	{
		Name: "cost_trend",
		SQL: `SELECT month, SUM(amount) AS total
			FROM maintenance_costs
			WHERE month BETWEEN $1 AND $2
			  AND ($3::int IS NULL OR year = $3)
			  AND ($4::text IS NULL OR park_name = $4)
			GROUP BY month
			ORDER BY month`,
		Required: []string{"start_month", "end_month"},
		Optional: []string{"year", "park_name"},
		Columns:  []string{"month", "total"},
	},
	{
		Name: "cost_by_park_month",
		SQL: `SELECT park_name, SUM(amount) AS total
			FROM maintenance_costs
			WHERE month = $1 AND year = $2
			GROUP BY park_name
			ORDER BY total DESC`,
		Required: []string{"month", "year"},
		Columns:  []string{"park_name", "total"},
	},
	{
		Name: "cost_breakdown",
		SQL: `SELECT cost_type, SUM(amount) AS total
			FROM maintenance_costs
			WHERE ($1::int IS NULL OR year = $1)
			  AND ($2::int IS NULL OR month = $2)
			  AND ($3::text IS NULL OR park_name = $3)
			GROUP BY cost_type
			ORDER BY total DESC`,
		Optional: []string{"year", "month", "park_name"},
		Columns:  []string{"cost_type", "total"},
	},
}

// Lookup returns the named template.
func Lookup(name string) (Template, error) {
	for _, t := range registry {
		if t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
}

// Names returns all registered template names in registration order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for _, t := range registry {
		out = append(out, t.Name)
	}
	return out
}

// bind resolves the positional argument list for a template from the
// named params. Missing required params are an error; missing optional
// params bind as NULL.
func (t Template) bind(params map[string]any) ([]any, error) {
	args := make([]any, 0, len(t.Required)+len(t.Optional))
	for _, name := range t.Required {
		v, ok := params[name]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingParam, t.Name, name)
		}
		args = append(args, v)
	}
	for _, name := range t.Optional {
		v, ok := params[name]
		if !ok {
			v = nil
		}
		args = append(args, v)
	}
	return args, nil
}
