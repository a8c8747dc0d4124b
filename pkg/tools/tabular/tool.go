package tabular

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Output is the tabular tool's result payload: the template that ran
// and its rows in column order.
type Output struct {
	Template string           `json:"template"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

// Tool runs registered SQL templates against the maintenance database.
type Tool struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to the maintenance database.
func Open(dsn string, logger *zap.Logger) (*Tool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open maintenance db: %w", err)
	}
	return NewTool(db, logger), nil
}

// NewTool wraps an existing database handle.
func NewTool(db *sql.DB, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tool{db: db, logger: logger}
}

// Close releases the database handle.
func (t *Tool) Close() error { return t.db.Close() }

func (t *Tool) Name() string { return "sql_template" }

// Invoke runs a template. Expected args: template (string), params
// (map[string]any).
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["template"].(string)
	tpl, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	params, _ := args["params"].(map[string]any)
	bound, err := tpl.bind(normalizeParams(params))
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, tpl.SQL, bound...)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	defer rows.Close()

	out := Output{Template: name, Columns: tpl.Columns}
	for rows.Next() {
		values := make([]any, len(tpl.Columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		row := make(map[string]any, len(tpl.Columns))
		for i, col := range tpl.Columns {
			row[col] = normalizeValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}

	t.logger.Debug("template executed",
		zap.String("template", name),
		zap.Int("rows", len(out.Rows)),
	)
	return out, nil
}

// normalizeParams coerces numeric params that arrive as float64 from
// JSON decoding back to int so the driver binds them cleanly.
func normalizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			out[k] = int(f)
			continue
		}
		out[k] = v
	}
	return out
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
