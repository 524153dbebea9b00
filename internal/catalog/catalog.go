package catalog

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolDefinition is one entry in the fixed catalog: a named query template
// with positional placeholders and a JSON Schema for its parameter list.
// Parameters are always bound as data; no caller-supplied text ever becomes
// part of the executed query.
type ToolDefinition struct {
	Name        string
	Description string
	Query       string
	ParamSchema string

	schema *jsonschema.Schema
}

// ValidateParams checks the positional parameter list against the tool's
// schema before binding.
func (td *ToolDefinition) ValidateParams(params []any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("ValidateParams: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("ValidateParams: %w", err)
	}
	if err := td.schema.Validate(doc); err != nil {
		return fmt.Errorf("parameters for %s: %w", td.Name, err)
	}
	return nil
}

// definitions is the closed menu of operations. It is the system's primary
// injection-safety boundary: nothing outside this list is ever invocable,
// and the list never changes at runtime.
var definitions = []*ToolDefinition{
	{
		Name:        "get_daily_revenue",
		Description: "Daily revenue totals for an inclusive date range.",
		Query: `
			SELECT dt, revenue_usd
			FROM lakehouse.gold_daily_revenue
			WHERE dt BETWEEN ? AND ?
			ORDER BY dt
		`,
		ParamSchema: `{
			"type": "array",
			"prefixItems": [{"type": "string"}, {"type": "string"}],
			"minItems": 2,
			"maxItems": 2
		}`,
	},
	{
		Name:        "get_revenue_by_sku",
		Description: "Per-SKU revenue for a single day, highest revenue first.",
		Query: `
			SELECT dt, sku, revenue_usd
			FROM lakehouse.gold_revenue_by_sku_day
			WHERE dt = ?
			ORDER BY revenue_usd DESC
		`,
		ParamSchema: `{
			"type": "array",
			"prefixItems": [{"type": "string"}],
			"minItems": 1,
			"maxItems": 1
		}`,
	},
	{
		Name:        "get_data_freshness",
		Description: "Latest ingestion timestamp per gold table.",
		Query: `
			SELECT table_name, latest_ingestion_ts
			FROM lakehouse.gold_data_freshness
			ORDER BY table_name
		`,
		ParamSchema: `{
			"type": "array",
			"maxItems": 0
		}`,
	},
	{
		Name:        "find_missing_skus_yesterday",
		Description: "SKUs seen in a trailing window but absent on the target day.",
		Query: `
			SELECT sku
			FROM (
				SELECT DISTINCT sku
				FROM lakehouse.gold_revenue_by_sku_day
				WHERE dt BETWEEN ? AND ?
			)
			WHERE sku NOT IN (
				SELECT sku
				FROM lakehouse.gold_revenue_by_sku_day
				WHERE dt = ?
			)
			ORDER BY sku
		`,
		ParamSchema: `{
			"type": "array",
			"prefixItems": [{"type": "string"}, {"type": "string"}, {"type": "string"}],
			"minItems": 3,
			"maxItems": 3
		}`,
	},
}

// Catalog holds the compiled fixed catalog. Immutable after construction.
type Catalog struct {
	tools map[string]*ToolDefinition
}

// New compiles the parameter schemas and returns the catalog.
func New() (*Catalog, error) {
	tools := make(map[string]*ToolDefinition, len(definitions))
	for _, td := range definitions {
		var schemaObj any
		if err := json.Unmarshal([]byte(td.ParamSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("catalog: %s param schema: %w", td.Name, err)
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("params.json", schemaObj); err != nil {
			return nil, fmt.Errorf("catalog: %s param schema: %w", td.Name, err)
		}
		sch, err := c.Compile("params.json")
		if err != nil {
			return nil, fmt.Errorf("catalog: %s param schema: %w", td.Name, err)
		}

		td.schema = sch
		tools[td.Name] = td
	}
	return &Catalog{tools: tools}, nil
}

// Get returns the definition for name, or nil if the name is outside the
// catalog.
func (c *Catalog) Get(name string) *ToolDefinition {
	return c.tools[name]
}

// Names returns the catalog's tool names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
