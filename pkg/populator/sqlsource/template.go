package sqlsource

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/lookupd/lookupd/pkg/namespace"
)

// renderQuery renders a definition's query override with sprig functions.
//
// The rendered statement must project (key, value) columns, or
// (ts, key, value) when the definition carries a ts column. Available
// variables: .Table, .KeyColumn, .ValueColumn, .TSColumn, .LastVersion.
func renderQuery(def *namespace.Definition, lastVersion string) (string, error) {
	tmpl, err := template.New("query").Funcs(sprig.TxtFuncMap()).Parse(def.Query)
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}

	variables := map[string]interface{}{
		"Table":       def.Table,
		"KeyColumn":   def.KeyColumn,
		"ValueColumn": def.ValueColumn,
		"TSColumn":    def.TSColumn,
		"LastVersion": lastVersion,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("failed to execute query template: %w", err)
	}

	return buf.String(), nil
}
