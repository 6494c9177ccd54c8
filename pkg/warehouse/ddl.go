package warehouse

import (
	"strings"

	"github.com/dukex/assetflow/pkg/schema"
	"github.com/lib/pq"
)

var columnTypes = map[string]string{
	schema.TypeString:    "TEXT",
	schema.TypeInt64:     "BIGINT",
	schema.TypeFloat64:   "DOUBLE PRECISION",
	schema.TypeNumeric:   "NUMERIC",
	schema.TypeBool:      "BOOLEAN",
	schema.TypeDate:      "DATE",
	schema.TypeTime:      "TIME",
	schema.TypeDatetime:  "TIMESTAMP",
	schema.TypeTimestamp: "TIMESTAMPTZ",
	schema.TypeBytes:     "BYTEA",
	schema.TypeJSON:      "JSONB",
}

// ColumnDefinition renders field as a PostgreSQL column definition.
func ColumnDefinition(field schema.Field) string {
	columnType, ok := columnTypes[field.Type]
	if !ok {
		columnType = "TEXT"
	}

	var b strings.Builder

	b.WriteString(pq.QuoteIdentifier(field.Name))
	b.WriteByte(' ')
	b.WriteString(columnType)

	switch field.Mode {
	case schema.ModeRepeated:
		b.WriteString("[]")
	case schema.ModeRequired:
		b.WriteString(" NOT NULL")
	}

	return b.String()
}

func CreateSchemaStatement(dataset string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(dataset)
}

func CreateTableStatement(dataset, table string, fields []schema.Field, ifNotExists bool) string {
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, ColumnDefinition(field))
	}

	statement := "CREATE TABLE "
	if ifNotExists {
		statement += "IF NOT EXISTS "
	}

	return statement + qualified(dataset, table) + " (" + strings.Join(columns, ", ") + ")"
}

func qualified(namespace, table string) string {
	return pq.QuoteIdentifier(namespace) + "." + pq.QuoteIdentifier(table)
}
