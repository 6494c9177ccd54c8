// Package schema translates relational source schemas into warehouse schemas.
package schema

import (
	"sort"
	"strings"
)

// Column is one source column as reported by information_schema.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`

	// ElementType is the udt_name of array columns, e.g. "_text".
	ElementType string `json:"element_type,omitempty"`
	Nullable    bool   `json:"nullable"`
	Position    int    `json:"position"`
}

// Schema is an ordered list of source columns. An empty schema means the
// source table could not be inspected.
type Schema []Column

// Field modes.
const (
	ModeNullable = "NULLABLE"
	ModeRequired = "REQUIRED"
	ModeRepeated = "REPEATED"
)

// Field is one warehouse column, named in BigQuery terms.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// Warehouse types.
const (
	TypeString    = "STRING"
	TypeInt64     = "INT64"
	TypeFloat64   = "FLOAT64"
	TypeNumeric   = "NUMERIC"
	TypeBool      = "BOOL"
	TypeDate      = "DATE"
	TypeTime      = "TIME"
	TypeDatetime  = "DATETIME"
	TypeTimestamp = "TIMESTAMP"
	TypeBytes     = "BYTES"
	TypeJSON      = "JSON"
)

var typeMap = map[string]string{
	"smallint":                    TypeInt64,
	"integer":                     TypeInt64,
	"int":                         TypeInt64,
	"int2":                        TypeInt64,
	"int4":                        TypeInt64,
	"int8":                        TypeInt64,
	"bigint":                      TypeInt64,
	"serial":                      TypeInt64,
	"bigserial":                   TypeInt64,
	"real":                        TypeFloat64,
	"float4":                      TypeFloat64,
	"float8":                      TypeFloat64,
	"double precision":            TypeFloat64,
	"numeric":                     TypeNumeric,
	"decimal":                     TypeNumeric,
	"money":                       TypeNumeric,
	"boolean":                     TypeBool,
	"bool":                        TypeBool,
	"date":                        TypeDate,
	"time":                        TypeTime,
	"time without time zone":      TypeTime,
	"time with time zone":         TypeTime,
	"timestamp":                   TypeDatetime,
	"timestamp without time zone": TypeDatetime,
	"timestamp with time zone":    TypeTimestamp,
	"timestamptz":                 TypeTimestamp,
	"bytea":                       TypeBytes,
	"json":                        TypeJSON,
	"jsonb":                       TypeJSON,
	"uuid":                        TypeString,
	"text":                        TypeString,
	"character varying":           TypeString,
	"varchar":                     TypeString,
	"character":                   TypeString,
	"char":                        TypeString,
	"inet":                        TypeString,
	"interval":                    TypeString,
}

// WarehouseType maps a source data type to its warehouse type. Precision
// suffixes such as numeric(20,2) are ignored and unknown types become STRING.
func WarehouseType(dataType string) string {
	normalized := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(normalized, '('); i >= 0 {
		normalized = strings.TrimSpace(normalized[:i])
	}

	if t, ok := typeMap[normalized]; ok {
		return t
	}

	return TypeString
}

// ToWarehouse translates s, ordered by column position. Array columns become
// REPEATED fields of their element type; warehouse arrays cannot be required.
func ToWarehouse(s Schema) []Field {
	columns := make(Schema, len(s))
	copy(columns, s)
	sort.SliceStable(columns, func(i, j int) bool { return columns[i].Position < columns[j].Position })

	fields := make([]Field, 0, len(columns))

	for _, column := range columns {
		field := Field{Name: column.Name, Type: WarehouseType(column.DataType), Mode: ModeRequired}

		switch {
		case strings.EqualFold(column.DataType, "ARRAY"):
			field.Type = WarehouseType(strings.TrimPrefix(column.ElementType, "_"))
			field.Mode = ModeRepeated
		case column.Nullable:
			field.Mode = ModeNullable
		}

		fields = append(fields, field)
	}

	return fields
}
