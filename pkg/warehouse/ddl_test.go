package warehouse

import (
	"testing"

	"github.com/dukex/assetflow/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestColumnDefinition(t *testing.T) {
	tests := []struct {
		name     string
		field    schema.Field
		expected string
	}{
		{"required int", schema.Field{Name: "id", Type: schema.TypeInt64, Mode: schema.ModeRequired}, `"id" BIGINT NOT NULL`},
		{"nullable numeric", schema.Field{Name: "amount", Type: schema.TypeNumeric, Mode: schema.ModeNullable}, `"amount" NUMERIC`},
		{"repeated string", schema.Field{Name: "tags", Type: schema.TypeString, Mode: schema.ModeRepeated}, `"tags" TEXT[]`},
		{"timestamp", schema.Field{Name: "created_at", Type: schema.TypeTimestamp, Mode: schema.ModeNullable}, `"created_at" TIMESTAMPTZ`},
		{"unknown type", schema.Field{Name: "geo", Type: "GEOGRAPHY", Mode: schema.ModeNullable}, `"geo" TEXT`},
		{"quoted name", schema.Field{Name: `we"ird`, Type: schema.TypeBool, Mode: schema.ModeNullable}, `"we""ird" BOOLEAN`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ColumnDefinition(tt.field))
		})
	}
}

func TestCreateTableStatement(t *testing.T) {
	fields := []schema.Field{
		{Name: "id", Type: schema.TypeInt64, Mode: schema.ModeRequired},
		{Name: "amount", Type: schema.TypeNumeric, Mode: schema.ModeNullable},
	}

	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "lana_dw"."orders" ("id" BIGINT NOT NULL, "amount" NUMERIC)`,
		CreateTableStatement("lana_dw", "orders", fields, true))
	assert.Equal(t,
		`CREATE TABLE "lana_dw"."orders" ("id" BIGINT NOT NULL, "amount" NUMERIC)`,
		CreateTableStatement("lana_dw", "orders", fields, false))
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "lana_dw"`, CreateSchemaStatement("lana_dw"))
}

func TestSelectStatement(t *testing.T) {
	columns := schema.Schema{{Name: "id", Position: 1}, {Name: "amount", Position: 2}}

	assert.Equal(t, `SELECT "id", "amount" FROM "public"."orders"`, selectStatement("orders", columns))
}

func TestCopyValues(t *testing.T) {
	columns := schema.Schema{{Name: "name", DataType: "text"}, {Name: "blob", DataType: "bytea"}, {Name: "n", DataType: "integer"}}

	out := copyValues(columns, []any{[]byte("alice"), []byte{0x01}, int64(3)})

	assert.Equal(t, []any{"alice", []byte{0x01}, int64(3)}, out)
}
