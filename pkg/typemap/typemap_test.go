package typemap

import (
	"testing"
)

// Тест проверяет прямое отображение типов SQLite -> PostgreSQL
func TestToPostgres(t *testing.T) {
	cases := []struct {
		sqlite   string
		postgres string
	}{
		{"INTEGER", "INTEGER"},
		{"TEXT", "TEXT"},
		{"REAL", "DOUBLE PRECISION"},
		{"BLOB", "BYTEA"},
		{"NUMERIC", "NUMERIC"},
		{"BOOLEAN", "SMALLINT"},
		{"DATETIME", "TIMESTAMP"},
		{"DATE", "DATE"},
		// синонимы
		{"INT", "INTEGER"},
		{"BIGINT", "BIGINT"},
		{"VARCHAR", "TEXT"},
		{"DOUBLE", "DOUBLE PRECISION"},
		{"FLOAT", "DOUBLE PRECISION"},
		{"CLOB", "TEXT"},
	}

	for _, c := range cases {
		got := ToPostgres(c.sqlite)
		if got != c.postgres {
			t.Errorf("ToPostgres(%q) = %q, want %q", c.sqlite, got, c.postgres)
		}
	}
}

// Тест проверяет обратное отображение PostgreSQL -> SQLite
func TestToSQLite(t *testing.T) {
	cases := []struct {
		postgres string
		sqlite   string
	}{
		{"integer", "INTEGER"},
		{"text", "TEXT"},
		{"double precision", "REAL"},
		{"bytea", "BLOB"},
		{"numeric", "NUMERIC"},
		{"smallint", "BOOLEAN"},
		{"timestamp", "DATETIME"},
		{"date", "DATE"},
		// синонимы
		{"int4", "INTEGER"},
		{"int8", "INTEGER"},
		{"varchar", "TEXT"},
		{"float8", "REAL"},
		{"bool", "BOOLEAN"},
		{"timestamp without time zone", "DATETIME"},
	}

	for _, c := range cases {
		got := ToSQLite(c.postgres)
		if got != c.sqlite {
			t.Errorf("ToSQLite(%q) = %q, want %q", c.postgres, got, c.sqlite)
		}
	}
}

// Тест проверяет инвариант: типы ядра выдерживают полный круг
// SQLite -> PostgreSQL -> SQLite без потерь
func TestRoundTripCore(t *testing.T) {
	core := []string{"INTEGER", "TEXT", "REAL", "BLOB", "NUMERIC", "BOOLEAN", "DATETIME", "DATE"}

	for _, typ := range core {
		back := ToSQLite(ToPostgres(typ))
		if back != typ {
			t.Errorf("round trip for %q: got %q", typ, back)
		}
	}
}

// Тест проверяет fallback на TEXT для неизвестных типов
func TestFallback(t *testing.T) {
	if got := ToPostgres("GEOMETRY"); got != FallbackType {
		t.Errorf("ToPostgres(GEOMETRY) = %q, want %q", got, FallbackType)
	}
	if got := ToSQLite("tsvector"); got != FallbackType {
		t.Errorf("ToSQLite(tsvector) = %q, want %q", got, FallbackType)
	}
}

// Тест проверяет извлечение базового типа из деклараций с параметрами
func TestParameterizedTypes(t *testing.T) {
	cases := []struct {
		decl string
		want string
	}{
		{"VARCHAR(100)", "TEXT"},
		{"NUMERIC(10,2)", "NUMERIC"},
		{"varchar(255)", "TEXT"},
		{"  TEXT  ", "TEXT"},
	}

	for _, c := range cases {
		got := ToPostgres(c.decl)
		if got != c.want {
			t.Errorf("ToPostgres(%q) = %q, want %q", c.decl, got, c.want)
		}
	}
}

// Тест проверяет регистронезависимость отображения
func TestCaseInsensitive(t *testing.T) {
	if got := ToPostgres("integer"); got != "INTEGER" {
		t.Errorf("ToPostgres(integer) = %q, want INTEGER", got)
	}
	if got := ToSQLite("TIMESTAMP"); got != "DATETIME" {
		t.Errorf("ToSQLite(TIMESTAMP) = %q, want DATETIME", got)
	}
}
