// Package typemap реализует отображение типов между SQLite и PostgreSQL.
//
// Все функции чистые: нет состояния, нет I/O. Отображение тотальное —
// неизвестный тип всегда попадает в TEXT (самый вместительный тип),
// никогда не возвращается ошибка.
package typemap

import (
	"strings"
)

// sqliteToPostgres - таблица отображения объявленных SQLite типов в PostgreSQL.
// Ядро таблицы биективно: для этих типов ToSQLite(ToPostgres(t)) == t.
var sqliteToPostgres = map[string]string{
	// Биективное ядро
	"INTEGER":  "INTEGER",
	"TEXT":     "TEXT",
	"REAL":     "DOUBLE PRECISION",
	"BLOB":     "BYTEA",
	"NUMERIC":  "NUMERIC",
	"BOOLEAN":  "SMALLINT",
	"DATETIME": "TIMESTAMP",
	"DATE":     "DATE",

	// Односторонние синонимы (SQLite type affinity принимает любые объявления)
	"INT":               "INTEGER",
	"TINYINT":           "SMALLINT",
	"SMALLINT":          "SMALLINT",
	"MEDIUMINT":         "INTEGER",
	"BIGINT":            "BIGINT",
	"UNSIGNED BIG INT":  "BIGINT",
	"FLOAT":             "DOUBLE PRECISION",
	"DOUBLE":            "DOUBLE PRECISION",
	"DOUBLE PRECISION":  "DOUBLE PRECISION",
	"DECIMAL":           "NUMERIC",
	"CHARACTER":         "TEXT",
	"VARCHAR":           "TEXT",
	"VARYING CHARACTER": "TEXT",
	"NCHAR":             "TEXT",
	"NVARCHAR":          "TEXT",
	"CLOB":              "TEXT",
	"BOOL":              "SMALLINT",
	"TIMESTAMP":         "TIMESTAMP",
	"TIME":              "TIME",
}

// postgresToSQLite - обратная таблица: типы PostgreSQL (в нижнем регистре,
// как их возвращает information_schema) в объявленные SQLite типы.
var postgresToSQLite = map[string]string{
	// Биективное ядро (обратная сторона)
	"integer":          "INTEGER",
	"text":             "TEXT",
	"double precision": "REAL",
	"bytea":            "BLOB",
	"numeric":          "NUMERIC",
	"smallint":         "BOOLEAN",
	"timestamp":        "DATETIME",
	"date":             "DATE",

	// Односторонние синонимы
	"int":                         "INTEGER",
	"int2":                        "BOOLEAN",
	"int4":                        "INTEGER",
	"int8":                        "INTEGER",
	"bigint":                      "INTEGER",
	"serial":                      "INTEGER",
	"bigserial":                   "INTEGER",
	"real":                        "REAL",
	"float4":                      "REAL",
	"float8":                      "REAL",
	"decimal":                     "NUMERIC",
	"boolean":                     "BOOLEAN",
	"bool":                        "BOOLEAN",
	"character varying":           "TEXT",
	"varchar":                     "TEXT",
	"character":                   "TEXT",
	"char":                        "TEXT",
	"timestamp without time zone": "DATETIME",
	"timestamp with time zone":    "DATETIME",
	"timestamptz":                 "DATETIME",
	"time":                        "TIME",
	"uuid":                        "TEXT",
	"json":                        "TEXT",
	"jsonb":                       "TEXT",
	"inet":                        "TEXT",
	"cidr":                        "TEXT",
	"macaddr":                     "TEXT",
	"xml":                         "TEXT",
}

// FallbackType - тип по умолчанию для неизвестных объявлений.
// TEXT принимает любое значение, поэтому отображение всегда тотальное.
const FallbackType = "TEXT"

// ToPostgres конвертирует объявленный SQLite тип в PostgreSQL тип
// для использования в CREATE TABLE. Регистронезависимо, размеры и
// модификаторы (VARCHAR(100), NUMERIC(18,2)) отбрасываются перед поиском.
func ToPostgres(sqliteType string) string {
	base := extractBaseType(strings.ToUpper(sqliteType))
	if pg, ok := sqliteToPostgres[base]; ok {
		return pg
	}
	return FallbackType
}

// ToSQLite конвертирует PostgreSQL тип (как его возвращает
// information_schema.columns) в объявленный SQLite тип.
func ToSQLite(pgType string) string {
	base := extractBaseType(strings.ToLower(pgType))
	if sq, ok := postgresToSQLite[base]; ok {
		return sq
	}
	return FallbackType
}

// extractBaseType извлекает базовый тип: убирает скобки с параметрами
// и лишние пробелы. "VARCHAR(100)" -> "VARCHAR"
func extractBaseType(t string) string {
	if idx := strings.Index(t, "("); idx != -1 {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}
