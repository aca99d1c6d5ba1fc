// Package translator переписывает SQL из диалекта SQLite в диалект PostgreSQL.
//
// Трансляция построена на явных правилах переписывания, по одному на каждое
// синтаксическое различие. Правило без совпадения - no-op, никогда не ошибка.
// Translate детерминирован: один и тот же вход дает байт-в-байт одинаковый выход.
// Пакет ничего не исполняет и не хранит состояния.
package translator

import (
	"fmt"
	"strings"
)

// Category - категория SQL выражения, определяется по ведущему ключевому слову.
type Category string

const (
	CategoryCreateTable Category = "CREATE TABLE"
	CategorySelect      Category = "SELECT"
	CategoryInsert      Category = "INSERT"
	CategoryUpdate      Category = "UPDATE"
	CategoryDelete      Category = "DELETE"
	CategoryUnknown     Category = "UNKNOWN"
)

// TranslatedStatement - результат трансляции одного SQL выражения.
// Неизменяемое значение: SQL строка в диалекте PostgreSQL плюс упорядоченный
// список сгенерированных placeholder'ов ($1..$n).
type TranslatedStatement struct {
	SQL          string
	Placeholders []string
	Category     Category

	// Warning заполняется когда категория не имеет правил переписывания
	// и выражение пропущено без изменений. Это не ошибка - частичное
	// покрытие диалекта не должно блокировать вызывающий код.
	Warning string
}

// CategoryOf определяет категорию выражения по ведущему ключевому слову.
func CategoryOf(statement string) Category {
	s := strings.TrimSpace(statement)
	upper := strings.ToUpper(s)

	switch {
	case strings.HasPrefix(upper, "CREATE TABLE"), strings.HasPrefix(upper, "CREATE TEMP TABLE"),
		strings.HasPrefix(upper, "CREATE TEMPORARY TABLE"):
		return CategoryCreateTable
	case strings.HasPrefix(upper, "SELECT"):
		return CategorySelect
	case strings.HasPrefix(upper, "INSERT"), strings.HasPrefix(upper, "REPLACE INTO"):
		return CategoryInsert
	case strings.HasPrefix(upper, "UPDATE"):
		return CategoryUpdate
	case strings.HasPrefix(upper, "DELETE"):
		return CategoryDelete
	default:
		return CategoryUnknown
	}
}

// IsCreateTable сообщает, является ли выражение CREATE TABLE.
// Используется фасадом для перехвата DDL.
func IsCreateTable(statement string) bool {
	return CategoryOf(statement) == CategoryCreateTable
}

// Translate переписывает одно SQL выражение из диалекта SQLite в PostgreSQL.
//
// CREATE TABLE идет по DDL-пути (типы, auto-increment, IF NOT EXISTS).
// SELECT/INSERT/UPDATE/DELETE идут через DML-правила (placeholder'ы,
// кавычки, функции, LIMIT/OFFSET). Остальные категории проходят без
// изменений с заполненным Warning.
func Translate(statement string) (TranslatedStatement, error) {
	if strings.TrimSpace(statement) == "" {
		return TranslatedStatement{}, fmt.Errorf("empty statement")
	}

	category := CategoryOf(statement)

	switch category {
	case CategoryCreateTable:
		sql, err := rewriteCreateTable(statement)
		if err != nil {
			return TranslatedStatement{}, err
		}
		return TranslatedStatement{SQL: sql, Category: category}, nil

	case CategorySelect, CategoryInsert, CategoryUpdate, CategoryDelete:
		sql, placeholders, warning := rewriteDML(statement, category)
		return TranslatedStatement{
			SQL:          sql,
			Placeholders: placeholders,
			Category:     category,
			Warning:      warning,
		}, nil

	default:
		// Нет правил для этой категории - пропускаем как есть.
		// Предупреждение, а не ошибка: см. контракт пакета.
		return TranslatedStatement{
			SQL:      statement,
			Category: CategoryUnknown,
			Warning:  fmt.Sprintf("no rewrite rules for statement category, passed through unchanged: %.40s", strings.TrimSpace(statement)),
		}, nil
	}
}

// TableName извлекает имя целевой таблицы из выражения.
// Возвращает пустую строку если имя определить не удалось.
func TableName(statement string) string {
	fields := strings.Fields(strings.TrimSpace(statement))
	upper := make([]string, len(fields))
	for i, f := range fields {
		upper[i] = strings.ToUpper(f)
	}

	take := func(i int) string {
		if i >= len(fields) {
			return ""
		}
		return unquoteIdent(strings.TrimRight(fields[i], "(;,"))
	}

	switch CategoryOf(statement) {
	case CategoryCreateTable:
		// CREATE [TEMP|TEMPORARY] TABLE [IF NOT EXISTS] name
		i := 2
		if upper[1] == "TEMP" || upper[1] == "TEMPORARY" {
			i = 3
		}
		if i+2 < len(fields) && upper[i] == "IF" && upper[i+1] == "NOT" && upper[i+2] == "EXISTS" {
			i += 3
		}
		return take(i)

	case CategoryInsert:
		// INSERT [OR IGNORE|OR REPLACE] INTO name
		for i, f := range upper {
			if f == "INTO" {
				return take(i + 1)
			}
		}

	case CategoryUpdate:
		// UPDATE [OR ...] name SET
		i := 1
		if i+1 < len(fields) && upper[i] == "OR" {
			i += 2
		}
		return take(i)

	case CategoryDelete, CategorySelect:
		// DELETE FROM name / SELECT ... FROM name
		for i, f := range upper {
			if f == "FROM" {
				return take(i + 1)
			}
		}
	}

	return ""
}

// unquoteIdent снимает кавычки с идентификатора ("name", `name`, [name]).
func unquoteIdent(ident string) string {
	if len(ident) >= 2 {
		first, last := ident[0], ident[len(ident)-1]
		if (first == '"' && last == '"') ||
			(first == '`' && last == '`') ||
			(first == '[' && last == ']') {
			return ident[1 : len(ident)-1]
		}
	}
	return ident
}
