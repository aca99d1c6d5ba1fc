package translator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/queuebridge/pgbridge/pkg/typemap"
)

// ========== CREATE TABLE ==========

var (
	// INTEGER PRIMARY KEY AUTOINCREMENT - идиома SQLite для auto-increment PK
	reAutoincPK = regexp.MustCompile(`(?i)\bINTEGER\s+PRIMARY\s+KEY\s+AUTOINCREMENT\b`)

	// Остаточный AUTOINCREMENT без эквивалента в PostgreSQL
	reAutoinc = regexp.MustCompile(`(?i)\s+AUTOINCREMENT\b`)

	// WITHOUT ROWID - только SQLite, в PostgreSQL эквивалента нет
	reWithoutRowid = regexp.MustCompile(`(?i)\s+WITHOUT\s+ROWID\b`)

	// Заголовок CREATE TABLE с опциональным IF NOT EXISTS
	reCreateTableHead = regexp.MustCompile(`(?i)^(CREATE\s+(?:TEMP(?:ORARY)?\s+)?TABLE\s+)(IF\s+NOT\s+EXISTS\s+)?`)
)

// typeRule - одно правило замены типа в DDL
type typeRule struct {
	re          *regexp.Regexp
	replacement string
}

// typeRules строится из таблицы typemap: берем SQLite типы, у которых
// PostgreSQL имя отличается, и заменяем их по границам слов.
// Порядок фиксирован - трансляция должна быть детерминированной.
var typeRules = buildTypeRules()

func buildTypeRules() []typeRule {
	words := []string{
		"BLOB", "DATETIME", "REAL", "FLOAT", "BOOLEAN", "BOOL",
		"CLOB", "TINYINT", "MEDIUMINT", "UNSIGNED BIG INT",
	}

	rules := make([]typeRule, 0, len(words))
	for _, w := range words {
		pg := typemap.ToPostgres(w)
		if pg == w {
			continue
		}
		pattern := `(?i)\b` + strings.ReplaceAll(w, " ", `\s+`) + `\b`
		rules = append(rules, typeRule{
			re:          regexp.MustCompile(pattern),
			replacement: pg,
		})
	}
	return rules
}

// rewriteCreateTable переписывает SQLite CREATE TABLE в PostgreSQL DDL:
// auto-increment идиомы, типы колонок, IF NOT EXISTS, терминатор.
func rewriteCreateTable(stmt string) (string, error) {
	s := strings.TrimSpace(stmt)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))

	if !strings.Contains(s, "(") {
		return "", fmt.Errorf("create table statement has no column list: %.60s", s)
	}

	// datetime('now') в DEFAULT выражениях переписывается до правил типов,
	// иначе слово DATETIME внутри него было бы принято за тип колонки
	s = replaceOutsideLiterals(s, reDatetimeNow, func(string) string { return "NOW()" })

	s = RewriteOutsideLiterals(s, func(seg string) string {
		seg = reAutoincPK.ReplaceAllString(seg, "BIGSERIAL PRIMARY KEY")
		seg = reAutoinc.ReplaceAllString(seg, "")
		seg = reWithoutRowid.ReplaceAllString(seg, "")
		for _, r := range typeRules {
			seg = r.re.ReplaceAllString(seg, r.replacement)
		}
		return seg
	})

	// Идемпотентное создание: IF NOT EXISTS если исходник его не имел
	if m := reCreateTableHead.FindStringSubmatch(s); m != nil && m[2] == "" {
		s = m[1] + "IF NOT EXISTS " + s[len(m[1]):]
	}

	return s + ";", nil
}

// ========== DML / SELECT ==========

var (
	reInsertOrIgnore  = regexp.MustCompile(`(?i)^\s*INSERT\s+OR\s+IGNORE\s+INTO\b`)
	reInsertOrReplace = regexp.MustCompile(`(?i)^\s*(INSERT\s+OR\s+REPLACE\s+INTO|REPLACE\s+INTO)\b`)
	reIfnull          = regexp.MustCompile(`(?i)\bIFNULL\s*\(`)
	reDatetimeNow     = regexp.MustCompile(`(?i)\bDATETIME\s*\(\s*'now'\s*\)`)
	reGroupConcat     = regexp.MustCompile(`(?i)\bGROUP_CONCAT\s*\(([^()]*)\)`)
	reLimitComma      = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+|\?)\s*,\s*(\d+|\?)`)
)

// rewriteDML применяет DML-правила по порядку. Каждое правило - no-op
// при отсутствии совпадения.
func rewriteDML(stmt string, category Category) (sql string, placeholders []string, warning string) {
	s := stmt
	appendOnConflict := false

	if category == CategoryInsert {
		switch {
		case reInsertOrIgnore.MatchString(s):
			// SQLite: INSERT OR IGNORE -> PostgreSQL: ON CONFLICT DO NOTHING
			s = reInsertOrIgnore.ReplaceAllString(s, "INSERT INTO")
			appendOnConflict = true
		case reInsertOrReplace.MatchString(s):
			// Для OR REPLACE нужен conflict target, которого в исходном
			// выражении нет. Пропускаем без изменений и предупреждаем.
			warning = "INSERT OR REPLACE has no PostgreSQL rewrite without a conflict target, passed through"
		}
	}

	// Правила, чье совпадение само содержит строковый литерал, идут
	// с фильтром по позиции начала: вхождение внутри чужого литерала
	// не переписывается
	s = replaceOutsideLiterals(s, reDatetimeNow, func(string) string { return "NOW()" })

	// GROUP_CONCAT(x) -> STRING_AGG(x, ','), явный разделитель сохраняется
	s = replaceOutsideLiterals(s, reGroupConcat, func(match string) string {
		inner := reGroupConcat.FindStringSubmatch(match)[1]
		if strings.Contains(inner, ",") {
			return "STRING_AGG(" + inner + ")"
		}
		return "STRING_AGG(" + inner + ", ',')"
	})

	s = RewriteOutsideLiterals(s, func(seg string) string {
		// Backtick-идентификаторы (SQLite их принимает) -> двойные кавычки
		seg = strings.ReplaceAll(seg, "`", `"`)

		seg = reIfnull.ReplaceAllString(seg, "COALESCE(")

		// LIMIT offset, count (форма SQLite/MySQL) -> OFFSET offset
		// LIMIT count; порядок операндов сохраняется, чтобы позиционные
		// параметры привязались в исходном порядке
		seg = reLimitComma.ReplaceAllString(seg, "OFFSET $1 LIMIT $2")

		return seg
	})

	if appendOnConflict {
		trimmed := strings.TrimSpace(s)
		hadSemi := strings.HasSuffix(trimmed, ";")
		trimmed = strings.TrimSuffix(trimmed, ";")
		trimmed += " ON CONFLICT DO NOTHING"
		if hadSemi {
			trimmed += ";"
		}
		s = trimmed
	}

	s, placeholders = convertPlaceholders(s)
	return s, placeholders, warning
}

// convertPlaceholders заменяет позиционные ? на $1..$n.
// Сканер учитывает строковые литералы и идентификаторы в кавычках -
// знак вопроса внутри них не является placeholder'ом.
func convertPlaceholders(sql string) (string, []string) {
	var b strings.Builder
	var placeholders []string
	inSingle, inDouble := false, false
	n := 0

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '?' && !inSingle && !inDouble:
			n++
			ph := fmt.Sprintf("$%d", n)
			placeholders = append(placeholders, ph)
			b.WriteString(ph)
			continue
		}
		b.WriteByte(c)
	}

	return b.String(), placeholders
}

// RewriteOutsideLiterals применяет fn к фрагментам SQL вне строковых
// литералов. Литералы (включая удвоенную кавычку-экранирование) копируются
// без изменений. Экспортируется для переписываний поверх уже
// транслированного SQL (привязка backend имени таблицы в фасаде).
func RewriteOutsideLiterals(sql string, fn func(string) string) string {
	var b strings.Builder

	for {
		i := strings.IndexByte(sql, '\'')
		if i < 0 {
			b.WriteString(fn(sql))
			break
		}
		b.WriteString(fn(sql[:i]))

		// Ищем конец литерала, '' внутри - экранированная кавычка
		j := i + 1
		for j < len(sql) {
			if sql[j] == '\'' {
				if j+1 < len(sql) && sql[j+1] == '\'' {
					j += 2
					continue
				}
				break
			}
			j++
		}

		if j >= len(sql) {
			b.WriteString(sql[i:])
			break
		}

		b.WriteString(sql[i : j+1])
		sql = sql[j+1:]
	}

	return b.String()
}

// literalSpans возвращает интервалы строковых литералов [start, end).
// Незакрытый литерал тянется до конца строки.
func literalSpans(sql string) [][2]int {
	var spans [][2]int
	for i := 0; i < len(sql); i++ {
		if sql[i] != '\'' {
			continue
		}
		j := i + 1
		for j < len(sql) {
			if sql[j] == '\'' {
				if j+1 < len(sql) && sql[j+1] == '\'' {
					j += 2
					continue
				}
				break
			}
			j++
		}
		if j >= len(sql) {
			spans = append(spans, [2]int{i, len(sql)})
			return spans
		}
		spans = append(spans, [2]int{i, j + 1})
		i = j
	}
	return spans
}

// replaceOutsideLiterals заменяет совпадения re, начинающиеся вне строковых
// литералов. Для правил, чье совпадение само содержит литерал
// (datetime('now'), GROUP_CONCAT с разделителем), посегментная перезапись
// не годится - здесь фильтруется позиция начала совпадения.
func replaceOutsideLiterals(sql string, re *regexp.Regexp, repl func(match string) string) string {
	matches := re.FindAllStringIndex(sql, -1)
	if matches == nil {
		return sql
	}
	spans := literalSpans(sql)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m[0] < last || insideLiteral(spans, m[0]) {
			continue
		}
		b.WriteString(sql[last:m[0]])
		b.WriteString(repl(sql[m[0]:m[1]]))
		last = m[1]
	}
	b.WriteString(sql[last:])
	return b.String()
}

func insideLiteral(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}
