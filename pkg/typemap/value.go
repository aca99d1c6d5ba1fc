package typemap

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Row - одна строка результата в SQLite-совместимом виде.
// Порядок колонок совпадает с порядком колонок в ответе backend —
// вызывающий код полагается на позиционное соответствие с projection list.
type Row struct {
	Columns []string
	Values  []any
}

// Get возвращает значение колонки по имени.
// Второй результат false если колонки нет в строке.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MapValue конвертирует одно значение из PostgreSQL в SQLite-совместимую форму.
// NULL всегда остается NULL. Нераспознанные типы проходят без изменений —
// это сохраняет прямую совместимость с обработкой на стороне вызывающего кода.
func MapValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil

	case time.Time:
		// SQLite хранит datetime как текст в ISO-подобном формате
		return val.UTC().Format("2006-01-02 15:04:05")

	case pgtype.Numeric:
		// NUMERIC приходит как pgtype.Numeric - конвертируем в десятичную строку
		if !val.Valid {
			return nil
		}
		dv, err := val.Value()
		if err != nil {
			return v
		}
		return dv

	case bool:
		// SQLite не имеет boolean - храним 0/1
		if val {
			return int64(1)
		}
		return int64(0)

	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)

	default:
		return v
	}
}

// MapRow конвертирует одну строку ответа backend. Порядок колонок сохраняется.
func MapRow(columns []string, values []any) Row {
	mapped := make([]any, len(values))
	for i, v := range values {
		mapped[i] = MapValue(v)
	}
	return Row{Columns: columns, Values: mapped}
}

// MapResults конвертирует весь результат запроса, сохраняя порядок строк.
func MapResults(columns []string, rows [][]any) []Row {
	out := make([]Row, 0, len(rows))
	for _, values := range rows {
		out = append(out, MapRow(columns, values))
	}
	return out
}
