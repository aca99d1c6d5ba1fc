package catalog

import (
	"fmt"
	"strings"
)

// Column - описание одной колонки таблицы встроенного хранилища
type Column struct {
	Name         string
	Type         string // объявленный SQLite тип
	NotNull      bool
	PrimaryKey   bool
	DefaultValue string
	HasDefault   bool
}

// TableDescriptor - логическое описание таблицы: имя и упорядоченный список
// колонок. Неизменяем после построения в рамках одного прохода синхронизации.
type TableDescriptor struct {
	Name    string
	Columns []Column
}

// ColumnNames возвращает имена колонок в порядке каталога
func (d TableDescriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Fingerprint возвращает каноническую строку схемы таблицы.
// Используется для контрольной суммы: одинаковая схема дает одинаковый
// отпечаток независимо от того, когда и кем она прочитана.
func (d TableDescriptor) Fingerprint() string {
	var b strings.Builder
	b.WriteString(d.Name)
	for _, c := range d.Columns {
		fmt.Fprintf(&b, "|%s:%s:%t:%t:%s", c.Name, c.Type, c.NotNull, c.PrimaryKey, c.DefaultValue)
	}
	return b.String()
}
