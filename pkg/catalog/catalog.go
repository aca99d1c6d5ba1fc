// Package catalog читает каталог встроенного SQLite хранилища:
// список пользовательских таблиц, их CREATE выражения, метаданные колонок
// и данные. Пакет только читает - изменение встроенного хранилища
// не входит в обязанности моста.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const driverSqlite = "sqlite"

// Catalog - интерфейс чтения каталога встроенного хранилища
type Catalog struct {
	db    *sql.DB
	owned bool // true если db открыт нами и закрывается в Close
}

// Open открывает встроенное хранилище по DSN (путь к файлу или ":memory:")
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open(driverSqlite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Catalog{db: db, owned: true}, nil
}

// Wrap оборачивает уже открытое приложением подключение.
// Закрытие такого подключения остается за вызывающим кодом.
func Wrap(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Close закрывает подключение, если оно было открыто через Open
func (c *Catalog) Close() error {
	if c.owned && c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DB возвращает *sql.DB для прямого доступа
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// ListUserTables возвращает список пользовательских таблиц.
// Системные таблицы (sqlite_sequence и прочие sqlite_*) исключаются.
func (c *Catalog) ListUserTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type='table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// CreateStatement возвращает полное CREATE TABLE выражение таблицы,
// как его хранит sqlite_master.
func (c *Catalog) CreateStatement(ctx context.Context, tableName string) (string, error) {
	query := `
		SELECT sql
		FROM sqlite_master
		WHERE type='table' AND name=?
	`

	var stmt sql.NullString
	err := c.db.QueryRowContext(ctx, query, tableName).Scan(&stmt)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("table %s not found", tableName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read create statement: %w", err)
	}
	if !stmt.Valid || stmt.String == "" {
		return "", fmt.Errorf("table %s has no create statement", tableName)
	}

	return stmt.String, nil
}

// TableExists проверяет существование таблицы
func (c *Catalog) TableExists(ctx context.Context, tableName string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM sqlite_master
		WHERE type='table' AND name=?
	`

	var count int
	if err := c.db.QueryRowContext(ctx, query, tableName).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// Describe читает метаданные колонок таблицы через PRAGMA table_info.
// Колонки возвращаются в порядке каталога (cid).
func (c *Catalog) Describe(ctx context.Context, tableName string) (TableDescriptor, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName))

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return TableDescriptor{}, fmt.Errorf("failed to get table info: %w", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return TableDescriptor{}, fmt.Errorf("failed to scan column info: %w", err)
		}

		columns = append(columns, Column{
			Name:         name,
			Type:         dataType,
			NotNull:      notNull == 1,
			PrimaryKey:   pk > 0,
			DefaultValue: dfltValue.String,
			HasDefault:   dfltValue.Valid,
		})
	}

	if err := rows.Err(); err != nil {
		return TableDescriptor{}, fmt.Errorf("error iterating columns: %w", err)
	}

	if len(columns) == 0 {
		return TableDescriptor{}, fmt.Errorf("table %s not found or has no columns", tableName)
	}

	return TableDescriptor{Name: tableName, Columns: columns}, nil
}

// ReadAllRows читает все строки таблицы в порядке колонок дескриптора.
// Значения возвращаются в типах драйвера (int64, float64, string, []byte, nil).
func (c *Catalog) ReadAllRows(ctx context.Context, desc TableDescriptor) ([][]any, error) {
	names := desc.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(desc.Name))

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values := make([]any, len(names))
		scanArgs := make([]any, len(names))
		for i := range values {
			scanArgs[i] = &values[i]
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		out = append(out, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading rows: %w", err)
	}

	return out, nil
}

// quoteIdent заключает идентификатор в двойные кавычки,
// внутренние кавычки удваиваются.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
