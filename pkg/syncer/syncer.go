// Package syncer синхронизирует схему и данные из встроенного SQLite
// хранилища в PostgreSQL backend, когда встроенная сторона - источник истины
// (например, при первом запуске моста).
//
// Проход: чтение каталога -> конвертация каждой таблицы -> согласование
// схемы backend -> копирование данных по таблицам. Проход best effort:
// сбой одной таблицы записывается в отчет и не прерывает остальные.
// Повторный проход по неизменной схеме - no-op для backend: создание
// идемпотентно (IF NOT EXISTS), а копирование охраняется контрольной
// суммой схемы в checkpoint файле.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/queuebridge/pgbridge/pkg/catalog"
	"github.com/queuebridge/pgbridge/pkg/pool"
	"github.com/queuebridge/pgbridge/pkg/translator"
)

// DefaultBatchSize - число строк в одном batch INSERT при копировании
const DefaultBatchSize = 500

// Config - конфигурация синхронизатора
type Config struct {
	// OwnSchema - синхронизатор владеет схемой backend безраздельно.
	// Только при true согласование может выполнять DROP TABLE:
	// операция разрушительна и включается явно, никогда неявно.
	OwnSchema bool

	// BatchSize - размер batch при копировании данных
	BatchSize int

	// StateFile - путь к JSON checkpoint файлу. Пустая строка -
	// состояние только в памяти.
	StateFile string
}

// TableResult - результат синхронизации одной таблицы
type TableResult struct {
	Table       string
	Created     bool
	RowsCopied  int64
	CopySkipped bool // данные уже были скопированы ранее
	Err         error
}

// Report - отчет одного прохода синхронизации
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Tables     []TableResult
}

// Failed возвращает таблицы, синхронизация которых завершилась ошибкой
func (r *Report) Failed() []TableResult {
	var failed []TableResult
	for _, t := range r.Tables {
		if t.Err != nil {
			failed = append(failed, t)
		}
	}
	return failed
}

// Syncer выполняет проходы синхронизации. Безопасен для конкурентных
// вызовов: проход не может идти параллельно с самим собой - конкурентные
// триггеры объединяются в один проход и разделяют его отчет.
type Syncer struct {
	catalog *catalog.Catalog
	pool    *pool.Pool
	cfg     Config
	state   *StateManager

	group singleflight.Group
}

// New создает синхронизатор и загружает checkpoint состояние
func New(cat *catalog.Catalog, p *pool.Pool, cfg Config) (*Syncer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	state, err := NewStateManager(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	return &Syncer{
		catalog: cat,
		pool:    p,
		cfg:     cfg,
		state:   state,
	}, nil
}

// Run выполняет полный проход синхронизации. Конкурентные вызовы
// объединяются: второй триггер во время идущего прохода ждет его
// завершения и получает тот же отчет.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	v, err, _ := s.group.Do("pass", func() (any, error) {
		return s.runPass(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Report), nil
}

// SyncTable синхронизирует одну таблицу (путь перехвата CREATE TABLE
// в фасаде). Таблица, которой нет во встроенном каталоге, - no-op.
func (s *Syncer) SyncTable(ctx context.Context, tableName string) (*TableResult, error) {
	exists, err := s.catalog.TableExists(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to check embedded catalog: %w", err)
	}
	if !exists {
		return &TableResult{Table: tableName, CopySkipped: true}, nil
	}

	result := s.syncOneTable(ctx, tableName)
	if result.Err != nil {
		return &result, result.Err
	}
	return &result, nil
}

// runPass - один проход машины состояний
func (s *Syncer) runPass(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now()}
	defer func() { report.FinishedAt = time.Now() }()

	// ReadEmbeddedCatalog
	tables, err := s.catalog.ListUserTables(ctx)
	if err != nil {
		// Невозможность прочитать каталог фатальна для прохода -
		// без списка таблиц продолжать нечего
		return nil, fmt.Errorf("failed to read embedded catalog: %w", err)
	}

	// Пустой каталог - проход сразу завершен (Idle до следующего триггера)
	if len(tables) == 0 {
		return report, nil
	}

	// ConvertEachTable -> ReconcileBackendSchema -> CopyData, по таблицам.
	// Таблицы независимы: ошибка одной не прерывает остальные.
	for _, table := range tables {
		result := s.syncOneTable(ctx, table)
		report.Tables = append(report.Tables, result)

		if result.Err != nil {
			_ = s.state.UpdateError(table, result.Err)
		}
	}

	return report, nil
}

// syncOneTable конвертирует, согласует и копирует одну таблицу
func (s *Syncer) syncOneTable(ctx context.Context, table string) TableResult {
	result := TableResult{Table: table}

	// Читаем CREATE выражение и метаданные колонок
	createStmt, err := s.catalog.CreateStatement(ctx, table)
	if err != nil {
		result.Err = fmt.Errorf("failed to read create statement: %w", err)
		return result
	}

	desc, err := s.catalog.Describe(ctx, table)
	if err != nil {
		result.Err = fmt.Errorf("failed to describe table: %w", err)
		return result
	}

	// ConvertEachTable: сбой конвертации - пропуск таблицы, не прохода
	translated, err := translator.Translate(createStmt)
	if err != nil {
		result.Err = fmt.Errorf("schema conversion failed: %w", err)
		return result
	}
	if translated.Category != translator.CategoryCreateTable {
		result.Err = fmt.Errorf("schema conversion failed: statement for %s is not CREATE TABLE", table)
		return result
	}

	checksum := SchemaChecksum(desc.Fingerprint())
	prev, hasPrev := s.state.Get(table)
	// Маркер "данные скопированы" - непустая контрольная сумма.
	// Запись с одной лишь ошибкой прошлого прохода маркером не является.
	hasCopy := hasPrev && prev.SchemaChecksum != ""
	schemaChanged := hasCopy && prev.SchemaChecksum != checksum

	err = s.pool.Borrow(ctx, func(ctx context.Context, conn pool.Conn) error {
		// ReconcileBackendSchema: DROP только при явном владении схемой
		if s.cfg.OwnSchema && (schemaChanged || !hasCopy) {
			dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(table))
			if _, err := conn.Execute(ctx, dropSQL, nil); err != nil {
				return fmt.Errorf("failed to drop backend table: %w", err)
			}
		}

		if _, err := conn.Execute(ctx, translated.SQL, nil); err != nil {
			return fmt.Errorf("failed to create backend table: %w", err)
		}
		result.Created = true

		// CopyData: охрана от дублей. Контрольная сумма схемы не
		// изменилась и копия уже была - пропускаем вставку.
		if hasCopy && prev.SchemaChecksum == checksum {
			result.CopySkipped = true
			return nil
		}

		// Копии не было (или состояние потеряно), но backend уже
		// содержит строки - повторная вставка продублировала бы данные
		if !hasCopy && !s.cfg.OwnSchema {
			count, err := s.backendRowCount(ctx, conn, table)
			if err == nil && count > 0 {
				result.CopySkipped = true
				return nil
			}
		}

		copied, err := s.copyData(ctx, conn, desc)
		if err != nil {
			return fmt.Errorf("failed to copy data: %w", err)
		}
		result.RowsCopied = copied
		return nil
	})

	if err != nil {
		result.Err = err
		return result
	}

	if !result.CopySkipped || !hasCopy {
		if err := s.state.Update(table, checksum, result.RowsCopied); err != nil {
			result.Err = fmt.Errorf("failed to save sync state: %w", err)
		}
	}

	return result
}

// copyData читает все строки встроенной таблицы и вставляет их в backend
// batch'ами, сохраняя порядок колонок дескриптора. Все batch'и одной
// таблицы идут в одной транзакции: сбой на любом из них откатывает
// копию целиком, повторный проход не оставляет дублей.
func (s *Syncer) copyData(ctx context.Context, conn pool.Conn, desc catalog.TableDescriptor) (int64, error) {
	rows, err := s.catalog.ReadAllRows(ctx, desc)
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if _, err := conn.Execute(ctx, "BEGIN", nil); err != nil {
		return 0, fmt.Errorf("failed to begin copy transaction: %w", err)
	}

	names := desc.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	insertHead := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		quoteIdent(desc.Name), strings.Join(quoted, ", "))

	var total int64
	for start := 0; start < len(rows); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		var sb strings.Builder
		sb.WriteString(insertHead)
		args := make([]any, 0, len(batch)*len(names))

		for r, row := range batch {
			if r > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for c := range names {
				if c > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+1)
				args = append(args, row[c])
			}
			sb.WriteByte(')')
		}

		affected, err := conn.Execute(ctx, sb.String(), args)
		if err != nil {
			_ = conn.Rollback(ctx)
			return 0, fmt.Errorf("batch insert failed: %w", err)
		}
		total += affected
	}

	if err := conn.Commit(ctx); err != nil {
		_ = conn.Rollback(ctx)
		return 0, fmt.Errorf("failed to commit copy: %w", err)
	}

	return total, nil
}

// backendRowCount возвращает число строк таблицы на backend
func (s *Syncer) backendRowCount(ctx context.Context, conn pool.Conn, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	_, rows, err := conn.FetchAll(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, fmt.Errorf("empty count result")
	}

	switch v := rows[0][0].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

// quoteIdent заключает идентификатор PostgreSQL в двойные кавычки
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
