// Package bridge - единая точка входа диалектного моста: принимает SQL
// в диалекте SQLite с позиционными параметрами, прозрачно выполняет его
// на PostgreSQL backend'е и возвращает нормализованные результаты.
//
// CREATE TABLE перехватывается и уходит в однотабличный путь синхронизатора,
// после чего выполняется и на backend - вызывающий код получает и таблицу
// для своего выражения, и backend, поддерживаемый в согласованном состоянии.
// Все остальное идет по конвейеру трансляция -> пул -> выполнение ->
// нормализация результатов, с гарантированным возвратом подключения
// на любом пути выхода.
package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/queuebridge/pgbridge/pkg/backend"
	"github.com/queuebridge/pgbridge/pkg/catalog"
	"github.com/queuebridge/pgbridge/pkg/pool"
	"github.com/queuebridge/pgbridge/pkg/syncer"
	"github.com/queuebridge/pgbridge/pkg/translator"
	"github.com/queuebridge/pgbridge/pkg/typemap"
)

// ResultRow - строка результата в SQLite-совместимом виде.
// Type alias для удобства вызывающего кода.
type ResultRow = typemap.Row

// Logf - необязательный приемник диагностики моста (предупреждения
// трансляции и прочее). nil = диагностика отбрасывается.
type Logf func(format string, args ...any)

// Config - конфигурация моста. Задается один раз при конструировании,
// живет до Close.
type Config struct {
	// SQLiteDSN - путь к файлу встроенного хранилища (или ":memory:").
	// Альтернативно приложение может передать уже открытое подключение
	// через SQLiteDB - тогда его закрытие остается за приложением.
	SQLiteDSN string
	SQLiteDB  *sql.DB

	// PostgresDSN - строка подключения к backend. Несет учетные данные,
	// в лог попадает только в редактированном виде.
	PostgresDSN string

	// Connector - переопределение фабрики подключений к backend.
	// nil = pgx подключения по PostgresDSN. Для тестов.
	Connector pool.Connector

	// PoolSize - емкость пула подключений (по умолчанию 5)
	PoolSize int

	// AcquireTimeout - таймаут ожидания свободного подключения
	AcquireTimeout time.Duration

	// ExecTimeout - таймаут выполнения одного выражения на backend.
	// По истечении операция отменяется, а подключение возвращается
	// в пул сломанным, не утекает.
	ExecTimeout time.Duration

	// OwnSchema разрешает синхронизатору разрушительное согласование
	// схемы backend (DROP перед CREATE). Явно, никогда неявно.
	OwnSchema bool

	// StateFile - checkpoint файл синхронизатора
	StateFile string

	// BatchSize - размер batch при копировании данных
	BatchSize int

	// Logf - приемник диагностики
	Logf Logf
}

// Bridge - мост SQLite диалекта на PostgreSQL backend.
// Безопасен для конкурентного использования из многих горутин.
type Bridge struct {
	catalog *catalog.Catalog
	pool    *pool.Pool
	syncer  *syncer.Syncer
	reg     *registry

	execTimeout time.Duration
	logf        Logf
}

// New конструирует мост: открывает каталог встроенного хранилища,
// создает пул подключений к backend и синхронизатор.
func New(cfg Config) (*Bridge, error) {
	var cat *catalog.Catalog
	switch {
	case cfg.SQLiteDB != nil:
		cat = catalog.Wrap(cfg.SQLiteDB)
	case cfg.SQLiteDSN != "":
		var err error
		cat, err = catalog.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded store: %w", err)
		}
	default:
		return nil, fmt.Errorf("either SQLiteDSN or SQLiteDB must be set")
	}

	connector := cfg.Connector
	if connector == nil {
		if cfg.PostgresDSN == "" {
			cat.Close()
			return nil, fmt.Errorf("PostgresDSN must be set")
		}
		connector = &backend.Connector{DSN: cfg.PostgresDSN}
	}

	p := pool.New(connector, pool.Config{
		Size:           cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
	})

	s, err := syncer.New(cat, p, syncer.Config{
		OwnSchema: cfg.OwnSchema,
		BatchSize: cfg.BatchSize,
		StateFile: cfg.StateFile,
	})
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to create syncer: %w", err)
	}

	return &Bridge{
		catalog:     cat,
		pool:        p,
		syncer:      s,
		reg:         newRegistry(),
		execTimeout: cfg.ExecTimeout,
		logf:        cfg.Logf,
	}, nil
}

// Query выполняет запрос на backend и возвращает нормализованные строки.
// Порядок колонок совпадает с projection list запроса, порядок строк -
// с ответом backend.
func (b *Bridge) Query(ctx context.Context, statement string, params ...any) ([]ResultRow, error) {
	if translator.IsCreateTable(statement) {
		if err := b.interceptCreateTable(ctx, statement); err != nil {
			return nil, err
		}
		return []ResultRow{}, nil
	}

	translated, err := b.translate(statement)
	if err != nil {
		return nil, err
	}

	var result []ResultRow
	err = b.withConn(ctx, func(ctx context.Context, conn pool.Conn) error {
		columns, rows, err := conn.FetchAll(ctx, translated.SQL, params)
		if err != nil {
			// Открытая транзакция откатывается до проброса ошибки;
			// текст ошибки backend сохраняется как есть
			_ = conn.Rollback(ctx)
			return err
		}
		result = typemap.MapResults(columns, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Exec выполняет DML выражение и возвращает число затронутых строк
func (b *Bridge) Exec(ctx context.Context, statement string, params ...any) (int64, error) {
	if translator.IsCreateTable(statement) {
		if err := b.interceptCreateTable(ctx, statement); err != nil {
			return 0, err
		}
		return 0, nil
	}

	translated, err := b.translate(statement)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = b.withConn(ctx, func(ctx context.Context, conn pool.Conn) error {
		n, err := conn.Execute(ctx, translated.SQL, params)
		if err != nil {
			_ = conn.Rollback(ctx)
			return err
		}
		affected = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// RegisterTable создает привязку встроенной таблицы к backend таблице.
// backendTable == "" означает одноименную таблицу; desc может быть nil,
// тогда дескриптор будет прочитан из встроенного каталога при наличии.
func (b *Bridge) RegisterTable(ctx context.Context, table, backendTable string, desc *catalog.TableDescriptor) (*Registration, error) {
	if desc == nil {
		if exists, err := b.catalog.TableExists(ctx, table); err == nil && exists {
			if d, err := b.catalog.Describe(ctx, table); err == nil {
				desc = &d
			}
		}
	}
	return b.reg.register(table, backendTable, desc)
}

// Sync запускает полный проход синхронизации схема+данные
func (b *Bridge) Sync(ctx context.Context) (*syncer.Report, error) {
	return b.syncer.Run(ctx)
}

// TestConnection проверяет достижимость backend без ошибки
func (b *Bridge) TestConnection(ctx context.Context) bool {
	return b.pool.TestConnection(ctx)
}

// Close закрывает пул и каталог. Последующие операции возвращают
// pool.ErrPoolClosed.
func (b *Bridge) Close(ctx context.Context) error {
	poolErr := b.pool.Close(ctx)
	catErr := b.catalog.Close()
	if poolErr != nil {
		return poolErr
	}
	return catErr
}

// interceptCreateTable - путь перехвата DDL: сначала однотабличная
// синхронизация (таблица уже может существовать во встроенном каталоге),
// затем обычное выполнение транслированного выражения на backend,
// затем регистрация привязки.
func (b *Bridge) interceptCreateTable(ctx context.Context, statement string) error {
	translated, err := translator.Translate(statement)
	if err != nil {
		return fmt.Errorf("failed to translate create table: %w", err)
	}

	table := translator.TableName(statement)
	if table != "" {
		if _, err := b.syncer.SyncTable(ctx, table); err != nil {
			return fmt.Errorf("failed to sync table %s: %w", table, err)
		}
	}

	err = b.withConn(ctx, func(ctx context.Context, conn pool.Conn) error {
		if _, err := conn.Execute(ctx, translated.SQL, nil); err != nil {
			_ = conn.Rollback(ctx)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if table != "" {
		if _, err := b.RegisterTable(ctx, table, "", nil); err != nil {
			return err
		}
	}
	return nil
}

// translate транслирует выражение и применяет привязку таблицы из реестра
func (b *Bridge) translate(statement string) (translator.TranslatedStatement, error) {
	translated, err := translator.Translate(statement)
	if err != nil {
		return translator.TranslatedStatement{}, err
	}

	if translated.Warning != "" && b.logf != nil {
		b.logf("translation warning: %s", translated.Warning)
	}

	// Привязка ищется на каждом выражении, затрагивающем таблицу
	if table := translator.TableName(statement); table != "" {
		if reg, ok := b.reg.lookup(table); ok && reg.BackendTable != table {
			translated.SQL = renameTable(translated.SQL, table, reg.BackendTable)
		}
	}

	return translated, nil
}

// withConn выполняет fn на одолженном подключении с таймаутом выполнения.
// По истечении таймаута операция отменяется, подключение помечается
// сломанным и выбрасывается из пула - см. pool.Borrow.
func (b *Bridge) withConn(ctx context.Context, fn func(ctx context.Context, conn pool.Conn) error) error {
	if b.execTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.execTimeout)
		defer cancel()
	}
	return b.pool.Borrow(ctx, fn)
}

// renameTable заменяет имя таблицы на backend имя по границам слов.
// Строковые литералы не затрагиваются: совпадение внутри литерала -
// это данные, не идентификатор.
func renameTable(sql, table, backendTable string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(table) + `\b`)
	quoted := quoteIdentPG(backendTable)
	return translator.RewriteOutsideLiterals(sql, func(seg string) string {
		return re.ReplaceAllString(seg, quoted)
	})
}

func quoteIdentPG(ident string) string {
	return `"` + ident + `"`
}
