package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/queuebridge/pgbridge/pkg/catalog"
	"github.com/queuebridge/pgbridge/pkg/pool"
)

// fakeBackendConn имитирует backend: записывает выполненные выражения,
// считает вставленные группы значений с учетом транзакций и отвечает
// на COUNT(*) реальным (или настроенным) числом строк
type fakeBackendConn struct {
	mu           sync.Mutex
	executed     []string
	failContains string // Execute с этой подстрокой завершается ошибкой
	failOnInsert int    // номер INSERT, который упадет (однократно), 0 = никогда
	insertCalls  int
	rowCount     map[string]int64 // явные ответы на COUNT(*), перекрывают committed
	inTxn        bool
	committed    map[string]int64 // зафиксированные группы значений по таблицам
	pending      map[string]int64 // вставлено в открытой транзакции
}

func newFakeBackendConn() *fakeBackendConn {
	return &fakeBackendConn{
		rowCount:  make(map[string]int64),
		committed: make(map[string]int64),
		pending:   make(map[string]int64),
	}
}

// quotedIdent извлекает первый идентификатор в двойных кавычках
func quotedIdent(sql string) string {
	parts := strings.SplitN(sql, `"`, 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

func (c *fakeBackendConn) Execute(ctx context.Context, sql string, args []any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failContains != "" && strings.Contains(sql, c.failContains) {
		return 0, fmt.Errorf("backend rejected statement")
	}

	upper := strings.ToUpper(strings.TrimSpace(sql))
	if strings.HasPrefix(upper, "INSERT") {
		c.insertCalls++
		if c.failOnInsert > 0 && c.insertCalls == c.failOnInsert {
			c.failOnInsert = 0
			return 0, fmt.Errorf("connection reset during batch")
		}
	}

	c.executed = append(c.executed, sql)

	switch {
	case strings.HasPrefix(upper, "BEGIN"):
		c.inTxn = true
	case strings.HasPrefix(upper, "INSERT"):
		// Каждая группа значений начинается с "($"
		groups := int64(strings.Count(sql, "($"))
		table := quotedIdent(sql)
		if c.inTxn {
			c.pending[table] += groups
		} else {
			c.committed[table] += groups
		}
		return groups, nil
	}
	return 0, nil
}

func (c *fakeBackendConn) FetchAll(ctx context.Context, sql string, args []any) ([]string, [][]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.Contains(strings.ToUpper(sql), "COUNT(*)") {
		table := quotedIdent(sql)
		if count, ok := c.rowCount[table]; ok {
			return []string{"count"}, [][]any{{count}}, nil
		}
		return []string{"count"}, [][]any{{c.committed[table]}}, nil
	}
	return nil, nil, nil
}

func (c *fakeBackendConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for table, groups := range c.pending {
		c.committed[table] += groups
	}
	c.pending = make(map[string]int64)
	c.inTxn = false
	return nil
}

func (c *fakeBackendConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[string]int64)
	c.inTxn = false
	return nil
}

func (c *fakeBackendConn) Ping(ctx context.Context) error  { return nil }
func (c *fakeBackendConn) Close(ctx context.Context) error { return nil }

// statements возвращает выполненные выражения с данным префиксом
func (c *fakeBackendConn) statements(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, s := range c.executed {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), prefix) {
			out = append(out, s)
		}
	}
	return out
}

type fakeBackendConnector struct {
	conn *fakeBackendConn
}

func (c *fakeBackendConnector) Connect(ctx context.Context) (pool.Conn, error) {
	return c.conn, nil
}

// newTestSyncer собирает синхронизатор на in-memory каталоге и fake backend
func newTestSyncer(t *testing.T, cfg Config) (*Syncer, *fakeBackendConn) {
	t.Helper()

	cat, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, active BOOLEAN)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)`,
		`INSERT INTO users (id, name, active) VALUES (1, 'alice', 1), (2, 'bob', 0), (3, 'carol', 1)`,
	}
	for _, s := range stmts {
		if _, err := cat.DB().Exec(s); err != nil {
			t.Fatalf("Failed to prepare schema: %v", err)
		}
	}

	conn := newFakeBackendConn()
	p := pool.New(&fakeBackendConnector{conn: conn}, pool.Config{Size: 2})
	t.Cleanup(func() { p.Close(context.Background()) })

	s, err := New(cat, p, cfg)
	if err != nil {
		t.Fatalf("Failed to create syncer: %v", err)
	}
	return s, conn
}

// Тест проверяет полный проход: схема создана, данные скопированы
func TestRunPass(t *testing.T) {
	s, conn := newTestSyncer(t, Config{})

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Tables) != 2 {
		t.Fatalf("expected 2 table results, got %d", len(report.Tables))
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("unexpected failures: %v", report.Failed())
	}

	// Каталог отдает таблицы в алфавитном порядке
	orders, users := report.Tables[0], report.Tables[1]
	if orders.Table != "orders" || users.Table != "users" {
		t.Fatalf("unexpected order: %v, %v", orders.Table, users.Table)
	}

	if !users.Created || users.RowsCopied != 3 {
		t.Errorf("users: %+v", users)
	}
	if !orders.Created || orders.RowsCopied != 0 {
		t.Errorf("orders: %+v", orders)
	}

	// DDL идемпотентен и в диалекте PostgreSQL
	creates := conn.statements("CREATE TABLE")
	if len(creates) != 2 {
		t.Fatalf("expected 2 CREATE TABLE, got %v", creates)
	}
	for _, c := range creates {
		if !strings.Contains(c, "IF NOT EXISTS") {
			t.Errorf("DDL is not idempotent: %q", c)
		}
	}
	if !strings.Contains(creates[1], "SMALLINT") {
		t.Errorf("BOOLEAN not mapped in %q", creates[1])
	}

	inserts := conn.statements("INSERT")
	if len(inserts) != 1 {
		t.Fatalf("expected 1 batch insert, got %v", inserts)
	}
	if !strings.Contains(inserts[0], "($1, $2, $3), ($4, $5, $6), ($7, $8, $9)") {
		t.Errorf("unexpected batch layout: %q", inserts[0])
	}
}

// Тест проверяет идемпотентность: повторный проход не копирует данные
func TestRunPassIdempotent(t *testing.T) {
	s, conn := newTestSyncer(t, Config{})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	firstInserts := len(conn.statements("INSERT"))

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	for _, tr := range report.Tables {
		if tr.Table == "users" && !tr.CopySkipped {
			t.Errorf("expected copy skip on unchanged schema: %+v", tr)
		}
	}
	if got := len(conn.statements("INSERT")); got != firstInserts {
		t.Errorf("second pass inserted data again: %d -> %d inserts", firstInserts, got)
	}
}

// Тест проверяет разбиение копирования на batch'и
func TestCopyDataBatching(t *testing.T) {
	s, conn := newTestSyncer(t, Config{BatchSize: 2})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 3 строки users при BatchSize=2 дают 2 INSERT
	inserts := conn.statements("INSERT")
	if len(inserts) != 2 {
		t.Fatalf("expected 2 batches, got %d: %v", len(inserts), inserts)
	}
	if strings.Count(inserts[0], "($") != 2 || strings.Count(inserts[1], "($") != 1 {
		t.Errorf("unexpected batch sizes: %v", inserts)
	}
}

// Тест проверяет DROP TABLE только при явном владении схемой
func TestOwnSchemaDrop(t *testing.T) {
	s, conn := newTestSyncer(t, Config{OwnSchema: true})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(conn.statements("DROP TABLE")) != 2 {
		t.Errorf("expected DROP TABLE per table with OwnSchema, got %v", conn.statements("DROP TABLE"))
	}

	s2, conn2 := newTestSyncer(t, Config{})
	if _, err := s2.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(conn2.statements("DROP TABLE")) != 0 {
		t.Errorf("DROP TABLE without OwnSchema: %v", conn2.statements("DROP TABLE"))
	}
}

// Тест проверяет изоляцию ошибок: сбой одной таблицы не прерывает проход
func TestErrorIsolation(t *testing.T) {
	s, conn := newTestSyncer(t, Config{})
	conn.failContains = `"orders"`

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Table != "orders" {
		t.Fatalf("expected orders to fail, got %v", failed)
	}

	for _, tr := range report.Tables {
		if tr.Table == "users" && tr.Err != nil {
			t.Errorf("users should have synced despite orders failure: %v", tr.Err)
		}
	}
}

// Тест проверяет охрану от дублей при потерянном состоянии:
// backend уже содержит строки - копирование пропускается
func TestLostStateRowCountGuard(t *testing.T) {
	s, conn := newTestSyncer(t, Config{})
	conn.rowCount["users"] = 3

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, tr := range report.Tables {
		if tr.Table == "users" {
			if !tr.CopySkipped {
				t.Errorf("expected copy skip when backend already has rows: %+v", tr)
			}
			if tr.RowsCopied != 0 {
				t.Errorf("rows copied despite guard: %+v", tr)
			}
		}
	}
}

// Тест проверяет SyncTable для отсутствующей во встроенном каталоге таблицы
func TestSyncTableMissing(t *testing.T) {
	s, _ := newTestSyncer(t, Config{})

	result, err := s.SyncTable(context.Background(), "missing")
	if err != nil {
		t.Fatalf("SyncTable failed: %v", err)
	}
	if result.Created || result.RowsCopied != 0 {
		t.Errorf("expected no-op result, got %+v", result)
	}
}

// Тест проверяет синхронизацию одной таблицы
func TestSyncTable(t *testing.T) {
	s, conn := newTestSyncer(t, Config{})

	result, err := s.SyncTable(context.Background(), "users")
	if err != nil {
		t.Fatalf("SyncTable failed: %v", err)
	}
	if !result.Created || result.RowsCopied != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(conn.statements("CREATE TABLE")) != 1 {
		t.Errorf("expected exactly one CREATE TABLE, got %v", conn.statements("CREATE TABLE"))
	}
}

// Тест проверяет, что сбой посреди копирования не оставляет дублей:
// неудачная транзакция откатывается, повторный проход копирует данные заново
func TestFailedCopyRetryNoDuplicates(t *testing.T) {
	s, conn := newTestSyncer(t, Config{BatchSize: 2})
	conn.failOnInsert = 2

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Table != "users" {
		t.Fatalf("expected users to fail mid-copy, got %v", failed)
	}
	if got := conn.committed["users"]; got != 0 {
		t.Fatalf("partial copy survived rollback: %d rows committed", got)
	}

	report, err = s.Run(context.Background())
	if err != nil {
		t.Fatalf("retry Run failed: %v", err)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("retry failed: %v", report.Failed())
	}
	if got := conn.committed["users"]; got != 3 {
		t.Errorf("expected exactly 3 rows after retry, got %d", got)
	}
}

// Тест проверяет объединение конкурентных триггеров в один проход
func TestConcurrentRunsCoalesce(t *testing.T) {
	s, _ := newTestSyncer(t, Config{})

	const n = 8
	reports := make([]*Report, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Run(context.Background())
			if err != nil {
				t.Errorf("Run failed: %v", err)
				return
			}
			reports[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range reports {
		if r == nil {
			t.Fatal("missing report")
		}
		if len(r.Failed()) != 0 {
			t.Errorf("unexpected failures: %v", r.Failed())
		}
	}
}
