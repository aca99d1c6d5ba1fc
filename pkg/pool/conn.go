// Package pool реализует ограниченный пул живых подключений к backend СУБД.
//
// Пул - единственный разделяемый изменяемый ресурс моста: checkout/check-in
// взаимоисключающие, Acquire блокируется (не крутится в цикле) пока
// подключение не освободится или не истечет таймаут. Сломанные подключения
// откатываются и выбрасываются; замена создается лениво на следующем
// Acquire, чтобы не устраивать шторм подключений во время сбоя backend.
package pool

import (
	"context"
	"sync/atomic"
	"time"
)

// Conn - одна живая сессия с backend СУБД.
// Контракт backend execution interface: выполнение с позиционными
// параметрами, выборка всех строк с именами колонок, commit, rollback, close.
type Conn interface {
	// Execute выполняет выражение и возвращает число затронутых строк
	Execute(ctx context.Context, sql string, args []any) (int64, error)

	// FetchAll выполняет запрос и возвращает имена колонок и все строки
	// в порядке, который вернул backend
	FetchAll(ctx context.Context, sql string, args []any) (columns []string, rows [][]any, err error)

	// Commit фиксирует открытую транзакцию
	Commit(ctx context.Context) error

	// Rollback откатывает открытую транзакцию
	Rollback(ctx context.Context) error

	// Ping проверяет что сессия жива
	Ping(ctx context.Context) error

	// Close закрывает сессию
	Close(ctx context.Context) error
}

// Connector создает новые подключения для пула
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// PooledConn - подключение, выданное пулом ровно одному вызывающему.
// Пока подключение выдано, пул им не владеет; владение возвращается
// через Release.
type PooledConn struct {
	conn     Conn
	broken   atomic.Bool
	lastUsed time.Time
}

// Conn возвращает нижележащую сессию
func (pc *PooledConn) Conn() Conn {
	return pc.conn
}

// MarkBroken помечает подключение сломанным. При возврате в пул оно
// будет откачено и закрыто вместо возврата в idle набор.
func (pc *PooledConn) MarkBroken() {
	pc.broken.Store(true)
}

// Broken сообщает, помечено ли подключение сломанным
func (pc *PooledConn) Broken() bool {
	return pc.broken.Load()
}

// LastUsed возвращает момент последней выдачи подключения
func (pc *PooledConn) LastUsed() time.Time {
	return pc.lastUsed
}
