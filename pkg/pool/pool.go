package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted - ни одно подключение не освободилось за acquire таймаут.
	// Вызывающий код может повторить попытку с backoff.
	ErrPoolExhausted = errors.New("pool: no connection available before acquire timeout")

	// ErrPoolClosed - операция после закрытия пула
	ErrPoolClosed = errors.New("pool: closed")
)

const (
	// DefaultSize - размер пула по умолчанию
	DefaultSize = 5

	// DefaultAcquireTimeout - таймаут ожидания свободного подключения
	DefaultAcquireTimeout = 30 * time.Second
)

// Config - конфигурация пула. Передается явно в конструктор,
// никакого скрытого глобального состояния.
type Config struct {
	// Size - емкость пула (число одновременно выданных подключений), >= 1
	Size int

	// AcquireTimeout - сколько Acquire блокируется до ErrPoolExhausted
	AcquireTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Size < 1 {
		c.Size = DefaultSize
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
}

// Pool владеет ограниченным набором подключений к backend.
// Инвариант: число одновременно выданных подключений не превышает Size;
// выданное подключение никогда не выдается двум вызывающим одновременно.
type Pool struct {
	connector Connector
	cfg       Config

	// slots - семафор емкости: токен дает право держать одно подключение
	slots chan struct{}

	mu     sync.Mutex
	idle   []*PooledConn
	lent   map[*PooledConn]struct{} // выданные и еще не возвращенные
	closed bool

	done chan struct{}
}

// New создает пул. Подключения создаются лениво на первом Acquire,
// сам New к backend не обращается.
func New(connector Connector, cfg Config) *Pool {
	cfg.applyDefaults()

	slots := make(chan struct{}, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		slots <- struct{}{}
	}

	return &Pool{
		connector: connector,
		cfg:       cfg,
		slots:     slots,
		lent:      make(map[*PooledConn]struct{}),
		done:      make(chan struct{}),
	}
}

// Size возвращает емкость пула
func (p *Pool) Size() int {
	return p.cfg.Size
}

// Available возвращает число свободных слотов (не выданных подключений)
func (p *Pool) Available() int {
	return len(p.slots)
}

// Acquire выдает подключение ровно одному вызывающему. Блокируется пока
// подключение не освободится; по истечении AcquireTimeout возвращает
// ErrPoolExhausted, после Close - ErrPoolClosed.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
	case <-timer.C:
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}

	// Слот получен: берем idle подключение или создаем новое
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots <- struct{}{}
		return nil, ErrPoolClosed
	}
	var pc *PooledConn
	if n := len(p.idle); n > 0 {
		pc = p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.lent[pc] = struct{}{}
	}
	p.mu.Unlock()

	if pc == nil {
		conn, err := p.connector.Connect(ctx)
		if err != nil {
			p.slots <- struct{}{}
			return nil, fmt.Errorf("failed to create connection: %w", err)
		}
		pc = &PooledConn{conn: conn}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.discard(pc)
			p.slots <- struct{}{}
			return nil, ErrPoolClosed
		}
		p.lent[pc] = struct{}{}
		p.mu.Unlock()
	}

	pc.lastUsed = time.Now()
	return pc, nil
}

// Release возвращает подключение в пул. Сломанное подключение откатывается
// и закрывается; замена будет создана лениво на следующем Acquire.
func (p *Pool) Release(pc *PooledConn) {
	if pc == nil {
		return
	}

	p.mu.Lock()
	delete(p.lent, pc)
	p.mu.Unlock()

	if pc.Broken() || p.isClosed() {
		p.discard(pc)
	} else {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.discard(pc)
		} else {
			p.idle = append(p.idle, pc)
			p.mu.Unlock()
		}
	}

	// Возврат токена емкости будит одного ожидающего Acquire
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Borrow выполняет fn на одолженном подключении с гарантированным Release
// на любом пути выхода (успех, ошибка, отмена). Ошибка соединения или
// отмена контекста помечает подключение сломанным перед возвратом;
// исходная ошибка fn отдается вызывающему как есть - пул не делает retry.
func (p *Pool) Borrow(ctx context.Context, fn func(ctx context.Context, conn Conn) error) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			pc.MarkBroken()
			p.Release(pc)
			panic(r)
		}
		p.Release(pc)
	}()

	err = fn(ctx, pc.Conn())
	if err != nil && (isConnectivityError(err) || ctx.Err() != nil) {
		pc.MarkBroken()
	}
	return err
}

// TestConnection синхронно проверяет достижимость backend на одолженном
// подключении. Возвращает успех/неуспех без ошибки - для health check'ов.
func (p *Pool) TestConnection(ctx context.Context) bool {
	err := p.Borrow(ctx, func(ctx context.Context, conn Conn) error {
		return conn.Ping(ctx)
	})
	return err == nil
}

// Close выбрасывает и закрывает все подключения - и свободные, и выданные
// невозвращенные. Последующие Acquire возвращают ErrPoolClosed.
// Повторный Close безопасен.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	lent := make([]*PooledConn, 0, len(p.lent))
	for pc := range p.lent {
		lent = append(lent, pc)
	}
	p.lent = nil
	p.mu.Unlock()

	close(p.done)

	var firstErr error
	for _, pc := range idle {
		if err := pc.conn.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Выданные подключения помечаются сломанными и закрываются здесь же;
	// их поздний Release увидит broken и выбросит уже закрытую сессию
	for _, pc := range lent {
		pc.MarkBroken()
		if err := pc.conn.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// discard откатывает и закрывает подключение вне пула.
// Rollback best-effort: сломанная сессия может его не принять.
func (p *Pool) discard(pc *PooledConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = pc.conn.Rollback(ctx)
	_ = pc.conn.Close(ctx)
}

// isConnectivityError распознает ошибки потери соединения.
// Такие ошибки означают что сессия в неизвестном состоянии и
// возвращать ее в idle набор нельзя.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
