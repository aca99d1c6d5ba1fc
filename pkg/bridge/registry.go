package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/queuebridge/pgbridge/pkg/catalog"
)

// ErrDuplicateRegistration - таблица зарегистрирована второй раз с другим
// backend именем. Это ошибка программирования вызывающего кода:
// регистрация никогда не перезаписывается молча.
var ErrDuplicateRegistration = errors.New("bridge: table already registered with a different backend table")

// Registration - логическая привязка встроенной таблицы к backend таблице
// с кешированным дескриптором схемы.
type Registration struct {
	Table        string
	BackendTable string
	Descriptor   *catalog.TableDescriptor
	RegisteredAt time.Time
}

// registry хранит привязки таблиц. Создается при первом мосте таблицы,
// ищется на каждом последующем выражении, затрагивающем таблицу.
type registry struct {
	mu     sync.RWMutex
	tables map[string]*Registration
}

func newRegistry() *registry {
	return &registry{tables: make(map[string]*Registration)}
}

// register создает привязку. Повторная регистрация с тем же backend
// именем возвращает существующую; с другим - ErrDuplicateRegistration.
func (r *registry) register(table, backendTable string, desc *catalog.TableDescriptor) (*Registration, error) {
	if backendTable == "" {
		backendTable = table
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tables[table]; ok {
		if existing.BackendTable != backendTable {
			return nil, fmt.Errorf("%w: %s is mapped to %s, attempted remap to %s",
				ErrDuplicateRegistration, table, existing.BackendTable, backendTable)
		}
		if existing.Descriptor == nil && desc != nil {
			existing.Descriptor = desc
		}
		return existing, nil
	}

	reg := &Registration{
		Table:        table,
		BackendTable: backendTable,
		Descriptor:   desc,
		RegisteredAt: time.Now(),
	}
	r.tables[table] = reg
	return reg, nil
}

// lookup возвращает привязку таблицы, если она есть
func (r *registry) lookup(table string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tables[table]
	return reg, ok
}
