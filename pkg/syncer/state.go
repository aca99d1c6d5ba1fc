package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// TableState - состояние синхронизации одной таблицы.
// SchemaChecksum - отпечаток схемы на момент копирования данных:
// повторный проход с неизменной схемой не вставляет данные второй раз.
type TableState struct {
	TableName      string    `json:"table_name"`
	SchemaChecksum string    `json:"schema_checksum"`
	RowsCopied     int64     `json:"rows_copied"`
	SyncedAt       time.Time `json:"synced_at"`
	LastError      string    `json:"last_error,omitempty"`
}

// StateManager управляет состоянием синхронизации для нескольких таблиц.
// Состояние хранится в JSON файле и переживает перезапуск процесса -
// это и есть маркер "данные этой таблицы уже скопированы".
type StateManager struct {
	mu        sync.RWMutex
	states    map[string]*TableState // table_name -> state
	stateFile string                 // пустая строка = только в памяти
}

// NewStateManager создает менеджер состояния. Если файл существует,
// состояние загружается из него. Пустой путь дает in-memory состояние
// (полезно для тестов и одноразовых проходов).
func NewStateManager(stateFile string) (*StateManager, error) {
	sm := &StateManager{
		states:    make(map[string]*TableState),
		stateFile: stateFile,
	}

	if stateFile != "" {
		if _, err := os.Stat(stateFile); err == nil {
			if err := sm.load(); err != nil {
				return nil, fmt.Errorf("failed to load state: %w", err)
			}
		}
	}

	return sm, nil
}

// Get возвращает копию состояния таблицы; ok=false если таблица
// еще не синхронизировалась.
func (sm *StateManager) Get(tableName string) (TableState, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	state, exists := sm.states[tableName]
	if !exists {
		return TableState{TableName: tableName}, false
	}
	return *state, true
}

// Update записывает состояние успешной синхронизации таблицы
func (sm *StateManager) Update(tableName, schemaChecksum string, rowsCopied int64) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.states[tableName] = &TableState{
		TableName:      tableName,
		SchemaChecksum: schemaChecksum,
		RowsCopied:     rowsCopied,
		SyncedAt:       time.Now(),
	}

	return sm.saveLocked()
}

// UpdateError записывает ошибку синхронизации таблицы,
// не трогая маркер скопированных данных.
func (sm *StateManager) UpdateError(tableName string, syncErr error) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, exists := sm.states[tableName]
	if !exists {
		state = &TableState{TableName: tableName}
		sm.states[tableName] = state
	}
	state.LastError = syncErr.Error()

	return sm.saveLocked()
}

// load читает состояние из файла
func (sm *StateManager) load() error {
	data, err := os.ReadFile(sm.stateFile)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := json.Unmarshal(data, &sm.states); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	return nil
}

// saveLocked сохраняет состояние в файл; вызывается под mu
func (sm *StateManager) saveLocked() error {
	if sm.stateFile == "" {
		return nil
	}

	data, err := json.MarshalIndent(sm.states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(sm.stateFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// SchemaChecksum считает контрольную сумму канонического отпечатка схемы
func SchemaChecksum(fingerprint string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(fingerprint))
}
