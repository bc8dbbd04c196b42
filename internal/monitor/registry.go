package monitor

import (
	"context"
	"fmt"
	"sync"

	"trade_pilot/internal/models"
)

// Store — персист записей монитора. Вставка/удаление одной записи атомарны,
// List — полное перечисление на старте процесса.
type Store interface {
	Insert(ctx context.Context, rec models.MonitorRecord) error
	Delete(ctx context.Context, chatID int64, tradeID string) error
	List(ctx context.Context) ([]models.MonitorRecord, error)
}

// Registry — единственное разделяемое состояние: tradeID -> MonitorRecord
// в рамках чата. Передаётся явно (не синглтон), мутации сериализованы.
// Запись в память и в стор идут вместе; память — источник сигнала отмены
// для живых мониторов, стор — то, что переживает рестарт.
type Registry struct {
	mu      sync.Mutex
	records map[int64]map[string]models.MonitorRecord

	store Store // nil допустим: реестр работает только в памяти
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		records: make(map[int64]map[string]models.MonitorRecord),
		store:   store,
	}
}

// Load наполняет память из стора. Вызывается один раз на старте, до Resume.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	recs, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("registry load: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		if r.records[rec.ChatID] == nil {
			r.records[rec.ChatID] = make(map[string]models.MonitorRecord)
		}
		r.records[rec.ChatID][rec.TradeID] = rec
	}
	return nil
}

func (r *Registry) Insert(ctx context.Context, rec models.MonitorRecord) error {
	r.mu.Lock()
	if r.records[rec.ChatID] == nil {
		r.records[rec.ChatID] = make(map[string]models.MonitorRecord)
	}
	r.records[rec.ChatID][rec.TradeID] = rec
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Insert(ctx, rec); err != nil {
			// откат памяти: иначе Has/Snapshot до рестарта показывают
			// фантомный монитор, которого никто не запускал
			r.mu.Lock()
			if m := r.records[rec.ChatID]; m != nil {
				delete(m, rec.TradeID)
				if len(m) == 0 {
					delete(r.records, rec.ChatID)
				}
			}
			r.mu.Unlock()
			return fmt.Errorf("registry insert %s: %w", rec.TradeID, err)
		}
	}
	return nil
}

func (r *Registry) Delete(ctx context.Context, chatID int64, tradeID string) error {
	r.mu.Lock()
	if m := r.records[chatID]; m != nil {
		delete(m, tradeID)
		if len(m) == 0 {
			delete(r.records, chatID)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, chatID, tradeID); err != nil {
			return fmt.Errorf("registry delete %s: %w", tradeID, err)
		}
	}
	return nil
}

// Has — сигнал кооперативной отмены: монитор на каждом тике проверяет,
// что его запись ещё жива.
func (r *Registry) Has(chatID int64, tradeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.records[chatID]
	if !ok {
		return false
	}
	_, ok = m[tradeID]
	return ok
}

func (r *Registry) Get(chatID int64, tradeID string) (models.MonitorRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.records[chatID]
	if !ok {
		return models.MonitorRecord{}, false
	}
	rec, ok := m[tradeID]
	return rec, ok
}

// Snapshot — best-effort срез всех записей для отображения и резюмирования.
func (r *Registry) Snapshot() []models.MonitorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.MonitorRecord, 0)
	for _, m := range r.records {
		for _, rec := range m {
			out = append(out, rec)
		}
	}
	return out
}

// Clear выпиливает все записи чата (полный аварийный выход).
func (r *Registry) Clear(ctx context.Context, chatID int64) {
	r.mu.Lock()
	ids := make([]string, 0)
	for id := range r.records[chatID] {
		ids = append(ids, id)
	}
	delete(r.records, chatID)
	r.mu.Unlock()

	if r.store != nil {
		for _, id := range ids {
			_ = r.store.Delete(ctx, chatID, id)
		}
	}
}
