package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_pilot/internal/models"
	"trade_pilot/internal/notify"
)

// Manager держит хэндлы живых мониторов: tradeID -> cancel. Жизнь горутины
// явно привязана к записи реестра — запуск вставляет запись, завершение её
// удаляет, а хэндл даёт жёсткую остановку на shutdown.
type Manager struct {
	reg *Registry
	ex  Exchange
	n   notify.Notifier

	interval time.Duration

	mu      sync.Mutex
	handles map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(reg *Registry, ex Exchange, n notify.Notifier, interval time.Duration) *Manager {
	return &Manager{
		reg:      reg,
		ex:       ex,
		n:        n,
		interval: interval,
		handles:  make(map[string]context.CancelFunc),
	}
}

// Spawn вставляет запись в реестр и запускает монитор (если ещё не запущен).
func (m *Manager) Spawn(ctx context.Context, rec models.MonitorRecord) error {
	m.mu.Lock()
	if _, running := m.handles[rec.TradeID]; running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running for trade %s", rec.TradeID)
	}
	m.mu.Unlock()

	if err := m.reg.Insert(ctx, rec); err != nil {
		return err
	}
	return m.spawnLoop(ctx, rec)
}

// Resume запускает монитор для записи, уже лежащей в реестре (рестарт).
func (m *Manager) Resume(ctx context.Context, rec models.MonitorRecord) error {
	m.mu.Lock()
	if _, running := m.handles[rec.TradeID]; running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running for trade %s", rec.TradeID)
	}
	m.mu.Unlock()

	return m.spawnLoop(ctx, rec)
}

func (m *Manager) spawnLoop(parent context.Context, rec models.MonitorRecord) error {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	m.handles[rec.TradeID] = cancel
	m.mu.Unlock()

	mon := New(rec, m.reg, m.ex, m.n, m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		mon.Run(ctx)

		m.mu.Lock()
		delete(m.handles, rec.TradeID)
		m.mu.Unlock()
		cancel()
	}()
	return nil
}

// Running — число живых мониторов (для health-строк).
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// StopAll гасит все мониторы и ждёт их завершения. Записи реестра при этом
// НЕ трогаем: после рестарта мониторы поднимутся резюмированием.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for _, cancel := range m.handles {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
