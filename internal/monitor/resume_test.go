package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeAllDropsMalformed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	reg := NewRegistry(store)

	bad := testRecord(7, "bad")
	bad.InitialQty = 0 // обязательное поле потеряно
	require.NoError(t, reg.Insert(ctx, bad))

	ex := &fakeExchange{sizes: []float64{1.0}, avgEntry: 50000}
	n := &fakeNotifier{}
	mgr := NewManager(reg, ex, n, testInterval)

	mgr.ResumeAll(ctx)

	assert.Equal(t, 0, mgr.Running())
	assert.False(t, reg.Has(7, "bad"))
	assert.NotContains(t, store.recs, "bad")
}

func TestResumeAllDropsOnReadFailure(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Insert(ctx, testRecord(7, "t1")))

	ex := &fakeExchange{sizes: []float64{0}, sizeErr: errors.New("dial tcp: timeout")}
	n := &fakeNotifier{}
	mgr := NewManager(reg, ex, n, testInterval)

	mgr.ResumeAll(ctx)

	// без живых данных резюмировать нельзя — запись удалена, юзер уведомлён
	assert.Equal(t, 0, mgr.Running())
	assert.False(t, reg.Has(7, "t1"))
	assert.NotEmpty(t, n.all())
}

func TestResumeAllDropsFlatPosition(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Insert(ctx, testRecord(7, "t1")))

	ex := &fakeExchange{sizes: []float64{0}, avgEntry: 50000}
	n := &fakeNotifier{}
	mgr := NewManager(reg, ex, n, testInterval)

	mgr.ResumeAll(ctx)

	// TP1 случился, пока процесс лежал: запись убираем, действия
	// разрешения на устаревшем состоянии не гоняем
	assert.Equal(t, 0, mgr.Running())
	assert.False(t, reg.Has(7, "t1"))
	assert.Empty(t, ex.cancelledIDs())
	assert.Empty(t, ex.stopCalls())
}

func TestResumeAllDropsAlreadyReduced(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	rec := testRecord(7, "t1") // initial 1.0, expected TP1 0.73
	require.NoError(t, reg.Insert(ctx, rec))

	ex := &fakeExchange{sizes: []float64{0.27}, avgEntry: 50000}
	n := &fakeNotifier{}
	mgr := NewManager(reg, ex, n, testInterval)

	mgr.ResumeAll(ctx)

	assert.Equal(t, 0, mgr.Running())
	assert.False(t, reg.Has(7, "t1"))
	assert.Empty(t, ex.stopCalls())
}

func TestResumeAllSpawnsOpenPosition(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Insert(ctx, testRecord(7, "t1")))
	require.NoError(t, reg.Insert(ctx, testRecord(9, "t2")))

	ex := &fakeExchange{sizes: []float64{1.0}, avgEntry: 50000}
	n := &fakeNotifier{}
	mgr := NewManager(reg, ex, n, time.Minute)

	mgr.ResumeAll(ctx)

	assert.Equal(t, 2, mgr.Running())
	assert.True(t, reg.Has(7, "t1"))
	assert.True(t, reg.Has(9, "t2"))

	mgr.StopAll()
}
