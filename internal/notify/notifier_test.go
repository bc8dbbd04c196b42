package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_pilot/internal/models"
)

// fakeBotHTTP отвечает одним и тем же телом на любой запрос к Bot API:
// getMe видит в нём юзера, sendMessage — сообщение, остальные — просто ok.
type fakeBotHTTP struct{}

func (fakeBotHTTP) Do(*http.Request) (*http.Response, error) {
	body := `{"ok":true,"result":{"id":10,"is_bot":true,"first_name":"bot",` +
		`"username":"pilot_bot","message_id":1,"chat":{"id":7,"type":"private"}}}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func testTelegram(t *testing.T, cooldown, confirmTTL time.Duration) *Telegram {
	t.Helper()
	bot, err := tgbot.NewBotAPIWithClient("token", tgbot.APIEndpoint, fakeBotHTTP{})
	require.NoError(t, err)
	return &Telegram{
		bot:        bot,
		chatID:     7,
		cooldown:   cooldown,
		confirmTTL: confirmTTL,
		pendings:   make(map[string]*pending),
	}
}

// waitToken дожидается появления висящего подтверждения и отдаёт его токен.
func waitToken(t *testing.T, tg *Telegram) string {
	t.Helper()
	var token string
	require.Eventually(t, func() bool {
		tg.mu.Lock()
		defer tg.mu.Unlock()
		for k := range tg.pendings {
			token = k
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return token
}

func TestHandleCallbackDuplicateDelivery(t *testing.T) {
	tg := testTelegram(t, time.Minute, time.Second)

	p := &pending{ch: make(chan bool, 1), msgID: 1, prompt: "?"}
	tg.mu.Lock()
	tg.pendings["42"] = p
	tg.mu.Unlock()

	// Telegram умеет доставить один и тот же callback дважды (даблтап,
	// редоставка): второй заход не должен найти pending и тронуть канал
	cb := &tgbot.CallbackQuery{ID: "cb", Data: "CONF::42"}
	require.NotPanics(t, func() {
		tg.HandleCallback(cb)
		tg.HandleCallback(cb)
	})

	ok := <-p.ch
	assert.True(t, ok)
	_, open := <-p.ch
	assert.False(t, open)

	tg.mu.Lock()
	assert.Empty(t, tg.pendings)
	tg.mu.Unlock()
}

func TestConfirmResolvedByCallback(t *testing.T) {
	tg := testTelegram(t, time.Minute, time.Second)

	done := make(chan bool, 1)
	go func() { done <- tg.Confirm(context.Background(), "go?", time.Second) }()

	token := waitToken(t, tg)
	tg.HandleCallback(&tgbot.CallbackQuery{ID: "cb", Data: "CONF::" + token})
	assert.True(t, <-done)

	tg.mu.Lock()
	assert.Empty(t, tg.pendings)
	tg.mu.Unlock()
}

type fakeUnwinder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeUnwinder) Unwind(context.Context, bool) *models.UnwindSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &models.UnwindSummary{}
}

func (f *fakeUnwinder) Render(*models.UnwindSummary) string { return "ok" }

func (f *fakeUnwinder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestHandlePanicSingleFlight(t *testing.T) {
	tg := testTelegram(t, time.Minute, time.Second)
	uw := &fakeUnwinder{}
	tg.SetCollaborators(nil, uw, nil)

	first := make(chan struct{})
	go func() {
		tg.handlePanic(context.Background(), false)
		close(first)
	}()
	token := waitToken(t, tg)

	// второй /panic внутри окна подтверждения первого — гейт закрыт,
	// нового промпта нет, анвайнд не дёрнут
	tg.handlePanic(context.Background(), false)
	assert.Equal(t, 0, uw.count())
	tg.mu.Lock()
	assert.Len(t, tg.pendings, 1)
	assert.True(t, tg.panicBusy)
	tg.mu.Unlock()

	// отказ не съедает кулдаун: следующий /panic снова промптит
	tg.HandleCallback(&tgbot.CallbackQuery{ID: "cb", Data: "REJ::" + token})
	<-first
	assert.Equal(t, 0, uw.count())
	tg.mu.Lock()
	assert.True(t, tg.lastPanic.IsZero())
	assert.False(t, tg.panicBusy)
	tg.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tg.handlePanic(context.Background(), false)
		close(done)
	}()
	token = waitToken(t, tg)
	tg.HandleCallback(&tgbot.CallbackQuery{ID: "cb2", Data: "CONF::" + token})
	<-done
	assert.Equal(t, 1, uw.count())

	// подтверждённый запуск включает кулдаун
	tg.handlePanic(context.Background(), false)
	assert.Equal(t, 1, uw.count())
}
