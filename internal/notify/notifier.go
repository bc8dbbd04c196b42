package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"trade_pilot/internal/models"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	Confirm(ctx context.Context, prompt string, timeout time.Duration) bool
}

// PositionReader — снимок открытых позиций для команды /positions.
type PositionReader interface {
	OpenPositions(ctx context.Context) ([]models.OpenPosition, error)
}

// Unwinder — аварийный выход, дергается командой /panic после подтверждения.
type Unwinder interface {
	Unwind(ctx context.Context, includeSecondary bool) *models.UnwindSummary
	Render(s *models.UnwindSummary) string
}

// Trader исполняет готовую конфигурацию сделки. Сборка конфигурации —
// забота внешнего UI, сюда приходит уже собранный JSON.
type Trader interface {
	Execute(ctx context.Context, tc models.TradeConfig) (string, error)
}

// Telegram — пассивный нотифайер + две команды: /positions и /panic.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	positions PositionReader
	unwinder  Unwinder
	trader    Trader

	// кулдаун между вызовами /panic — защита от двойного нажатия
	cooldown   time.Duration
	lastPanic  time.Time
	panicBusy  bool
	confirmTTL time.Duration

	mu       sync.Mutex
	pendings map[string]*pending
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

func NewTelegram(token string, chatID int64, cooldown, confirmTTL time.Duration) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:        b,
		chatID:     chatID,
		cooldown:   cooldown,
		confirmTTL: confirmTTL,
		pendings:   make(map[string]*pending),
	}, nil
}

// SetCollaborators цепляет источники данных после сборки графа зависимостей
// (реестр и анвайндер сами зависят от нотифайера).
func (t *Telegram) SetCollaborators(pr PositionReader, uw Unwinder, tr Trader) {
	t.positions = pr
	t.unwinder = uw
	t.trader = tr
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// HandleCallback должен вызываться из Start() для callback_query.
func (t *Telegram) HandleCallback(cb *tgbot.CallbackQuery) {
	if t == nil || t.bot == nil || cb == nil {
		return
	}

	// ответ Telegram для остановки спиннера
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))

	data := cb.Data // ожидаем CONF::token / REJ::token
	var verb, token string
	for i := 0; i < len(data); i++ {
		if i+1 < len(data) && data[i] == ':' && data[i+1] == ':' {
			verb, token = data[:i], data[i+2:]
			break
		}
	}
	if verb == "" || token == "" {
		return
	}

	// забираем pending из мапы до касания канала: повторная доставка того же
	// callback (даблтап, редоставка Telegram) никого не найдёт и молча выйдет
	t.mu.Lock()
	p, ok := t.pendings[token]
	delete(t.pendings, token)
	t.mu.Unlock()
	if !ok {
		return
	}

	accepted := verb == "CONF"
	p.ch <- accepted
	close(p.ch)

	status := "Отклонено"
	emoji := "❌"
	if accepted {
		status = "Подтверждено"
		emoji = "✅"
	}

	_ = t.editReplyMarkupRemove(t.chatID, p.msgID)
	_ = t.editText(t.chatID, p.msgID, fmt.Sprintf("%s\n\n%s %s", p.prompt, emoji, status))
}

func (t *Telegram) editReplyMarkupRemove(chatID int64, msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	edit := tgbot.NewEditMessageReplyMarkup(chatID, msgID, rm)
	_, err := t.bot.Request(edit)
	return err
}

func (t *Telegram) editText(chatID int64, msgID int, text string) error {
	edit := tgbot.NewEditMessageText(chatID, msgID, text)
	_, err := t.bot.Request(edit)
	return err
}

// Confirm — сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return true
	}

	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Подтвердить", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Отмена", "REJ::"+token)
	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = kb

	sent, _ := t.bot.Send(msg)
	p.msgID = sent.MessageID

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		_ = t.editReplyMarkupRemove(t.chatID, p.msgID)
		_ = t.editText(t.chatID, p.msgID, fmt.Sprintf("%s\n\n⏳ Таймаут", prompt))
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
		return false
	case <-ctx.Done():
		_ = t.editReplyMarkupRemove(t.chatID, p.msgID)
		_ = t.editText(t.chatID, p.msgID, fmt.Sprintf("%s\n\n⛔️ Отменено", prompt))
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
		return false
	}
}

// /positions — вывод открытых позиций.
func (t *Telegram) handlePositions(ctx context.Context) {
	if t.positions == nil {
		t.Send("❗️ Клиент биржи не инициализирован")
		return
	}
	positions, err := t.positions.OpenPositions(ctx)
	if err != nil {
		t.Sendf("❗️ Ошибка получения позиций: %v", err)
		return
	}
	if len(positions) == 0 {
		t.Send("📭 Открытых позиций нет")
		return
	}

	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "- %s [%s] qty=%.4f @ %.4f lev=%dx uPnL=%.4f\n",
			p.Symbol, strings.ToUpper(string(p.Side)), p.Size, p.AvgEntry, p.Leverage, p.UnrealPnl)
	}
	t.Send(b.String())
}

// /trade {json} — исполнение сделки. Парсим TradeConfig как есть,
// вся валидация на стороне исполнителя.
func (t *Telegram) handleTrade(ctx context.Context, chatID int64, args string) {
	if t.trader == nil {
		t.Send("❗️ Исполнитель не инициализирован")
		return
	}
	var tc models.TradeConfig
	if err := sonic.UnmarshalString(args, &tc); err != nil {
		t.Sendf("❗️ Не удалось разобрать конфигурацию: %v", err)
		return
	}
	tc.ChatID = chatID

	summary, err := t.trader.Execute(ctx, tc)
	if err != nil {
		t.Sendf("❌ Сделка не исполнена: %v", err)
		return
	}
	t.Send(summary)
}

// /panic — аварийный выход: кулдаун, подтверждение с таймаутом, обе фазы,
// сводка ответом.
func (t *Telegram) handlePanic(ctx context.Context, includeSecondary bool) {
	if t.unwinder == nil {
		t.Send("❗️ Аварийный выход не сконфигурирован")
		return
	}

	// кулдаун и флаг занятости захватываются до промпта: второй /panic,
	// прилетевший в окно подтверждения первого, не должен проходить гейт
	t.mu.Lock()
	if t.panicBusy {
		t.mu.Unlock()
		t.Send("🧯 /panic уже выполняется")
		return
	}
	if !t.lastPanic.IsZero() && time.Since(t.lastPanic) < t.cooldown {
		left := t.cooldown - time.Since(t.lastPanic)
		t.mu.Unlock()
		t.Sendf("🧯 Кулдаун: повторный /panic через %s", left.Round(time.Second))
		return
	}
	t.panicBusy = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.panicBusy = false
		t.mu.Unlock()
	}()

	scope := "основному аккаунту"
	if includeSecondary {
		scope = "обоим аккаунтам"
	}
	if !t.Confirm(ctx, fmt.Sprintf("🚨 Снять все ордера и закрыть все позиции по %s?", scope), t.confirmTTL) {
		return
	}

	t.mu.Lock()
	t.lastPanic = time.Now()
	t.mu.Unlock()

	summary := t.unwinder.Unwind(ctx, includeSecondary)
	t.Send(t.unwinder.Render(summary))
}

// Start: long-polling для messages + callback_query.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.CallbackQuery != nil {
					t.HandleCallback(upd.CallbackQuery)
				}
				if upd.Message != nil && upd.Message.Chat != nil &&
					upd.Message.Chat.ID == t.chatID && upd.Message.IsCommand() {

					switch upd.Message.Command() {
					case "trade":
						go t.handleTrade(ctx, upd.Message.Chat.ID, upd.Message.CommandArguments())
					case "positions":
						go t.handlePositions(ctx)
					case "panic":
						go t.handlePanic(ctx, false)
					case "panic_all":
						go t.handlePanic(ctx, true)
					}
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {}

// Stdout — заглушка, всё логирует и всегда подтверждает.
type Stdout struct{}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { log.Println(msg) }
func (s *Stdout) Sendf(format string, args ...any) { log.Printf(format, args...) }
func (s *Stdout) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	log.Printf("CONFIRM (auto-yes): %s", prompt)
	return true
}
