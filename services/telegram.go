package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"rateadjuster/config"
	"rateadjuster/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramBot is the part of tgbotapi.BotAPI the service uses.
type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramService struct {
	bot            telegramBot
	chatID         int64
	cooldown       time.Duration
	lastAlertTimes map[string]time.Time // Track last alert time per device
	mu             sync.Mutex
	logger         *zap.Logger
	now            func() time.Time
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return newTelegramService(bot, chatID, time.Duration(cfg.TelegramCooldown)*time.Second, logger), nil
}

func newTelegramService(bot telegramBot, chatID int64, cooldown time.Duration, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		bot:            bot,
		chatID:         chatID,
		cooldown:       cooldown,
		lastAlertTimes: make(map[string]time.Time),
		logger:         logger,
		now:            time.Now,
	}
}

// NotifyAdjustment sends an HTML alert about a lowered production rate,
// at most once per device per cooldown.
func (ts *TelegramService) NotifyAdjustment(ctx context.Context, adj *models.Adjustment) error {
	if ts.shouldThrottleAlert(adj.DeviceID) {
		ts.logger.Debug("Throttling alert", zap.String("device_id", adj.DeviceID))
		return nil
	}

	msg := tgbotapi.NewMessage(ts.chatID, ts.formatAdjustmentMessage(adj))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := ts.bot.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	ts.mu.Lock()
	ts.lastAlertTimes[adj.DeviceID] = ts.now()
	ts.mu.Unlock()

	return nil
}

func (ts *TelegramService) shouldThrottleAlert(deviceID string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	last, ok := ts.lastAlertTimes[deviceID]
	return ok && ts.now().Sub(last) < ts.cooldown
}

func (ts *TelegramService) formatAdjustmentMessage(adj *models.Adjustment) string {
	var b strings.Builder

	name := adj.DeviceName
	if name == "" {
		name = adj.DeviceID
	}

	b.WriteString("📉 <b>Production rate lowered</b>\n\n")
	fmt.Fprintf(&b, "🏭 <b>Device:</b> %s (<code>%s</code>)\n", html.EscapeString(name), html.EscapeString(adj.DeviceID))
	fmt.Fprintf(&b, "✅ <b>Good units:</b> %.1f%%\n", adj.GoodPercentage)
	fmt.Fprintf(&b, "⚙️ <b>Rate:</b> %d%% → %d%%\n", adj.PreviousRate, adj.NewRate)
	if !adj.WindowEnd.IsZero() {
		fmt.Fprintf(&b, "🕒 <b>Window end:</b> %s\n", adj.WindowEnd.Format("2006-01-02 15:04:05 MST"))
	}
	if adj.NewRate == RateFloor {
		b.WriteString("\n⚠️ Rate is at the minimum, manual inspection recommended.")
	}

	return b.String()
}
