// Package bot is the Telegram front-end of the experiment. Every chat runs at
// most one session; the bot renders phases as messages and inline buttons and
// turns button presses and typed text back into session actions.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/registry"
	"github.com/example/memtest/internal/session"
	"github.com/example/memtest/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// API is the part of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Janitor evicts finished and idle sessions on demand
type Janitor interface {
	RunManualCheck() int
}

// Statistics summarizes stored participants
type Statistics interface {
	ByCondition(ctx context.Context) ([]models.ConditionStatistics, error)
}

// Deps are the collaborators shared by all chats
type Deps struct {
	// Template for new sessions; Presenter and Player are set per chat
	Session  session.Options
	Registry registry.Registry
	Pool     *session.Pool
	Janitor  Janitor
	// Optional, enables per-condition figures in /status
	Statistics Statistics
	Logger     *zap.Logger
}

// Bot represents the Telegram bot application
type Bot struct {
	api      API
	config   *BotConfig
	sessions session.Options
	registry registry.Registry
	pool     *session.Pool
	janitor  Janitor
	stats    Statistics
	logger   *zap.Logger

	startMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a new bot instance
func New(api API, config *BotConfig, deps Deps) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram API client is required")
	}
	if deps.Registry == nil || deps.Session.Protocol == nil || deps.Session.Identity == nil {
		return nil, fmt.Errorf("registry, protocol and identity provider are required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Pool == nil {
		deps.Pool = session.NewPool()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Session.Registry == nil {
		deps.Session.Registry = deps.Registry
	}
	if deps.Session.Logger == nil {
		deps.Session.Logger = deps.Logger
	}

	return &Bot{
		api:      api,
		config:   config,
		sessions: deps.Session,
		registry: deps.Registry,
		pool:     deps.Pool,
		janitor:  deps.Janitor,
		stats:    deps.Statistics,
		logger:   deps.Logger.Named("bot"),
	}, nil
}

// Run polls Telegram for updates until ctx is cancelled, then closes all sessions
func (b *Bot) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("polling for updates")
	defer func() {
		b.api.StopReceivingUpdates()
		b.wg.Wait()
		b.pool.CloseAll(context.Background())
		b.logger.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.config.AdminUserIDs[userID]
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		if update.Message.IsCommand() {
			err = b.HandleCommand(ctx, update.Message)
		} else {
			err = b.handleText(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}
	if err != nil {
		b.logger.Error("failed to handle update", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func contextKey(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}
