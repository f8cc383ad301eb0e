package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/export"
	"github.com/example/memtest/internal/session"
)

const (
	textNoSession     = "Send /start to begin the experiment."
	textSessionEnded  = "This session has ended. Thank you!"
	textUseButtons    = "Please use the buttons below the last message."
	textAdminOnly     = "This command is only available for administrators."
	textStepOver      = "This step is already over."
	textAlreadyActive = "Your session is already running. Please continue where you left off."
)

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(ctx, message)
	case "help":
		err = b.handleHelp(message)
	case "export":
		err = b.adminOnly(message, func() error { return b.handleExport(ctx, message) })
	case "sweep":
		err = b.adminOnly(message, func() error { return b.handleSweep(message) })
	case "status":
		err = b.adminOnly(message, func() error { return b.handleStatus(ctx, message) })
	default:
		err = b.handleUnknownCommand(message)
	}
	return err
}

func (b *Bot) adminOnly(message *tgbotapi.Message, fn func() error) error {
	if message.From == nil || !b.isAdmin(message.From.ID) {
		return b.reply(message.Chat.ID, textAdminOnly)
	}
	return fn()
}

// handleStart opens a new session for the chat unless one is still running
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	key := contextKey(chatID)

	b.startMu.Lock()
	if current := b.pool.Get(key); current != nil {
		state := current.State()
		if !state.Status.Terminal() {
			b.startMu.Unlock()
			return b.reply(chatID, textAlreadyActive)
		}
	}

	presenter := newChatPresenter(b.api, chatID, b.config.CountdownRefresh)
	opts := b.sessions
	opts.Presenter = presenter
	opts.Player = presenter
	ctl := session.New(key, opts)
	prev := b.pool.Replace(key, ctl)
	b.startMu.Unlock()

	if prev != nil {
		prev.Close(ctx)
	}

	b.logger.Info("session requested", zap.Int64("chat_id", chatID))
	if err := ctl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

func (b *Bot) handleHelp(message *tgbotapi.Message) error {
	text := `This bot runs a short memory experiment.

/start - begin the experiment
/help - show this message`
	if message.From != nil && b.isAdmin(message.From.ID) {
		text += `

Admin commands:
/export [csv|xlsx] - download all participant records
/status - show the number of open sessions
/sweep - close finished and idle sessions now`
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleExport(ctx context.Context, message *tgbotapi.Message) error {
	format := b.config.ExportFormat
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		f, err := export.ParseFormat(arg)
		if err != nil {
			return b.reply(message.Chat.ID, err.Error())
		}
		format = f
	}

	records, err := b.registry.List(ctx)
	if err != nil {
		_ = b.reply(message.Chat.ID, "❌ Could not read participant records.")
		return fmt.Errorf("failed to list participants: %w", err)
	}
	doc, err := export.Participants(format, records)
	if err != nil {
		return fmt.Errorf("failed to build export: %w", err)
	}
	b.logger.Info("participants exported", zap.Int("count", len(records)), zap.String("format", string(format)))
	return sendDocument(b.api, message.Chat.ID, doc)
}

func (b *Bot) handleSweep(message *tgbotapi.Message) error {
	if b.janitor == nil {
		return b.reply(message.Chat.ID, "The session janitor is disabled.")
	}
	n := b.janitor.RunManualCheck()
	return b.reply(message.Chat.ID, fmt.Sprintf("Closed %d session(s).", n))
}

func (b *Bot) handleStatus(ctx context.Context, message *tgbotapi.Message) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Open sessions: %d", b.pool.Len())
	if b.stats != nil {
		stats, err := b.stats.ByCondition(ctx)
		if err != nil {
			return fmt.Errorf("failed to load statistics: %w", err)
		}
		for _, s := range stats {
			fmt.Fprintf(&sb, "\n%s: %d participants, %d completed, %.1f words on average",
				s.Condition, s.Participants, s.Completed, s.AvgGuessedWords)
		}
	}
	return b.reply(message.Chat.ID, sb.String())
}

func (b *Bot) handleUnknownCommand(message *tgbotapi.Message) error {
	return b.reply(message.Chat.ID, "Unknown command. Use /help to see the available commands.")
}

// handleText routes typed text to the active phase: an identifier or a recalled word
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	ctl := b.pool.Get(contextKey(chatID))
	if ctl == nil {
		return b.reply(chatID, textNoSession)
	}

	var err error
	switch ctl.State().Phase {
	case session.PhaseIdentification:
		err = ctl.SubmitID(ctx, message.Text)
	case session.PhaseRecall:
		err = ctl.SubmitWord(ctx, message.Text)
	default:
		err = session.ErrStalePhase
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionClosed):
		return b.reply(chatID, textSessionEnded)
	case errors.Is(err, session.ErrStalePhase):
		return b.reply(chatID, textUseButtons)
	}
	return err
}

// HandleCallback handles button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.Message == nil || callback.Message.Chat == nil {
		return nil
	}
	chatID := callback.Message.Chat.ID

	answer := ""
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, answer)); err != nil {
			b.logger.Warn("failed to answer callback", zap.Error(err))
		}
	}()

	phase, ok := parseAdvance(callback.Data)
	if !ok {
		b.logger.Warn("unknown callback data", zap.String("data", callback.Data))
		return nil
	}

	ctl := b.pool.Get(contextKey(chatID))
	if ctl == nil {
		answer = textNoSession
		return nil
	}

	err := ctl.Advance(ctx, phase)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrStalePhase):
		answer = textStepOver
	case errors.Is(err, session.ErrSessionClosed):
		answer = textSessionEnded
	default:
		return fmt.Errorf("failed to advance %s: %w", phase, err)
	}
	return nil
}
