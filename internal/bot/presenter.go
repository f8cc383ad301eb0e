package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/memtest/internal/export"
	"github.com/example/memtest/internal/session"
)

const callbackAdvance = "advance:"

// chatPresenter renders one session into one chat. The session calls it while
// holding its own lock, so calls never overlap.
type chatPresenter struct {
	api     API
	chatID  int64
	refresh time.Duration

	// Phase message that carries the countdown, zero when none
	phaseMsgID int
	phaseView  session.PhaseView
}

var (
	_ session.Presenter = (*chatPresenter)(nil)
	_ session.Player    = (*chatPresenter)(nil)
)

func newChatPresenter(api API, chatID int64, refresh time.Duration) *chatPresenter {
	return &chatPresenter{api: api, chatID: chatID, refresh: refresh}
}

func (p *chatPresenter) ShowPhase(_ context.Context, view session.PhaseView) error {
	msg := tgbotapi.NewMessage(p.chatID, phaseText(view, view.Deadline))
	if kb, ok := phaseKeyboard(view); ok {
		msg.ReplyMarkup = kb
	}

	sent, err := p.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send %s phase: %w", view.Phase, err)
	}

	p.phaseMsgID, p.phaseView = 0, view
	if view.Deadline > 0 {
		p.phaseMsgID = sent.MessageID
	}
	return nil
}

func (p *chatPresenter) ShowCountdown(_ context.Context, phase session.Phase, remaining time.Duration) error {
	if p.phaseMsgID == 0 || p.phaseView.Phase != phase || !shouldRefresh(remaining, p.refresh) {
		return nil
	}

	edit := tgbotapi.NewEditMessageText(p.chatID, p.phaseMsgID, phaseText(p.phaseView, remaining))
	if kb, ok := phaseKeyboard(p.phaseView); ok {
		edit.ReplyMarkup = &kb
	}
	if _, err := p.api.Send(edit); err != nil {
		return fmt.Errorf("failed to update countdown: %w", err)
	}
	return nil
}

func (p *chatPresenter) ShowRecallFeedback(_ context.Context, fb session.RecallFeedback) error {
	_, err := p.api.Send(tgbotapi.NewMessage(p.chatID, feedbackText(fb)))
	if err != nil {
		return fmt.Errorf("failed to send recall feedback: %w", err)
	}
	return nil
}

func (p *chatPresenter) ShowNotice(_ context.Context, notice session.Notice) error {
	text := notice.Text
	if notice.Terminal && notice.Kind == session.NoticeUnavailable {
		text += "\n\nSend /start to try again."
	}
	if _, err := p.api.Send(tgbotapi.NewMessage(p.chatID, text)); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

func (p *chatPresenter) Deliver(_ context.Context, doc export.Document) error {
	return sendDocument(p.api, p.chatID, doc)
}

// Play sends the track as an audio message. Telegram clients cannot be told to
// loop a track, so loop only changes the caption.
func (p *chatPresenter) Play(_ context.Context, resource string, loop bool) (session.Playback, error) {
	audio := tgbotapi.NewAudio(p.chatID, tgbotapi.FilePath(resource))
	audio.Caption = "Start this track now and keep it playing while you study."
	if loop {
		audio.Caption = "Start this track now and keep it on repeat while you study."
	}
	sent, err := p.api.Send(audio)
	if err != nil {
		return nil, fmt.Errorf("failed to send audio: %w", err)
	}
	return &chatPlayback{api: p.api, chatID: p.chatID, msgID: sent.MessageID}, nil
}

// chatPlayback removes the audio message so the track is no longer at hand
type chatPlayback struct {
	api     API
	chatID  int64
	msgID   int
	stopped bool
}

func (c *chatPlayback) Stop(_ context.Context) error {
	if c.stopped {
		return nil
	}
	c.stopped = true

	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(c.chatID, c.msgID)); err != nil {
		return fmt.Errorf("failed to remove audio message: %w", err)
	}
	_, err := c.api.Send(tgbotapi.NewMessage(c.chatID, "Please stop the music now."))
	if err != nil {
		return fmt.Errorf("failed to send stop message: %w", err)
	}
	return nil
}

func sendDocument(api API, chatID int64, doc export.Document) error {
	file := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
	if _, err := api.Send(file); err != nil {
		return fmt.Errorf("failed to send %s: %w", doc.Name, err)
	}
	return nil
}

func phaseText(view session.PhaseView, remaining time.Duration) string {
	var sb strings.Builder
	sb.WriteString(view.Text)
	if len(view.Words) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(view.Words, "\n"))
	}
	if view.Deadline > 0 {
		sb.WriteString("\n\n⏱ ")
		sb.WriteString(formatRemaining(remaining))
	}
	return sb.String()
}

func phaseKeyboard(view session.PhaseView) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(view.Choices) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]MenuButton, 0, len(view.Choices))
	for _, label := range view.Choices {
		row = append(row, MenuButton{Text: label, CallbackData: callbackAdvance + string(view.Phase)})
	}
	return createKeyboard([][]MenuButton{row}), true
}

func feedbackText(fb session.RecallFeedback) string {
	switch {
	case fb.Error != "":
		return fmt.Sprintf("❌ %s: %s", fb.Word, fb.Error)
	case fb.Duplicate:
		return fmt.Sprintf("☑️ %s is already on your list (%d %s)", fb.Word, fb.Count, pluralWords(fb.Count))
	default:
		return fmt.Sprintf("✅ %s (%d %s)", fb.Word, fb.Count, pluralWords(fb.Count))
	}
}

func pluralWords(n int) string {
	if n == 1 {
		return "word"
	}
	return "words"
}

// formatRemaining renders a countdown as m:ss
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func shouldRefresh(remaining, every time.Duration) bool {
	if remaining <= 10*time.Second || every <= time.Second {
		return true
	}
	return remaining%every == 0
}

// parseAdvance extracts the phase from callback data
func parseAdvance(data string) (session.Phase, bool) {
	if !strings.HasPrefix(data, callbackAdvance) {
		return "", false
	}
	phase := session.Phase(strings.TrimPrefix(data, callbackAdvance))
	return phase, phase != ""
}
