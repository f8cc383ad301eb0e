package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/memtest/internal/session"
)

func TestParseAdvance(t *testing.T) {
	tests := []struct {
		data  string
		phase session.Phase
		ok    bool
	}{
		{"advance:welcome", session.PhaseWelcome, true},
		{"advance:memorization", session.PhaseMemorization, true},
		{"advance:", "", false},
		{"main_menu", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		phase, ok := parseAdvance(tt.data)
		assert.Equal(t, tt.ok, ok, tt.data)
		assert.Equal(t, tt.phase, phase, tt.data)
	}
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "3:00", formatRemaining(180*time.Second))
	assert.Equal(t, "1:05", formatRemaining(65*time.Second))
	assert.Equal(t, "0:09", formatRemaining(9*time.Second))
	assert.Equal(t, "0:00", formatRemaining(-time.Second))
}

func TestShouldRefresh(t *testing.T) {
	every := 5 * time.Second
	assert.True(t, shouldRefresh(175*time.Second, every))
	assert.False(t, shouldRefresh(174*time.Second, every))
	assert.True(t, shouldRefresh(9*time.Second, every))
	assert.True(t, shouldRefresh(174*time.Second, time.Second))
}

func TestFeedbackText(t *testing.T) {
	assert.Equal(t, "✅ pear (1 word)", feedbackText(session.RecallFeedback{Word: "pear", Accepted: true, Count: 1}))
	assert.Equal(t, "☑️ pear is already on your list (2 words)",
		feedbackText(session.RecallFeedback{Word: "pear", Accepted: true, Duplicate: true, Count: 2}))
	assert.Equal(t, "❌ zzz: not in list", feedbackText(session.RecallFeedback{Word: "zzz", Error: "not in list"}))
}

func TestCountdownEditsPhaseMessage(t *testing.T) {
	api := newFakeAPI()
	p := newChatPresenter(api, chatID, 5*time.Second)
	ctx := context.Background()

	view := session.PhaseView{
		Phase:    session.PhaseRecall,
		Text:     "Type the words",
		Choices:  []string{"Finish"},
		Input:    true,
		Deadline: 2 * time.Minute,
	}
	require.NoError(t, p.ShowPhase(ctx, view))

	sent := api.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "Type the words\n\n⏱ 2:00", msg.Text)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "Finish", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "advance:recall", *kb.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, p.ShowCountdown(ctx, session.PhaseRecall, 119*time.Second))
	require.NoError(t, p.ShowCountdown(ctx, session.PhaseMemorization, 115*time.Second))
	assert.Len(t, api.Sent(), 1, "off-interval and foreign ticks are not rendered")

	require.NoError(t, p.ShowCountdown(ctx, session.PhaseRecall, 115*time.Second))
	sent = api.Sent()
	require.Len(t, sent, 2)
	edit := sent[1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, 1, edit.MessageID)
	assert.Equal(t, "Type the words\n\n⏱ 1:55", edit.Text)
	require.NotNil(t, edit.ReplyMarkup)

	// A phase without a deadline stops further edits
	require.NoError(t, p.ShowPhase(ctx, session.PhaseView{Phase: session.PhaseThankYou, Text: "Thanks"}))
	require.NoError(t, p.ShowCountdown(ctx, session.PhaseRecall, 5*time.Second))
	assert.Len(t, api.Sent(), 3)
}

func TestPlaybackStopsOnce(t *testing.T) {
	api := newFakeAPI()
	p := newChatPresenter(api, chatID, time.Second)
	ctx := context.Background()

	pb, err := p.Play(ctx, "assets/music.mp3", true)
	require.NoError(t, err)
	require.NoError(t, pb.Stop(ctx))
	require.NoError(t, pb.Stop(ctx))

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	del := reqs[0].(tgbotapi.DeleteMessageConfig)
	assert.Equal(t, 1, del.MessageID)
	assert.Equal(t, chatID, del.ChatID)
}

func TestUnavailableNoticeOffersRestart(t *testing.T) {
	api := newFakeAPI()
	p := newChatPresenter(api, chatID, time.Second)

	require.NoError(t, p.ShowNotice(context.Background(), session.Notice{
		Kind: session.NoticeUnavailable, Text: "Down.", Terminal: true,
	}))
	assert.Equal(t, "Down.\n\nSend /start to try again.", api.LastText())
}
