package bot

import (
	"time"

	"github.com/example/memtest/internal/export"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Telegram users allowed to run admin commands
	AdminUserIDs map[int64]bool
	// Countdown messages are edited on multiples of this interval and
	// every second during the last ten seconds
	CountdownRefresh time.Duration
	// Long polling timeout in seconds
	UpdateTimeout int
	// Format used by /export when none is given
	ExportFormat export.Format
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		AdminUserIDs:     make(map[int64]bool),
		CountdownRefresh: 5 * time.Second,
		UpdateTimeout:    60,
		ExportFormat:     export.FormatXLSX,
	}
}
