package models

import "time"

// Identity is an anonymous session identity bound to a front-end context
type Identity struct {
	Token      string    `json:"token" db:"token"`
	ContextKey string    `json:"context_key" db:"context_key"` // e.g. a Telegram chat ID
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
