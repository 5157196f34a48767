package command

import (
	"log/slog"
	"time"

	"github.com/kappatan/kappatan/store"
)

// Robot is the bot state as is visible to command handlers.
type Robot struct {
	// Log is the logger for handlers.
	Log *slog.Logger
	// Store is the template and points store.
	Store store.Interface
	// Start is the time at which the session started. Uptime is measured
	// from it.
	Start time.Time
	// BotID is the Twitch user ID of the bot account, the subject of the
	// points ledger for give.
	BotID int64
	// Quit requests cooperative session shutdown. It must be safe to call
	// multiple times.
	Quit func()
}
