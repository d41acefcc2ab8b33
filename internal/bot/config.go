package bot

// BotConfig represents the configuration for the operator bot
type BotConfig struct {
	// Token of the Telegram bot
	Token string
	// ChatID receives digests; commands from other chats are ignored
	ChatID int64
}

// Enabled reports whether both the token and the chat are set.
func (c BotConfig) Enabled() bool {
	return c.Token != "" && c.ChatID != 0
}
