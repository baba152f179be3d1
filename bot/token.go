package bot

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"gatebot/gate/state"
)

// ResolveToken finds the bot credential: config or environment first, then
// the persisted state document, then an interactive no-echo prompt. Whatever
// wins is persisted so later runs skip the prompt.
func ResolveToken(cfg *Config, store *state.Store) (string, error) {
	token := strings.TrimSpace(cfg.Core.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(store.BotToken())
	}
	if token == "" {
		prompted, err := promptToken()
		if err != nil {
			return "", err
		}
		token = prompted
	}
	if token == "" {
		return "", fmt.Errorf("bot token is required (BOT_TOKEN env, telegram.token config, or persisted state)")
	}
	if err := store.SetBotToken(token); err != nil {
		return "", fmt.Errorf("persist bot token: %w", err)
	}
	return token, nil
}

func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, "Enter Telegram bot token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read bot token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
