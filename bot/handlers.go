package bot

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"gatebot/core/telegram/commands"
	tghelpers "gatebot/core/telegram/helpers"
	"gatebot/gate/relay"
)

func (a *App) registerCommands() {
	a.reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Request access or confirm an active session",
	})
	a.reg.RegisterCommand("/verify", commands.Command{
		Handler:     a.handleVerify,
		Description: "Submit a passkey: /verify <passkey>",
	})
	a.reg.RegisterCommand("/connect", commands.Command{
		Handler:     a.handleConnect,
		Description: "Open a direct session: /connect <user_id>",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.RegisterCommand("/broadcast", commands.Command{
		Handler:     a.handleBroadcast,
		Description: "Relay following messages to all users",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.RegisterCommand("/disconnect", commands.Command{
		Handler:     a.handleDisconnect,
		Description: "Close all sessions and stop broadcasting",
		AdminOnly:   true,
		Hidden:      true,
	})
	a.reg.SetTextFallback(a.handleRelay)
}

func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	return a.access.HandleFirstContact(ctx, c.Sender().ID)
}

// handleVerify processes "/verify <passkey>". A bare /verify carries no
// payload and falls through to the relay, matching how a non-matching command
// is treated as ordinary text.
func (a *App) handleVerify(c tele.Context) error {
	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return a.handleRelay(c)
	}
	ctx := tghelpers.WithHandler(c, "verify")
	return a.access.VerifySubmission(ctx, c.Sender().ID, payload)
}

// handleConnect processes "/connect <user_id>". An unparseable target behaves
// like an unknown user and yields the "not found" notice.
func (a *App) handleConnect(c tele.Context) error {
	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return a.handleRelay(c)
	}
	target, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		target = 0
	}
	ctx := tghelpers.WithHandler(c, "connect")
	return a.relay.Connect(ctx, c.Sender().ID, target)
}

func (a *App) handleBroadcast(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "broadcast")
	return a.relay.Broadcast(ctx, c.Sender().ID)
}

func (a *App) handleDisconnect(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "disconnect")
	return a.relay.Disconnect(ctx, c.Sender().ID)
}

// handleRelay forwards any non-command text through the relay router.
func (a *App) handleRelay(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "relay")

	var replyFwd int64
	if m := c.Message(); m != nil && m.ReplyTo != nil && m.ReplyTo.OriginalSender != nil {
		replyFwd = m.ReplyTo.OriginalSender.ID
	}

	return a.relay.Route(ctx, relay.Inbound{
		SenderID:             c.Sender().ID,
		Text:                 c.Text(),
		ReplyToForwardedFrom: replyFwd,
	})
}
