package bot

import (
	"errors"

	tele "gopkg.in/telebot.v4"

	tgcallbacks "gatebot/core/telegram/callbacks"
	tghelpers "gatebot/core/telegram/helpers"
	"gatebot/gate"
)

const cbDeniedText = "❌ You are not admin"

func (a *App) registerCallbacks() {
	for _, key := range []string{
		gate.KeyAuthorizeRequest,
		gate.KeyIgnoreRequest,
		gate.KeySendPasskey,
		gate.KeyCancelPasskey,
	} {
		_ = a.reg.RegisterCallback(key, a.actionHandler(key))
	}
}

// actionHandler binds one callback key to its admin decision. The press is
// acknowledged after the decision so denials can ride on the acknowledgement.
func (a *App) actionHandler(key string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, "callback."+key)

		action, ok := gate.ParseActionKey(key, tgcallbacks.CallbackPayload(c))
		if !ok {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		}

		var err error
		switch action.Kind {
		case gate.KindAuthorizeRequest:
			err = a.access.DecideRequest(ctx, c.Sender().ID, action.UserID, true)
		case gate.KindIgnoreRequest:
			err = a.access.DecideRequest(ctx, c.Sender().ID, action.UserID, false)
		case gate.KindSendPasskey:
			err = a.access.DecideDelivery(ctx, c.Sender().ID, action.UserID, true)
		case gate.KindCancelPasskey:
			err = a.access.DecideDelivery(ctx, c.Sender().ID, action.UserID, false)
		}
		if errors.Is(err, gate.ErrNotAdmin) {
			return c.Respond(&tele.CallbackResponse{Text: cbDeniedText})
		}
		if err != nil {
			return err
		}
		return c.Respond()
	}
}
