// Package access owns the per-user authorization state machine:
// unknown → pending → passkey issued → active. Active is terminal; records
// are never deactivated here.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"gatebot/core/logger"
	"gatebot/gate"
	"gatebot/gate/passkey"
	"gatebot/gate/state"
)

// User-facing copy. The relay's whole UX lives in these strings.
const (
	msgAdminGranted     = "✅ Admin access granted. You have full control."
	msgAwaitingAuth     = "⏳ Awaiting admin authorization. Requesting passkey..."
	msgUnlocked         = "✅ Bot unlocked. You can now use all permitted commands."
	msgRequestNotice    = "User %d wants to access the bot."
	msgIgnoredAdmin     = "Ignored access request from %d."
	msgIgnoredUser      = "❌ Your access request was ignored by the admin."
	msgGenerated        = "Passkey generated for %d: %s"
	msgCancelledAdmin   = "Passkey sending cancelled for %d."
	msgCancelledUser    = "❌ Your access request was cancelled by the admin."
	msgDelivery         = "🔑 Your passkey: *%s*\nPlease enter it using /verify <passkey> within %d minutes."
	msgSentAdmin        = "Passkey sent to %d."
	msgAdminAlwaysOn    = "✅ Admin access is always active."
	msgAccessGranted    = "✅ Access granted! You can now use the bot."
	msgInvalidPasskey   = "❌ Invalid or expired passkey. Please request a new one using /start."
	btnAuthorizeLabel   = "✅ Authorize %d"
	btnIgnoreLabel      = "❌ Ignore %d"
	btnSendToUserLabel  = "✅ Send to User"
	btnCancelSendLabel  = "❌ Cancel"
)

// Controller drives admin decisions and user verification against the shared
// store. All admin-gated operations fail closed: an identity mismatch yields
// gate.ErrNotAdmin and no state mutation.
type Controller struct {
	store *state.Store
	keys  *passkey.Manager
	out   gate.Messenger
}

// NewController wires the controller to its store, passkey manager, and
// outbound transport.
func NewController(store *state.Store, keys *passkey.Manager, out gate.Messenger) *Controller {
	return &Controller{store: store, keys: keys, out: out}
}

// HandleFirstContact processes a /start. The admin is granted access
// unconditionally and idempotently. An unknown user is moved to pending and
// the admin is offered an authorize/ignore choice; a repeat contact while
// pending re-informs the user but never re-notifies the admin.
func (c *Controller) HandleFirstContact(ctx context.Context, userID int64) error {
	var (
		adminID                          int64
		isAdmin, active, pending, notify bool
	)
	err := c.store.Do(func(tx *state.Txn) error {
		st := tx.State()
		adminID = st.AdminID
		notify = st.NotifyAdminOnAccessAttempt
		switch {
		case st.IsAdmin(userID):
			isAdmin = true
			if _, ok := st.Users[userID]; !ok {
				st.Users[userID] = state.NewUserRecord()
				tx.Dirty()
			}
		case st.ActiveUser(userID):
			active = true
		case st.PendingRequests[userID]:
			pending = true
		default:
			st.PendingRequests[userID] = true
			tx.Dirty()
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case isAdmin:
		return c.out.SendText(ctx, userID, msgAdminGranted)
	case active:
		return c.out.SendText(ctx, userID, msgUnlocked)
	}

	if err := c.out.SendText(ctx, userID, msgAwaitingAuth); err != nil {
		return err
	}
	if pending || !notify {
		return nil
	}

	logger.Info(ctx, "gate.access", "request.pending",
		slog.Int64("user_id", userID),
	)
	return c.out.SendChoice(ctx, adminID, fmt.Sprintf(msgRequestNotice, userID), []gate.Button{
		{
			Label:  fmt.Sprintf(btnAuthorizeLabel, userID),
			Action: gate.Action{Kind: gate.KindAuthorizeRequest, UserID: userID},
		},
		{
			Label:  fmt.Sprintf(btnIgnoreLabel, userID),
			Action: gate.Action{Kind: gate.KindIgnoreRequest, UserID: userID},
		},
	})
}

// DecideRequest applies the admin's authorize/ignore choice for a pending
// user. Approval issues a passkey and asks the admin to confirm delivery in a
// second step, so "approved" stays decoupled from "sent".
func (c *Controller) DecideRequest(ctx context.Context, actorID, userID int64, approve bool) error {
	adminID := c.store.AdminID()
	if actorID != adminID {
		return gate.ErrNotAdmin
	}

	if !approve {
		err := c.store.Do(func(tx *state.Txn) error {
			delete(tx.State().PendingRequests, userID)
			tx.Dirty()
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info(ctx, "gate.access", "request.ignored",
			slog.Int64("target_id", userID),
		)
		if err := c.out.SendText(ctx, adminID, fmt.Sprintf(msgIgnoredAdmin, userID)); err != nil {
			return err
		}
		return c.out.SendText(ctx, userID, msgIgnoredUser)
	}

	rec, err := c.keys.Issue(userID)
	if err != nil {
		return err
	}
	logger.Info(ctx, "gate.access", "passkey.issued",
		slog.Int64("target_id", userID),
	)
	return c.out.SendChoice(ctx, adminID, fmt.Sprintf(msgGenerated, userID, rec.Key), []gate.Button{
		{
			Label:  btnSendToUserLabel,
			Action: gate.Action{Kind: gate.KindSendPasskey, UserID: userID},
		},
		{
			Label:  btnCancelSendLabel,
			Action: gate.Action{Kind: gate.KindCancelPasskey, UserID: userID},
		},
	})
}

// DecideDelivery applies the admin's send/cancel choice for an issued
// passkey. Cancel clears the passkey and the pending entry together. Send
// delivers the key and its expiry window to the user; a missing record means
// the confirmation is stale and the call is a no-op.
func (c *Controller) DecideDelivery(ctx context.Context, actorID, userID int64, send bool) error {
	var (
		adminID        int64
		timeoutMinutes int
		rec            *state.PasskeyRecord
	)
	c.store.View(func(st *state.State) {
		adminID = st.AdminID
		timeoutMinutes = st.PasskeyTimeoutMinutes
		if r, ok := st.ActivePasskeys[userID]; ok {
			cp := *r
			rec = &cp
		}
	})
	if actorID != adminID {
		return gate.ErrNotAdmin
	}

	if !send {
		err := c.store.Do(func(tx *state.Txn) error {
			st := tx.State()
			delete(st.ActivePasskeys, userID)
			delete(st.PendingRequests, userID)
			tx.Dirty()
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info(ctx, "gate.access", "passkey.cancelled",
			slog.Int64("target_id", userID),
		)
		if err := c.out.SendText(ctx, adminID, fmt.Sprintf(msgCancelledAdmin, userID)); err != nil {
			return err
		}
		return c.out.SendText(ctx, userID, msgCancelledUser)
	}

	if rec == nil {
		logger.Debug(ctx, "gate.access", "passkey.send.stale",
			slog.Int64("target_id", userID),
		)
		return nil
	}
	if err := c.out.SendMarkdown(ctx, userID, fmt.Sprintf(msgDelivery, rec.Key, timeoutMinutes)); err != nil {
		return err
	}
	return c.out.SendText(ctx, adminID, fmt.Sprintf(msgSentAdmin, userID))
}

// VerifySubmission checks a /verify attempt. The admin short-circuits to
// "already active". A correct, unexpired key activates the user and clears
// the passkey and pending entry together; any failure is reported without
// revealing whether the key was wrong or expired.
func (c *Controller) VerifySubmission(ctx context.Context, userID int64, candidate string) error {
	var isAdmin bool
	c.store.View(func(st *state.State) { isAdmin = st.IsAdmin(userID) })
	if isAdmin {
		return c.out.SendText(ctx, userID, msgAdminAlwaysOn)
	}

	ok, err := c.keys.Verify(userID, candidate)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info(ctx, "gate.access", "verify.rejected",
			slog.Int64("user_id", userID),
		)
		return c.out.SendText(ctx, userID, msgInvalidPasskey)
	}

	err = c.store.Do(func(tx *state.Txn) error {
		st := tx.State()
		st.Users[userID] = state.NewUserRecord()
		delete(st.ActivePasskeys, userID)
		delete(st.PendingRequests, userID)
		tx.Dirty()
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "gate.access", "user.activated",
		slog.Int64("user_id", userID),
	)
	return c.out.SendText(ctx, userID, msgAccessGranted)
}
