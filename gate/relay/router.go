// Package relay decides where inbound chat traffic goes: admin broadcast
// fan-out, direct admin sessions, or the default user→admin relay.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gatebot/core/logger"
	"gatebot/gate"
	"gatebot/gate/state"
)

const (
	broadcastPrefix   = "📢 Admin Broadcast: "
	adminPrefix       = "💬 Admin: "
	msgConnectedAdmin = "✅ Connected to user %d."
	msgConnectedUser  = "💬 Admin is now connected. You can chat through the bot."
	msgUserNotFound   = "User not found."
	msgBroadcastOn    = "📢 Broadcast mode activated. Messages will be sent to all users."
	msgDisconnected   = "❌ Disconnected from all users / broadcast ended."
)

// Inbound is a non-command message as seen by the router.
type Inbound struct {
	SenderID int64
	Text     string
	// ReplyToForwardedFrom is the original author of the message the sender
	// replied to, when that message carried forward metadata; 0 otherwise.
	ReplyToForwardedFrom int64
}

// Router routes messages and owns the broadcast/connection toggles.
type Router struct {
	store *state.Store
	out   gate.Messenger
}

// NewRouter wires the router to the shared store and outbound transport.
func NewRouter(store *state.Store, out gate.Messenger) *Router {
	return &Router{store: store, out: out}
}

// Route forwards one inbound message. In order: admin broadcast (to every
// known user, active or not), admin reply into an active connection,
// active-or-connected user to admin. Anything else is dropped silently.
func (r *Router) Route(ctx context.Context, in Inbound) error {
	var (
		adminID    int64
		recipients []int64
		direct     int64
		toAdmin    bool
	)
	r.store.View(func(st *state.State) {
		adminID = st.AdminID
		if in.SenderID == st.AdminID {
			if st.BroadcastMode && in.Text != "" {
				recipients = make([]int64, 0, len(st.Users))
				for uid := range st.Users {
					recipients = append(recipients, uid)
				}
				return
			}
			if in.ReplyToForwardedFrom != 0 && st.ActiveConnections[in.ReplyToForwardedFrom] {
				direct = in.ReplyToForwardedFrom
			}
			return
		}
		if st.ActiveUser(in.SenderID) || st.ActiveConnections[in.SenderID] {
			toAdmin = true
		}
	})

	switch {
	case len(recipients) > 0:
		sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
		for _, uid := range recipients {
			if err := r.out.SendText(ctx, uid, broadcastPrefix+in.Text); err != nil {
				return err
			}
		}
		logger.Info(ctx, "gate.relay", "broadcast.sent",
			slog.Int("recipients", len(recipients)),
		)
		return nil
	case direct != 0:
		return r.out.SendText(ctx, direct, adminPrefix+in.Text)
	case toAdmin:
		return r.out.SendText(ctx, adminID, fmt.Sprintf("💬 %d: %s", in.SenderID, in.Text))
	}

	logger.Debug(ctx, "gate.relay", "message.dropped",
		slog.Int64("user_id", in.SenderID),
	)
	return nil
}

// Connect opens a direct admin session with the target. An unknown target
// gets the admin a "not found" notice and changes nothing. Connections are
// independent of the target's activation status.
func (r *Router) Connect(ctx context.Context, actorID, targetID int64) error {
	var (
		adminID int64
		known   bool
	)
	r.store.View(func(st *state.State) {
		adminID = st.AdminID
		_, known = st.Users[targetID]
	})
	if actorID != adminID {
		return gate.ErrNotAdmin
	}
	if !known {
		return r.out.SendText(ctx, adminID, msgUserNotFound)
	}

	err := r.store.Do(func(tx *state.Txn) error {
		tx.State().ActiveConnections[targetID] = true
		tx.Dirty()
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "gate.relay", "connection.opened",
		slog.Int64("target_id", targetID),
	)
	if err := r.out.SendText(ctx, adminID, fmt.Sprintf(msgConnectedAdmin, targetID)); err != nil {
		return err
	}
	return r.out.SendText(ctx, targetID, msgConnectedUser)
}

// Broadcast turns broadcast mode on. The mode is sticky until Disconnect.
func (r *Router) Broadcast(ctx context.Context, actorID int64) error {
	adminID := r.store.AdminID()
	if actorID != adminID {
		return gate.ErrNotAdmin
	}
	err := r.store.Do(func(tx *state.Txn) error {
		tx.State().BroadcastMode = true
		tx.Dirty()
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "gate.relay", "broadcast.enabled")
	return r.out.SendText(ctx, adminID, msgBroadcastOn)
}

// Disconnect clears every active connection and broadcast mode together.
func (r *Router) Disconnect(ctx context.Context, actorID int64) error {
	adminID := r.store.AdminID()
	if actorID != adminID {
		return gate.ErrNotAdmin
	}
	err := r.store.Do(func(tx *state.Txn) error {
		st := tx.State()
		st.ActiveConnections = make(map[int64]bool)
		st.BroadcastMode = false
		tx.Dirty()
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "gate.relay", "disconnected")
	return r.out.SendText(ctx, adminID, msgDisconnected)
}
