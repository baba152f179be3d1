package access

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatebot/gate"
	"gatebot/gate/passkey"
	"gatebot/gate/state"
)

const (
	adminID = int64(1)
	userID  = int64(42)
)

type sentMessage struct {
	Recipient int64
	Text      string
	Markdown  bool
	Buttons   []gate.Button
}

// fakeMessenger records every outbound delivery in order.
type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) SendText(_ context.Context, recipient int64, text string) error {
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text})
	return nil
}

func (f *fakeMessenger) SendMarkdown(_ context.Context, recipient int64, text string) error {
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text, Markdown: true})
	return nil
}

func (f *fakeMessenger) SendChoice(_ context.Context, recipient int64, text string, buttons []gate.Button) error {
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text, Buttons: buttons})
	return nil
}

func testController(t *testing.T) (*Controller, *state.Store, *fakeMessenger) {
	t.Helper()
	store, err := state.Open(state.NewFileStore(filepath.Join(t.TempDir(), "state.json")), adminID)
	require.NoError(t, err)
	out := &fakeMessenger{}
	return NewController(store, passkey.NewManager(store), out), store, out
}

func issuedKey(t *testing.T, store *state.Store, id int64) string {
	t.Helper()
	var key string
	store.View(func(st *state.State) {
		if rec, ok := st.ActivePasskeys[id]; ok {
			key = rec.Key
		}
	})
	require.NotEmpty(t, key, "expected an outstanding passkey for %d", id)
	return key
}

func TestFirstContactAdmin(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()

	require.NoError(t, ctrl.HandleFirstContact(ctx, adminID))
	require.NoError(t, ctrl.HandleFirstContact(ctx, adminID))

	require.Len(t, out.sent, 2)
	for _, m := range out.sent {
		assert.Equal(t, adminID, m.Recipient)
		assert.Equal(t, msgAdminGranted, m.Text)
	}
	store.View(func(st *state.State) {
		assert.Empty(t, st.PendingRequests)
	})
}

func TestFirstContactNewUser(t *testing.T) {
	ctrl, store, out := testController(t)

	require.NoError(t, ctrl.HandleFirstContact(context.Background(), userID))

	require.Len(t, out.sent, 2)
	assert.Equal(t, userID, out.sent[0].Recipient)
	assert.Equal(t, msgAwaitingAuth, out.sent[0].Text)

	notice := out.sent[1]
	assert.Equal(t, adminID, notice.Recipient)
	assert.Equal(t, fmt.Sprintf(msgRequestNotice, userID), notice.Text)
	require.Len(t, notice.Buttons, 2)
	assert.Equal(t, "authorize_request_42", notice.Buttons[0].Action.Payload())
	assert.Equal(t, "ignore_request_42", notice.Buttons[1].Action.Payload())

	store.View(func(st *state.State) {
		assert.True(t, st.PendingRequests[userID])
	})
}

func TestFirstContactRepeatWhilePending(t *testing.T) {
	ctrl, _, out := testController(t)
	ctx := context.Background()

	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))

	// The user hears the waiting message again; the admin is notified once.
	require.Len(t, out.sent, 3)
	assert.Equal(t, msgAwaitingAuth, out.sent[2].Text)
	assert.Equal(t, userID, out.sent[2].Recipient)
}

func TestFirstContactActiveUser(t *testing.T) {
	ctrl, store, out := testController(t)
	require.NoError(t, store.Do(func(tx *state.Txn) error {
		tx.State().Users[userID] = state.NewUserRecord()
		tx.Dirty()
		return nil
	}))

	require.NoError(t, ctrl.HandleFirstContact(context.Background(), userID))

	require.Len(t, out.sent, 1)
	assert.Equal(t, msgUnlocked, out.sent[0].Text)
}

func TestFirstContactNotifyDisabled(t *testing.T) {
	ctrl, store, out := testController(t)
	require.NoError(t, store.Do(func(tx *state.Txn) error {
		tx.State().NotifyAdminOnAccessAttempt = false
		tx.Dirty()
		return nil
	}))

	require.NoError(t, ctrl.HandleFirstContact(context.Background(), userID))

	// Pending is recorded but no admin notice goes out.
	require.Len(t, out.sent, 1)
	assert.Equal(t, msgAwaitingAuth, out.sent[0].Text)
	store.View(func(st *state.State) {
		assert.True(t, st.PendingRequests[userID])
	})
}

func TestDecideRequestNonAdmin(t *testing.T) {
	ctrl, store, out := testController(t)
	require.NoError(t, ctrl.HandleFirstContact(context.Background(), userID))
	out.sent = nil

	err := ctrl.DecideRequest(context.Background(), userID, userID, true)
	require.ErrorIs(t, err, gate.ErrNotAdmin)
	assert.Empty(t, out.sent)
	store.View(func(st *state.State) {
		assert.True(t, st.PendingRequests[userID], "a rejected actor must not mutate state")
		assert.Empty(t, st.ActivePasskeys)
	})
}

func TestDecideRequestIgnore(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	out.sent = nil

	require.NoError(t, ctrl.DecideRequest(ctx, adminID, userID, false))

	require.Len(t, out.sent, 2)
	assert.Equal(t, adminID, out.sent[0].Recipient)
	assert.Equal(t, fmt.Sprintf(msgIgnoredAdmin, userID), out.sent[0].Text)
	assert.Equal(t, userID, out.sent[1].Recipient)
	assert.Equal(t, msgIgnoredUser, out.sent[1].Text)

	store.View(func(st *state.State) {
		assert.NotContains(t, st.PendingRequests, userID)
	})
}

func TestDecideRequestApprove(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	out.sent = nil

	require.NoError(t, ctrl.DecideRequest(ctx, adminID, userID, true))

	key := issuedKey(t, store, userID)
	require.Len(t, out.sent, 1)
	choice := out.sent[0]
	assert.Equal(t, adminID, choice.Recipient)
	assert.Equal(t, fmt.Sprintf(msgGenerated, userID, key), choice.Text)
	require.Len(t, choice.Buttons, 2)
	assert.Equal(t, "send_passkey_42", choice.Buttons[0].Action.Payload())
	assert.Equal(t, "cancel_passkey_42", choice.Buttons[1].Action.Payload())

	// Approval issues the key but leaves the pending entry until delivery.
	store.View(func(st *state.State) {
		assert.True(t, st.PendingRequests[userID])
		assert.False(t, st.ActiveUser(userID))
	})
}

func TestDecideDeliveryCancel(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	require.NoError(t, ctrl.DecideRequest(ctx, adminID, userID, true))
	out.sent = nil

	require.NoError(t, ctrl.DecideDelivery(ctx, adminID, userID, false))

	require.Len(t, out.sent, 2)
	assert.Equal(t, fmt.Sprintf(msgCancelledAdmin, userID), out.sent[0].Text)
	assert.Equal(t, msgCancelledUser, out.sent[1].Text)
	store.View(func(st *state.State) {
		assert.NotContains(t, st.ActivePasskeys, userID)
		assert.NotContains(t, st.PendingRequests, userID)
	})
}

func TestDecideDeliverySend(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	require.NoError(t, ctrl.DecideRequest(ctx, adminID, userID, true))
	key := issuedKey(t, store, userID)
	out.sent = nil

	require.NoError(t, ctrl.DecideDelivery(ctx, adminID, userID, true))

	require.Len(t, out.sent, 2)
	delivery := out.sent[0]
	assert.Equal(t, userID, delivery.Recipient)
	assert.True(t, delivery.Markdown)
	assert.Equal(t, fmt.Sprintf(msgDelivery, key, state.DefaultPasskeyTimeoutMinutes), delivery.Text)
	assert.Equal(t, fmt.Sprintf(msgSentAdmin, userID), out.sent[1].Text)

	// Delivery leaves the record in place for /verify.
	store.View(func(st *state.State) {
		assert.Contains(t, st.ActivePasskeys, userID)
	})
}

func TestDecideDeliveryStale(t *testing.T) {
	ctrl, _, out := testController(t)

	require.NoError(t, ctrl.DecideDelivery(context.Background(), adminID, userID, true))
	assert.Empty(t, out.sent)
}

func TestDecideDeliveryNonAdmin(t *testing.T) {
	ctrl, _, out := testController(t)

	err := ctrl.DecideDelivery(context.Background(), userID, userID, true)
	require.ErrorIs(t, err, gate.ErrNotAdmin)
	assert.Empty(t, out.sent)
}

func TestVerifySubmissionSuccess(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	require.NoError(t, ctrl.DecideRequest(ctx, adminID, userID, true))
	key := issuedKey(t, store, userID)
	out.sent = nil

	require.NoError(t, ctrl.VerifySubmission(ctx, userID, key))

	require.Len(t, out.sent, 1)
	assert.Equal(t, msgAccessGranted, out.sent[0].Text)
	store.View(func(st *state.State) {
		assert.True(t, st.ActiveUser(userID))
		assert.NotContains(t, st.ActivePasskeys, userID)
		assert.NotContains(t, st.PendingRequests, userID)
	})
}

func TestVerifySubmissionWrongKey(t *testing.T) {
	ctrl, store, out := testController(t)
	ctx := context.Background()
	require.NoError(t, ctrl.HandleFirstContact(ctx, userID))
	require.NoError(t, ctrl.DecideRequest(ctx, adminID, userID, true))
	out.sent = nil

	require.NoError(t, ctrl.VerifySubmission(ctx, userID, "999999999"))

	require.Len(t, out.sent, 1)
	assert.Equal(t, msgInvalidPasskey, out.sent[0].Text)
	store.View(func(st *state.State) {
		assert.False(t, st.ActiveUser(userID))
		assert.Contains(t, st.ActivePasskeys, userID)
	})
}

func TestVerifySubmissionAdmin(t *testing.T) {
	ctrl, _, out := testController(t)

	require.NoError(t, ctrl.VerifySubmission(context.Background(), adminID, "anything"))
	require.Len(t, out.sent, 1)
	assert.Equal(t, msgAdminAlwaysOn, out.sent[0].Text)
}
