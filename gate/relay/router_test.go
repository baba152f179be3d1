package relay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatebot/gate"
	"gatebot/gate/state"
)

const (
	adminID = int64(1)
	userID  = int64(42)
)

type sentMessage struct {
	Recipient int64
	Text      string
}

type fakeMessenger struct {
	sent []sentMessage
}

func (f *fakeMessenger) SendText(_ context.Context, recipient int64, text string) error {
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text})
	return nil
}

func (f *fakeMessenger) SendMarkdown(_ context.Context, recipient int64, text string) error {
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text})
	return nil
}

func (f *fakeMessenger) SendChoice(_ context.Context, recipient int64, text string, _ []gate.Button) error {
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Text: text})
	return nil
}

func testRouter(t *testing.T) (*Router, *state.Store, *fakeMessenger) {
	t.Helper()
	store, err := state.Open(state.NewFileStore(filepath.Join(t.TempDir(), "state.json")), adminID)
	require.NoError(t, err)
	out := &fakeMessenger{}
	return NewRouter(store, out), store, out
}

func addUser(t *testing.T, store *state.Store, id int64, active bool) {
	t.Helper()
	require.NoError(t, store.Do(func(tx *state.Txn) error {
		rec := state.NewUserRecord()
		rec.Active = active
		tx.State().Users[id] = rec
		tx.Dirty()
		return nil
	}))
}

func TestBroadcastFansOutToAllKnownUsers(t *testing.T) {
	router, store, out := testRouter(t)
	ctx := context.Background()
	addUser(t, store, userID, true)
	addUser(t, store, 43, false)

	require.NoError(t, router.Broadcast(ctx, adminID))
	require.Len(t, out.sent, 1)
	assert.Equal(t, msgBroadcastOn, out.sent[0].Text)
	out.sent = nil

	require.NoError(t, router.Route(ctx, Inbound{SenderID: adminID, Text: "hello"}))

	// Every known user gets a copy, inactive records and the admin included.
	require.Len(t, out.sent, 3)
	assert.Equal(t, adminID, out.sent[0].Recipient)
	assert.Equal(t, userID, out.sent[1].Recipient)
	assert.Equal(t, int64(43), out.sent[2].Recipient)
	for _, m := range out.sent {
		assert.Equal(t, "📢 Admin Broadcast: hello", m.Text)
	}
}

func TestBroadcastModeIsSticky(t *testing.T) {
	router, _, out := testRouter(t)
	ctx := context.Background()

	require.NoError(t, router.Broadcast(ctx, adminID))
	out.sent = nil

	require.NoError(t, router.Route(ctx, Inbound{SenderID: adminID, Text: "one"}))
	require.NoError(t, router.Route(ctx, Inbound{SenderID: adminID, Text: "two"}))

	// Only the admin is known, so each broadcast has exactly one recipient.
	require.Len(t, out.sent, 2)
	assert.Equal(t, "📢 Admin Broadcast: one", out.sent[0].Text)
	assert.Equal(t, "📢 Admin Broadcast: two", out.sent[1].Text)
}

func TestConnectUnknownTarget(t *testing.T) {
	router, store, out := testRouter(t)

	require.NoError(t, router.Connect(context.Background(), adminID, userID))

	require.Len(t, out.sent, 1)
	assert.Equal(t, adminID, out.sent[0].Recipient)
	assert.Equal(t, msgUserNotFound, out.sent[0].Text)
	store.View(func(st *state.State) {
		assert.Empty(t, st.ActiveConnections)
	})
}

func TestConnectOpensSession(t *testing.T) {
	router, store, out := testRouter(t)
	ctx := context.Background()
	addUser(t, store, userID, false)

	require.NoError(t, router.Connect(ctx, adminID, userID))

	require.Len(t, out.sent, 2)
	assert.Equal(t, adminID, out.sent[0].Recipient)
	assert.Equal(t, "✅ Connected to user 42.", out.sent[0].Text)
	assert.Equal(t, userID, out.sent[1].Recipient)
	assert.Equal(t, msgConnectedUser, out.sent[1].Text)

	store.View(func(st *state.State) {
		assert.True(t, st.ActiveConnections[userID])
	})
}

func TestAdminReplyRoutesIntoConnection(t *testing.T) {
	router, store, out := testRouter(t)
	ctx := context.Background()
	addUser(t, store, userID, false)
	require.NoError(t, router.Connect(ctx, adminID, userID))
	out.sent = nil

	require.NoError(t, router.Route(ctx, Inbound{
		SenderID:             adminID,
		Text:                 "hi there",
		ReplyToForwardedFrom: userID,
	}))

	require.Len(t, out.sent, 1)
	assert.Equal(t, userID, out.sent[0].Recipient)
	assert.Equal(t, "💬 Admin: hi there", out.sent[0].Text)
}

func TestAdminReplyWithoutConnectionIsDropped(t *testing.T) {
	router, store, out := testRouter(t)
	addUser(t, store, userID, true)

	require.NoError(t, router.Route(context.Background(), Inbound{
		SenderID:             adminID,
		Text:                 "hi",
		ReplyToForwardedFrom: userID,
	}))
	assert.Empty(t, out.sent)
}

func TestActiveUserRelaysToAdmin(t *testing.T) {
	router, store, out := testRouter(t)
	addUser(t, store, userID, true)

	require.NoError(t, router.Route(context.Background(), Inbound{SenderID: userID, Text: "hi"}))

	require.Len(t, out.sent, 1)
	assert.Equal(t, adminID, out.sent[0].Recipient)
	assert.Equal(t, "💬 42: hi", out.sent[0].Text)
}

func TestConnectedUserRelaysEvenWhenInactive(t *testing.T) {
	router, store, out := testRouter(t)
	ctx := context.Background()
	addUser(t, store, userID, false)
	require.NoError(t, router.Connect(ctx, adminID, userID))
	out.sent = nil

	require.NoError(t, router.Route(ctx, Inbound{SenderID: userID, Text: "still here"}))

	require.Len(t, out.sent, 1)
	assert.Equal(t, adminID, out.sent[0].Recipient)
	assert.Equal(t, "💬 42: still here", out.sent[0].Text)
}

func TestUnknownSenderIsDroppedSilently(t *testing.T) {
	router, _, out := testRouter(t)

	require.NoError(t, router.Route(context.Background(), Inbound{SenderID: 999, Text: "let me in"}))
	assert.Empty(t, out.sent)
}

func TestDisconnectClearsSessionsAndBroadcast(t *testing.T) {
	router, store, out := testRouter(t)
	ctx := context.Background()
	addUser(t, store, userID, true)
	require.NoError(t, router.Connect(ctx, adminID, userID))
	require.NoError(t, router.Broadcast(ctx, adminID))
	out.sent = nil

	require.NoError(t, router.Disconnect(ctx, adminID))

	require.Len(t, out.sent, 1)
	assert.Equal(t, msgDisconnected, out.sent[0].Text)
	store.View(func(st *state.State) {
		assert.Empty(t, st.ActiveConnections)
		assert.False(t, st.BroadcastMode)
	})

	// Admin chatter no longer fans out.
	require.NoError(t, router.Route(ctx, Inbound{SenderID: adminID, Text: "quiet now"}))
	assert.Len(t, out.sent, 1)
}

func TestAdminGatedOperations(t *testing.T) {
	router, store, out := testRouter(t)
	ctx := context.Background()
	addUser(t, store, userID, true)

	assert.ErrorIs(t, router.Broadcast(ctx, userID), gate.ErrNotAdmin)
	assert.ErrorIs(t, router.Connect(ctx, userID, userID), gate.ErrNotAdmin)
	assert.ErrorIs(t, router.Disconnect(ctx, userID), gate.ErrNotAdmin)
	assert.Empty(t, out.sent)
	store.View(func(st *state.State) {
		assert.False(t, st.BroadcastMode)
		assert.Empty(t, st.ActiveConnections)
	})
}
