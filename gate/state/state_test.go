package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeedsAdminActive(t *testing.T) {
	st := Default(1)

	assert.Equal(t, int64(1), st.AdminID)
	assert.True(t, st.ActiveUser(1))
	assert.True(t, st.NotifyAdminOnAccessAttempt)
	assert.Equal(t, DefaultPasskeyLength, st.PasskeyLength)
	assert.Equal(t, DefaultPasskeyTimeoutMinutes, st.PasskeyTimeoutMinutes)
}

func TestNormalizeRepairsLoadedDocument(t *testing.T) {
	var st State
	require.NoError(t, json.Unmarshal([]byte(`{"admin_id": 7}`), &st))
	st.normalize()

	assert.NotNil(t, st.Users)
	assert.NotNil(t, st.PendingRequests)
	assert.NotNil(t, st.ActivePasskeys)
	assert.NotNil(t, st.ActiveConnections)
	assert.Equal(t, DefaultPasskeyLength, st.PasskeyLength)
	assert.Equal(t, DefaultPasskeyTimeoutMinutes, st.PasskeyTimeoutMinutes)
	assert.True(t, st.ActiveUser(7), "admin record must be seeded active")
}

func TestNormalizeReactivatesAdminRecord(t *testing.T) {
	st := Default(1)
	st.Users[1].Active = false
	st.normalize()
	assert.True(t, st.ActiveUser(1))
}

func TestDocumentKeysAreStringified(t *testing.T) {
	st := Default(1)
	st.Users[42] = NewUserRecord()
	st.PendingRequests[43] = true

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	var users map[string]*UserRecord
	require.NoError(t, json.Unmarshal(doc["users"], &users))
	assert.Contains(t, users, "42")

	var pending map[string]bool
	require.NoError(t, json.Unmarshal(doc["pending_requests"], &pending))
	assert.Contains(t, pending, "43")
}

func TestPasskeyRecordExpired(t *testing.T) {
	now := time.Now()
	rec := PasskeyRecord{Key: "123456", ExpiresAt: now.Add(time.Minute).UnixMilli()}
	assert.False(t, rec.Expired(now))
	assert.True(t, rec.Expired(now.Add(2*time.Minute)))
}

func TestCloneIsDeep(t *testing.T) {
	st := Default(1)
	st.Users[42] = NewUserRecord()
	st.Users[42].Numbers = []string{"a"}
	st.ActivePasskeys[42] = &PasskeyRecord{Key: "111111", ExpiresAt: 10}
	st.PendingRequests[43] = true
	st.ActiveConnections[42] = true

	cp := st.Clone()
	cp.Users[42].Active = false
	cp.Users[42].Numbers[0] = "b"
	cp.ActivePasskeys[42].Key = "222222"
	delete(cp.PendingRequests, 43)
	cp.ActiveConnections[42] = false

	assert.True(t, st.Users[42].Active)
	assert.Equal(t, "a", st.Users[42].Numbers[0])
	assert.Equal(t, "111111", st.ActivePasskeys[42].Key)
	assert.True(t, st.PendingRequests[43])
	assert.True(t, st.ActiveConnections[42])
}
