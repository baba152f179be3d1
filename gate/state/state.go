// Package state owns the durable aggregate behind access control and relay
// routing. The aggregate is the single source of truth: it is loaded once at
// startup and rewritten in full after every mutation.
package state

import (
	"encoding/json"
	"time"
)

// Defaults applied when a field is absent from the persisted document.
const (
	DefaultPasskeyLength         = 6
	DefaultPasskeyTimeoutMinutes = 30
)

// UserRecord tracks an identity that reached active status. Numbers and
// DeletedMessages are extension fields carried through the store untouched.
type UserRecord struct {
	Active          bool              `json:"active"`
	Numbers         []string          `json:"numbers"`
	DeletedMessages []json.RawMessage `json:"deleted_messages"`
}

// NewUserRecord returns an active record with empty extension fields.
func NewUserRecord() *UserRecord {
	return &UserRecord{
		Active:          true,
		Numbers:         []string{},
		DeletedMessages: []json.RawMessage{},
	}
}

// PasskeyRecord is an outstanding one-time code. ExpiresAt is kept in Unix
// milliseconds to match the persisted document shape.
type PasskeyRecord struct {
	Key       string `json:"key"`
	ExpiresAt int64  `json:"expires_at"`
}

// Expired reports whether the record's expiry window has passed.
func (r PasskeyRecord) Expired(now time.Time) bool {
	return now.UnixMilli() > r.ExpiresAt
}

// State is the persisted aggregate. Integer-keyed maps marshal with string
// keys, so the on-disk document keys users by stringified identity.
type State struct {
	BotToken                   string                   `json:"bot_token"`
	AdminID                    int64                    `json:"admin_id"`
	Users                      map[int64]*UserRecord    `json:"users"`
	PendingRequests            map[int64]bool           `json:"pending_requests"`
	ActivePasskeys             map[int64]*PasskeyRecord `json:"active_passkeys"`
	ActiveConnections          map[int64]bool           `json:"active_connections"`
	BroadcastMode              bool                     `json:"broadcast_mode"`
	NotifyAdminOnAccessAttempt bool                     `json:"notify_admin_on_access_attempt"`
	PasskeyLength              int                      `json:"passkey_length"`
	PasskeyTimeoutMinutes      int                      `json:"passkey_timeout_minutes"`
}

// Default materializes the first-run state for the given admin identity.
func Default(adminID int64) *State {
	st := &State{
		AdminID:                    adminID,
		NotifyAdminOnAccessAttempt: true,
		PasskeyLength:              DefaultPasskeyLength,
		PasskeyTimeoutMinutes:      DefaultPasskeyTimeoutMinutes,
	}
	st.normalize()
	return st
}

// IsAdmin reports whether id is the configured admin identity.
func (s *State) IsAdmin(id int64) bool {
	return id != 0 && id == s.AdminID
}

// ActiveUser reports whether id has an active user record.
func (s *State) ActiveUser(id int64) bool {
	u, ok := s.Users[id]
	return ok && u.Active
}

// PasskeyTimeout returns the configured expiry window as a duration.
func (s *State) PasskeyTimeout() time.Duration {
	return time.Duration(s.PasskeyTimeoutMinutes) * time.Minute
}

// normalize repairs a freshly loaded document: nil maps become empty, zeroed
// passkey settings fall back to defaults, and the admin is seeded as an
// active user. The admin invariant holds from this point on.
func (s *State) normalize() {
	if s.Users == nil {
		s.Users = make(map[int64]*UserRecord)
	}
	if s.PendingRequests == nil {
		s.PendingRequests = make(map[int64]bool)
	}
	if s.ActivePasskeys == nil {
		s.ActivePasskeys = make(map[int64]*PasskeyRecord)
	}
	if s.ActiveConnections == nil {
		s.ActiveConnections = make(map[int64]bool)
	}
	if s.PasskeyLength <= 0 {
		s.PasskeyLength = DefaultPasskeyLength
	}
	if s.PasskeyTimeoutMinutes <= 0 {
		s.PasskeyTimeoutMinutes = DefaultPasskeyTimeoutMinutes
	}
	if s.AdminID != 0 {
		if u, ok := s.Users[s.AdminID]; !ok {
			s.Users[s.AdminID] = NewUserRecord()
		} else {
			u.Active = true
		}
	}
}

// Clone returns a deep copy of the aggregate. The store snapshots before each
// transaction so a failed persist can roll the in-memory state back.
func (s *State) Clone() *State {
	cp := *s
	cp.Users = make(map[int64]*UserRecord, len(s.Users))
	for id, u := range s.Users {
		uc := *u
		uc.Numbers = append([]string(nil), u.Numbers...)
		uc.DeletedMessages = append([]json.RawMessage(nil), u.DeletedMessages...)
		cp.Users[id] = &uc
	}
	cp.PendingRequests = make(map[int64]bool, len(s.PendingRequests))
	for id, v := range s.PendingRequests {
		cp.PendingRequests[id] = v
	}
	cp.ActivePasskeys = make(map[int64]*PasskeyRecord, len(s.ActivePasskeys))
	for id, r := range s.ActivePasskeys {
		rc := *r
		cp.ActivePasskeys[id] = &rc
	}
	cp.ActiveConnections = make(map[int64]bool, len(s.ActiveConnections))
	for id, v := range s.ActiveConnections {
		cp.ActiveConnections[id] = v
	}
	return &cp
}
