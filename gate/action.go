package gate

import (
	"strconv"
	"strings"
)

// Kind enumerates the admin decision actions carried in button payloads.
type Kind int

const (
	KindNone Kind = iota
	KindAuthorizeRequest
	KindIgnoreRequest
	KindSendPasskey
	KindCancelPasskey
)

// Callback keys as they appear on the wire, e.g. "authorize_request_42".
const (
	KeyAuthorizeRequest = "authorize_request"
	KeyIgnoreRequest    = "ignore_request"
	KeySendPasskey      = "send_passkey"
	KeyCancelPasskey    = "cancel_passkey"
)

var kindKeys = map[Kind]string{
	KindAuthorizeRequest: KeyAuthorizeRequest,
	KindIgnoreRequest:    KeyIgnoreRequest,
	KindSendPasskey:      KeySendPasskey,
	KindCancelPasskey:    KeyCancelPasskey,
}

// Action is the parsed form of a button payload: an action kind plus the
// target identity. Payloads are parsed once at the transport boundary;
// everything downstream switches on Kind.
type Action struct {
	Kind   Kind
	UserID int64
}

// Key returns the callback key for the action kind, or "" for KindNone.
func (a Action) Key() string {
	return kindKeys[a.Kind]
}

// Payload renders the action in its wire form "<key>_<user_id>".
func (a Action) Payload() string {
	key := a.Key()
	if key == "" {
		return ""
	}
	return key + "_" + strconv.FormatInt(a.UserID, 10)
}

// ParseAction parses a raw payload string like "send_passkey_42" into its
// tagged form. The second return is false for unrecognized keys or a
// malformed target identity.
func ParseAction(data string) (Action, bool) {
	for kind, key := range kindKeys {
		rest, ok := strings.CutPrefix(data, key+"_")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Action{}, false
		}
		return Action{Kind: kind, UserID: id}, true
	}
	return Action{}, false
}

// ParseActionKey builds an Action from an already-split callback key and
// target payload. Transports that separate the two on the wire use this
// instead of ParseAction.
func ParseActionKey(key, payload string) (Action, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil {
		return Action{}, false
	}
	for kind, k := range kindKeys {
		if k == key {
			return Action{Kind: kind, UserID: id}, true
		}
	}
	return Action{}, false
}
