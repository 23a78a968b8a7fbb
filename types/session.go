package types

import (
	"encoding/json"
)

const (
	AccessTokenKey = "access_token"
	UserInfoKey    = "user_info"
)

type AuthEventType int

const (
	AuthLogin AuthEventType = iota
	AuthLogout
	AuthUnauthorized
)

func (t AuthEventType) String() string {
	switch t {
	case AuthLogin:
		return "login"
	case AuthLogout:
		return "logout"
	case AuthUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

type Credential struct {
	AccessToken string          `json:"access_token"`
	User        json.RawMessage `json:"user,omitempty"`
}

// AuthEvent is emitted by the dispatcher whenever a call changes the
// authentication state. Credential is set only for AuthLogin.
type AuthEvent struct {
	Type       AuthEventType
	Operation  string
	Message    string
	Credential *Credential
}

type AuthListener func(event AuthEvent)

type TokenSource interface {
	AccessToken() string
}
