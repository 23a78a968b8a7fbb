package types

import (
	"encoding/json"
	"time"
)

type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

type ConnectionState struct {
	Status        ConnectionStatus `json:"status"`
	Connected     bool             `json:"connected"`
	Reconnecting  bool             `json:"reconnecting"`
	Subscriptions []string         `json:"subscriptions"`
}

type ConnectionListener func(from, to ConnectionStatus)

type ChannelHandler func(message *ChannelMessage) error

type ChannelMessage struct {
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

type ChannelCommand struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	ID      string `json:"id"`
}
