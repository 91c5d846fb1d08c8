package session

import (
	"context"
	"encoding/json"
	"time"
)

// CacheKey names the client-side session cache dropped on every reset.
const CacheKey = "WALLET_CONNECT_V2_INDEXED_DB"

// DefaultNamespace is the account-system namespace used when none is configured.
const DefaultNamespace = "eip155"

// RequiredNamespace lists what a session must support inside one namespace.
type RequiredNamespace struct {
	Methods []string `json:"methods"`
	Chains  []string `json:"chains"`
	Events  []string `json:"events"`
}

// RequiredNamespaces is keyed by namespace, e.g. "eip155".
type RequiredNamespaces map[string]RequiredNamespace

// Namespace is the approved side of a RequiredNamespace.
type Namespace struct {
	Accounts []string `json:"accounts"`
	Methods  []string `json:"methods,omitempty"`
	Events   []string `json:"events,omitempty"`
}

type PeerMeta struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

// Session is an approved pairing between this application and a wallet.
type Session struct {
	Topic      string               `json:"topic"`
	Namespaces map[string]Namespace `json:"namespaces"`
	Peer       PeerMeta             `json:"peer"`
}

// Proposal is the pending side of a connect: the uri to show and a way to
// wait for the wallet's answer.
type Proposal struct {
	URI      string
	Approval func(ctx context.Context) (*Session, error)
}

// Reason is sent along with a disconnect.
type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DisconnectReason is the fixed reason sent by Manager.Disconnect.
var DisconnectReason = Reason{Code: 600, Message: "Disconnected"}

// RPC is a single json-rpc call forwarded to the wallet.
type RPC struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// Build makes a plain RPC usable as a Payload.
func (r RPC) Build(string) (RPC, error) {
	return r, nil
}

// Payload builds the call for the active account.
type Payload interface {
	Build(account string) (RPC, error)
}

// PayloadFunc adapts a function to Payload.
type PayloadFunc func(account string) (RPC, error)

func (f PayloadFunc) Build(account string) (RPC, error) {
	return f(account)
}

// Request is the envelope handed to Client.Request.
type Request struct {
	Topic   string `json:"topic"`
	ChainID string `json:"chainId"`
	Request RPC    `json:"request"`
}

type ClientEventType string

// EventSessionDelete is emitted when the peer closes the session.
const EventSessionDelete ClientEventType = "session_delete"

// ClientEvent is pushed by a Client on its Events channel.
type ClientEvent struct {
	Type  ClientEventType
	Topic string
}

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// State is a snapshot of the manager.
type State struct {
	Status  Status   `json:"status"`
	Session *Session `json:"session,omitempty"`
	Account string   `json:"account,omitempty"`
	ChainID string   `json:"chainId,omitempty"`
}

type NotificationType string

const (
	NotifyConnected      NotificationType = "connected"
	NotifyConnectFailed  NotificationType = "connect_failed"
	NotifyDisconnected   NotificationType = "disconnected"
	NotifyTerminated     NotificationType = "terminated"
	NotifyReset          NotificationType = "reset"
	NotifyRequestOK      NotificationType = "request_succeeded"
	NotifyRequestFailed  NotificationType = "request_failed"
	NotifyClientInitFail NotificationType = "client_init_failed"
)

// Notification describes one lifecycle transition.
type Notification struct {
	Type    NotificationType `json:"type"`
	Topic   string           `json:"topic,omitempty"`
	Account string           `json:"account,omitempty"`
	Method  string           `json:"method,omitempty"`
	Error   string           `json:"error,omitempty"`
	At      time.Time        `json:"at"`
}
