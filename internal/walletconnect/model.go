package walletconnect

import (
	"encoding/json"
	"fmt"
	"strings"

	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/wccrypto"
)

const (
	methodSessionRequest = "wc_sessionRequest"
	methodSessionUpdate  = "wc_sessionUpdate"

	msgTypePub = "pub"
	msgTypeSub = "sub"
	msgTypeAck = "ack"
)

var (
	ErrRejected   = errors.New("session rejected by wallet")
	ErrNoAccounts = errors.New("no wallet accounts acquired")
	ErrClosed     = errors.New("bridge connection closed")
	ErrNoSession  = errors.New("no pairing in progress")
)

// RPCError is a json-rpc error returned by the wallet.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

type clientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta clientMeta  `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

// sessionParams is the wallet answer to wc_sessionRequest and the payload of wc_sessionUpdate.
type sessionParams struct {
	Approved bool        `json:"approved"`
	ChainID  *int64      `json:"chainId"`
	Accounts []string    `json:"accounts"`
	PeerID   string      `json:"peerId,omitempty"`
	PeerMeta *clientMeta `json:"peerMeta,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// wcMessage is the bridge envelope.
type wcMessage struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newWCMessageFromBytes(data []byte) (*wcMessage, error) {
	var msg wcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal bridge message")
	}
	return &msg, nil
}

func (msg *wcMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

func (msg *wcMessage) sealed() (*wccrypto.Payload, error) {
	var payload wccrypto.Payload
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal bridge message payload")
	}
	return &payload, nil
}

type jsonRPCRequest struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

func newJSONRPCRequest(id int64, method string, params interface{}) *jsonRPCRequest {
	if params == nil {
		params = []interface{}{}
	}
	return &jsonRPCRequest{ID: id, JSONRPC: "2.0", Method: method, Params: params}
}

// silent requests do not trigger a push notification on the wallet side.
func (e *jsonRPCRequest) silent() bool {
	return strings.HasPrefix(e.Method, "wc_")
}
