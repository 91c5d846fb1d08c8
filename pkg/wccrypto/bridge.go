package wccrypto

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
)

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

// RandomBridgeURL picks one of the public bridge shards.
func RandomBridgeURL() string {
	return fmt.Sprintf(bridgeURLFormat, string(alphanumerical[rand.Intn(len(alphanumerical))]))
}

// WebSocketURL converts a bridge http(s) url to its websocket endpoint.
func WebSocketURL(bridgeURL, protocol, version string) string {
	switch {
	case strings.HasPrefix(bridgeURL, "https://"):
		bridgeURL = "wss://" + strings.TrimPrefix(bridgeURL, "https://")
	case strings.HasPrefix(bridgeURL, "http://"):
		bridgeURL = "ws://" + strings.TrimPrefix(bridgeURL, "http://")
	}
	q := url.Values{}
	q.Set("protocol", protocol)
	q.Set("version", version)
	q.Set("env", "go")
	return bridgeURL + "?" + q.Encode()
}

// PairingURI renders the v1 pairing uri wc:<topic>@1?bridge=<url>&key=<hex>.
func PairingURI(topic, bridgeURL, keyHex string) string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s", topic, url.QueryEscape(bridgeURL), keyHex)
}
