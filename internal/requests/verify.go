package requests

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"moff.io/wallet-pairing/internal/session"
)

// VerifyPersonalSign reports whether signatureHex is a personal_sign
// signature of msg by address.
func VerifyPersonalSign(address, signatureHex string, msg []byte) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	sig, err := hexutil.Decode(signatureHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	// Transform yellow paper V from 27/28 to 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	recovered, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*recovered) == common.HexToAddress(address)
}

// ChainReference returns the numeric reference of a CAIP-2 chain id,
// "eip155:1001" gives 1001. Zero if it is not numeric.
func ChainReference(chainID string) int64 {
	ref := chainID
	if i := strings.LastIndex(chainID, ":"); i >= 0 {
		ref = chainID[i+1:]
	}
	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DefaultNamespaces proposes the default eip155 methods and events on chains.
func DefaultNamespaces(namespace string, chains ...string) session.RequiredNamespaces {
	if namespace == "" {
		namespace = session.DefaultNamespace
	}
	joined := make([]string, 0, len(chains))
	for _, c := range chains {
		if c = session.JoinChainID(namespace, c); c != "" {
			joined = append(joined, c)
		}
	}
	return session.RequiredNamespaces{
		namespace: {
			Methods: append([]string(nil), DefaultMethods...),
			Chains:  joined,
			Events:  append([]string(nil), DefaultEvents...),
		},
	}
}
