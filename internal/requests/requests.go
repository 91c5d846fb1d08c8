package requests

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
)

const (
	MethodPersonalSign    = "personal_sign"
	MethodEthSign         = "eth_sign"
	MethodSignTransaction = "eth_signTransaction"
	MethodSignTypedData   = "eth_signTypedData"
	MethodSendTransaction = "eth_sendTransaction"
)

// DefaultMethods are the methods proposed for the eip155 namespace.
var DefaultMethods = []string{
	MethodPersonalSign,
	MethodSignTransaction,
	MethodSignTypedData,
	MethodSendTransaction,
}

// DefaultEvents are the events proposed for the eip155 namespace.
var DefaultEvents = []string{"chainChanged", "accountsChanged"}

var ErrInvalidAddress = errors.New("invalid hex address")

// Tx is an eth transaction object as wallets expect it, every quantity hex encoded.
type Tx struct {
	From     string          `json:"from"`
	To       string          `json:"to,omitempty"`
	Data     string          `json:"data,omitempty"`
	GasLimit *hexutil.Uint64 `json:"gasLimit,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
}

// withFrom fills From with account when unset and validates the addresses and data.
func (tx Tx) withFrom(account string) (Tx, error) {
	if tx.From == "" {
		tx.From = account
	}
	if !common.IsHexAddress(tx.From) {
		return tx, errors.Wrapf(ErrInvalidAddress, "from %q", tx.From)
	}
	if tx.To != "" && !common.IsHexAddress(tx.To) {
		return tx, errors.Wrapf(ErrInvalidAddress, "to %q", tx.To)
	}
	if tx.Data != "" && tx.Data != "0x" {
		if _, err := hexutil.Decode(tx.Data); err != nil {
			return tx, errors.Wrap(err, "decode tx data")
		}
	}
	return tx, nil
}

// SampleTransfer is the zero-value transfer the sample buttons send.
func SampleTransfer(to string) Tx {
	gas := hexutil.Uint64(21000)
	return Tx{
		To:       to,
		Data:     "0x",
		GasLimit: &gas,
		Value:    (*hexutil.Big)(common.Big0),
	}
}

// PersonalSign asks the wallet to sign message with the active account.
func PersonalSign(message string) session.Payload {
	return session.PayloadFunc(func(account string) (session.RPC, error) {
		return session.RPC{
			Method: MethodPersonalSign,
			Params: []interface{}{hexutil.Encode([]byte(message)), account},
		}, nil
	})
}

// EthSign asks for a raw eth_sign over message.
func EthSign(message string) session.Payload {
	return session.PayloadFunc(func(account string) (session.RPC, error) {
		return session.RPC{
			Method: MethodEthSign,
			Params: []interface{}{account, hexutil.Encode([]byte(message))},
		}, nil
	})
}

// SignTransaction asks the wallet to sign tx without broadcasting it.
func SignTransaction(tx Tx) session.Payload {
	return txPayload(MethodSignTransaction, tx)
}

// SendTransaction asks the wallet to sign and broadcast tx.
func SendTransaction(tx Tx) session.Payload {
	return txPayload(MethodSendTransaction, tx)
}

func txPayload(method string, tx Tx) session.Payload {
	return session.PayloadFunc(func(account string) (session.RPC, error) {
		tx, err := tx.withFrom(account)
		if err != nil {
			return session.RPC{}, err
		}
		return session.RPC{Method: method, Params: []interface{}{tx}}, nil
	})
}

// SignTypedData asks for an EIP-712 signature over data.
func SignTypedData(data apitypes.TypedData) session.Payload {
	return session.PayloadFunc(func(account string) (session.RPC, error) {
		if data.PrimaryType == "" {
			return session.RPC{}, errors.New("typed data without primary type")
		}
		if _, ok := data.Types[data.PrimaryType]; !ok {
			return session.RPC{}, errors.Errorf("primary type %q not declared", data.PrimaryType)
		}
		return session.RPC{
			Method: MethodSignTypedData,
			Params: []interface{}{account, data},
		}, nil
	})
}

// Generic forwards method with params as given.
func Generic(method string, params ...interface{}) session.Payload {
	return session.PayloadFunc(func(string) (session.RPC, error) {
		if strings.TrimSpace(method) == "" {
			return session.RPC{}, errors.New("empty method")
		}
		if params == nil {
			params = []interface{}{}
		}
		return session.RPC{Method: method, Params: params}, nil
	})
}
