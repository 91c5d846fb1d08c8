package chains

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Blockchain struct {
	ID      int64
	Name    string
	Testnet bool
}

// IDHex is the chain id as wallets report it from eth_chainId.
func (b *Blockchain) IDHex() string {
	return hexutil.EncodeUint64(uint64(b.ID))
}

// CAIP2 renders the chain as <namespace>:<id>.
func (b *Blockchain) CAIP2(namespace string) string {
	return fmt.Sprintf("%v:%v", namespace, b.ID)
}

var known = []*Blockchain{
	{ID: 1, Name: "eth"},
	{ID: 5, Name: "goerli", Testnet: true},
	{ID: 11155111, Name: "sepolia", Testnet: true},
	{ID: 137, Name: "polygon"},
	{ID: 80001, Name: "mumbai", Testnet: true},
	{ID: 56, Name: "bsc"},
	{ID: 97, Name: "bsc testnet", Testnet: true},
	{ID: 43114, Name: "avalanche"},
	{ID: 43113, Name: "avalanche testnet", Testnet: true},
	{ID: 250, Name: "fantom"},
	{ID: 25, Name: "cronos"},
	{ID: 8217, Name: "klaytn cypress"},
	{ID: 1001, Name: "klaytn baobab", Testnet: true},
}

var mapping = func() map[int64]*Blockchain {
	m := make(map[int64]*Blockchain, len(known))
	for _, b := range known {
		m[b.ID] = b
	}
	return m
}()

// Lookup finds a chain by CAIP-2 id ("eip155:1001"), decimal ("1001") or
// hex ("0x3e9") reference.
func Lookup(chainID string) (*Blockchain, bool) {
	ref := chainID
	if i := strings.LastIndex(chainID, ":"); i >= 0 {
		ref = chainID[i+1:]
	}
	var (
		id  int64
		err error
	)
	if strings.HasPrefix(ref, "0x") {
		var u uint64
		u, err = hexutil.DecodeUint64(ref)
		id = int64(u)
	} else {
		id, err = strconv.ParseInt(ref, 10, 64)
	}
	if err != nil {
		return nil, false
	}
	b, ok := mapping[id]
	return b, ok
}

// Describe names chainID for humans, falling back to the id itself.
func Describe(chainID string) string {
	if b, ok := Lookup(chainID); ok {
		return fmt.Sprintf("%v (%v)", chainID, b.Name)
	}
	return chainID
}
