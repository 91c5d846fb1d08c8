package session

import (
	"strings"

	"moff.io/wallet-pairing/pkg/errors"
)

var ErrNoAccount = errors.New("approved session carries no account")

// AccountFrom returns the first account of namespace in s, stripped of its
// "namespace:reference:" prefix, together with the "namespace:reference" chain.
func AccountFrom(s *Session, namespace string) (account, chainID string, err error) {
	if s == nil {
		return "", "", ErrNoAccount
	}
	ns, ok := s.Namespaces[namespace]
	if !ok || len(ns.Accounts) == 0 || ns.Accounts[0] == "" {
		return "", "", errors.Wrapf(ErrNoAccount, "namespace %q", namespace)
	}
	account, chainID = SplitAccount(ns.Accounts[0])
	if account == "" {
		return "", "", errors.Wrapf(ErrNoAccount, "namespace %q", namespace)
	}
	return account, chainID, nil
}

// SplitAccount splits a CAIP-10 account id into address and CAIP-2 chain id.
// Ids without a chain prefix are returned verbatim with an empty chain id.
func SplitAccount(id string) (address, chainID string) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) < 3 {
		return id, ""
	}
	return parts[2], parts[0] + ":" + parts[1]
}

// JoinChainID prefixes reference with namespace unless it already has one.
func JoinChainID(namespace, reference string) string {
	if reference == "" || strings.Contains(reference, ":") || namespace == "" {
		return reference
	}
	return namespace + ":" + reference
}
