package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
)

var systemNamespace = uuid.MustParse("6f1c7f2e-2b0d-5c4e-9a51-3d2f0c6a8b10")

// System account names.
const (
	SystemDev      = "dev"
	SystemAMMProxy = "amm_proxy"
)

var systemNames = map[uuid.UUID]string{}

func init() {
	for _, name := range []string{SystemDev, SystemAMMProxy} {
		systemNames[SystemAccount(name)] = name
	}
}

// SystemAccount derives the deterministic identity of a protocol account.
func SystemAccount(name string) uuid.UUID {
	return uuid.NewSHA1(systemNamespace, []byte("perpamm:system:"+name))
}

// ScopeOf classifies an account identity.
func ScopeOf(id uuid.UUID) AccountScope {
	if _, ok := systemNames[id]; ok {
		return AccountScopeSystem
	}
	return AccountScopeUser
}

// AccountPath returns the string representation for storage/logging
func AccountPath(id uuid.UUID) string {
	if name, ok := systemNames[id]; ok {
		return fmt.Sprintf("system:%s", name)
	}
	return fmt.Sprintf("user:%s", id)
}
