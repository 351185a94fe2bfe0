package state

import (
	"sort"

	"github.com/google/uuid"
)

// Role is a capability required by a gated entry point.
type Role uint8

const (
	// RoleGovernance administers parameters, settlement and balances.
	RoleGovernance Role = iota + 1
	// RoleExchange forwards matched trades and whitelisted AMM orders.
	RoleExchange
	// RoleAMMProxy is the pooled account the AMM trades through.
	RoleAMMProxy
	// RoleSelf is held by the subject account of the call.
	RoleSelf
)

func (r Role) String() string {
	switch r {
	case RoleGovernance:
		return "governance"
	case RoleExchange:
		return "exchange"
	case RoleAMMProxy:
		return "amm-proxy"
	case RoleSelf:
		return "self"
	default:
		return "unknown"
	}
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, bool) {
	for _, r := range []Role{RoleGovernance, RoleExchange, RoleAMMProxy, RoleSelf} {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

type grant struct {
	role Role
	id   uuid.UUID
}

// Authorizer is the single capability check consulted before every gated
// operation.
type Authorizer struct {
	grants map[grant]struct{}
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{grants: make(map[grant]struct{})}
}

// Grant gives role to id. The write is journaled.
func (a *Authorizer) Grant(j *Journal, role Role, id uuid.UUID) {
	Put(j, a.grants, grant{role, id}, struct{}{})
}

// Revoke removes role from id. The write is journaled.
func (a *Authorizer) Revoke(j *Journal, role Role, id uuid.UUID) {
	g := grant{role, id}
	if _, ok := a.grants[g]; !ok {
		return
	}
	j.Record(func() { a.grants[g] = struct{}{} })
	delete(a.grants, g)
}

// Has reports whether id holds role. RoleSelf is never stored.
func (a *Authorizer) Has(role Role, id uuid.UUID) bool {
	_, ok := a.grants[grant{role, id}]
	return ok
}

// Authorize succeeds if caller holds any of roles. RoleSelf matches when
// caller is subject.
func (a *Authorizer) Authorize(op string, caller, subject uuid.UUID, roles ...Role) error {
	for _, r := range roles {
		if r == RoleSelf {
			if caller == subject {
				return nil
			}
			continue
		}
		if a.Has(r, caller) {
			return nil
		}
	}
	return Errorf(InvalidCaller, op, "caller %s lacks role %v", caller, roles)
}

// Reset drops every grant. Not journaled; used when restoring snapshots.
func (a *Authorizer) Reset() {
	a.grants = make(map[grant]struct{})
}

// Members lists the holders of role.
func (a *Authorizer) Members(role Role) []uuid.UUID {
	var out []uuid.UUID
	for g := range a.grants {
		if g.role == role {
			out = append(out, g.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
