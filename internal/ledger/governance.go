package ledger

import (
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// SetParameter writes a governance parameter. Social-loss accumulators are
// writable only while SETTLING and may only grow; every other parameter
// only while NORMAL.
func (l *Perpetual) SetParameter(c state.Call, name string, value fpmath.Int) error {
	const op = "set parameter"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleGovernance); err != nil {
			return err
		}
		if side, ok := state.SocialLossParam(name); ok {
			return l.setSocialLoss(op, name, side, value)
		}
		if err := state.InNormal.Require(op, l.status); err != nil {
			return err
		}
		prev, err := l.params.Get(name)
		if err != nil {
			return err
		}
		next, err := l.params.With(name, value)
		if err != nil {
			return err
		}
		state.Assign(l.j, &l.params, next)
		l.out.Emit(&event.ParameterChanged{Name: name, Previous: prev, Value: value})
		return nil
	})
}

func (l *Perpetual) setSocialLoss(op, name string, side state.Side, value fpmath.Int) error {
	if err := state.InSettling.Require(op, l.status); err != nil {
		return err
	}
	dst := &l.longSocialLoss
	if side == state.SideShort {
		dst = &l.shortSocialLoss
	}
	prev := *dst
	if value.LT(prev) {
		return state.Errorf(state.InvalidParameter, op, "%s can only increase", name)
	}
	state.Assign(l.j, dst, value)

	// The raised accumulator charges the side's open interest, so that much
	// of its recorded shortfall is no longer owed.
	fund, retired := l.insurance.RetireShortfall(side, value.Sub(prev).Mul(l.TotalSize(side)))
	if retired.IsPositive() {
		state.Assign(l.j, &l.insurance, fund)
	}
	l.out.Emit(&event.ParameterChanged{Name: name, Previous: prev, Value: value, ShortfallRetired: retired})
	return nil
}

// SocialLossPerContract returns the social-loss accumulator of side.
func (l *Perpetual) SocialLossPerContract(side state.Side) fpmath.Int {
	if side == state.SideShort {
		return l.shortSocialLoss
	}
	if side == state.SideLong {
		return l.longSocialLoss
	}
	return fpmath.Zero
}

// GrantRole gives role to id. Governance only.
func (l *Perpetual) GrantRole(c state.Call, role state.Role, id uuid.UUID) error {
	return l.changeRole(c, role, id, true)
}

// RevokeRole removes role from id. Governance only.
func (l *Perpetual) RevokeRole(c state.Call, role state.Role, id uuid.UUID) error {
	return l.changeRole(c, role, id, false)
}

func (l *Perpetual) changeRole(c state.Call, role state.Role, id uuid.UUID, grant bool) error {
	const op = "change role"
	return l.Atomic(func() error {
		if err := l.auth.Authorize(op, c.Caller, uuid.Nil, state.RoleGovernance); err != nil {
			return err
		}
		if role == state.RoleSelf || role.String() == "unknown" {
			return state.Errorf(state.InvalidParameter, op, "role %d cannot be assigned", role)
		}
		if grant {
			l.auth.Grant(l.j, role, id)
		} else {
			l.auth.Revoke(l.j, role, id)
		}
		l.out.Emit(&event.RoleChanged{Account: id, Role: role.String(), Granted: grant})
		return nil
	})
}
