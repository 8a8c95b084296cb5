package entitlements

import (
	"context"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"
)

type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateExpired  State = "expired"
	StateRevoked  State = "revoked"
)

type Trigger string

const (
	TriggerGrant  Trigger = "grant"
	TriggerRenew  Trigger = "renew"
	TriggerRevoke Trigger = "revoke"
)

// GrantPeriodMonths is how long one confirmed payment keeps an entitlement active.
const GrantPeriodMonths = 1

// State derives the lifecycle state from the stored fields. There is no
// sweeper, so an entitlement past its expiry reads as expired here.
func (e Entitlement) State(now time.Time) State {
	if !e.Tier.IsPaid() {
		if e.RevokedAt != nil {
			return StateRevoked
		}
		return StateInactive
	}
	if e.ExpiresAt == nil || !now.Before(*e.ExpiresAt) {
		return StateExpired
	}
	return StateActive
}

// Change is a single requested transition.
type Change struct {
	Trigger Trigger
	// Tier is required for grants and ignored otherwise.
	Tier Tier
	At   time.Time
}

// Result describes what Apply did.
type Result struct {
	From    State
	To      State
	Next    Entitlement
	Changed bool
}

// Apply runs change against current and returns the resulting entitlement.
// Triggers that make no sense in the current state (renewing or revoking an
// entitlement that was never granted) are ignored and reported as unchanged.
func Apply(ctx context.Context, current Entitlement, change Change) (Result, error) {
	if change.Trigger == TriggerGrant && !change.Tier.IsPaid() {
		return Result{}, fmt.Errorf("grant requires a paid tier, got %q", change.Tier)
	}

	from := current.State(change.At)
	res := Result{From: from, To: from, Next: current}

	expires := change.At.AddDate(0, GrantPeriodMonths, 0)
	grant := func(_ context.Context, _ ...any) error {
		res.Next = Entitlement{Tier: change.Tier, ExpiresAt: &expires}
		res.Changed = true
		return nil
	}
	renew := func(_ context.Context, _ ...any) error {
		res.Next = Entitlement{Tier: current.Tier, ExpiresAt: &expires}
		res.Changed = true
		return nil
	}
	revoke := func(_ context.Context, _ ...any) error {
		at := change.At
		res.Next = Entitlement{Tier: TierNone, RevokedAt: &at}
		res.Changed = true
		return nil
	}

	machine := stateless.NewStateMachine(from)

	machine.Configure(StateInactive).
		Permit(TriggerGrant, StateActive).
		Ignore(TriggerRenew).
		Ignore(TriggerRevoke)

	machine.Configure(StateActive).
		OnEntryFrom(TriggerGrant, grant).
		OnEntryFrom(TriggerRenew, renew).
		PermitReentry(TriggerGrant).
		PermitReentry(TriggerRenew).
		Permit(TriggerRevoke, StateRevoked)

	machine.Configure(StateExpired).
		Permit(TriggerGrant, StateActive).
		Permit(TriggerRenew, StateActive).
		Permit(TriggerRevoke, StateRevoked)

	machine.Configure(StateRevoked).
		OnEntryFrom(TriggerRevoke, revoke).
		Permit(TriggerGrant, StateActive).
		Ignore(TriggerRenew).
		Ignore(TriggerRevoke)

	if err := machine.FireCtx(ctx, change.Trigger); err != nil {
		return Result{}, fmt.Errorf("entitlement transition %s from %s failed: %w", change.Trigger, from, err)
	}

	res.To = machine.MustState().(State)
	return res, nil
}
