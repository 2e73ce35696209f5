package service

import (
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// offsetStep nets one attribute group. Offset is signed opposite to the
// group total, i.e. with the sign of the incoming movement.
type offsetStep struct {
	group  domain.AttributeGroup
	offset decimal.Decimal
}

type nettingPlan struct {
	steps    []offsetStep
	residual decimal.Decimal
}

// planNetting decides how much of amount each group absorbs. Overridden
// groups are reserved first; the rest of |amount| is then handed out oldest
// group first, each taking min(|total|, what is left). Groups that would
// receive nothing are left out of the plan.
func planNetting(amount decimal.Decimal, groups domain.AttributeGroups, overrides []ports.GroupOverride) (*nettingPlan, error) {
	byKey := make(map[domain.KeyID]decimal.Decimal, len(overrides))
	for _, o := range overrides {
		id := o.Key.ID()
		if _, dup := byKey[id]; dup {
			return nil, apperror.Validation(fmt.Sprintf("duplicate offset for %s", o.Key.Label()))
		}
		if o.Amount.IsNegative() {
			return nil, apperror.Validation(fmt.Sprintf("offset for %s must not be negative", o.Key.Label()))
		}
		if _, ok := groups.Find(o.Key); !ok {
			return nil, apperror.Validation(fmt.Sprintf("no outstanding allocation for %s", o.Key.Label()))
		}
		byKey[id] = o.Amount
	}

	unreserved := amount.Abs()
	for _, g := range groups {
		requested, ok := byKey[g.Key.ID()]
		if !ok {
			continue
		}
		available := g.Total.Abs()
		if requested.GreaterThan(available) {
			return nil, apperror.ErrOffsetExceedsGroup(g.Key.Label(), requested.String(), available.String())
		}
		if requested.GreaterThan(unreserved) {
			return nil, apperror.ErrOffsetExceedsMovement(g.Key.Label(), requested.String(), unreserved.String())
		}
		unreserved = unreserved.Sub(requested)
	}

	plan := &nettingPlan{residual: amount}
	for _, g := range groups {
		magnitude, ok := byKey[g.Key.ID()]
		if !ok {
			magnitude = decimal.Min(g.Total.Abs(), unreserved)
			unreserved = unreserved.Sub(magnitude)
		}
		if magnitude.IsZero() {
			continue
		}

		offset := magnitude
		if g.Total.IsPositive() {
			offset = magnitude.Neg()
		}
		plan.steps = append(plan.steps, offsetStep{group: g, offset: offset})
		plan.residual = plan.residual.Sub(offset)
	}
	return plan, nil
}
