package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditSnapshot is a consistent read of ownership, placements and the registry
type AuditSnapshot struct {
	Ownership  []*OwnershipView
	Placements []*Placement
	Registry   *FundRegistry
	TakenAt    time.Time
}

// TotalOwnership sums principal owned across every ownership row in the snapshot
func (s *AuditSnapshot) TotalOwnership() decimal.Decimal {
	total := decimal.Zero
	for _, o := range s.Ownership {
		total = total.Add(o.PrincipalOwned)
	}
	return total
}

// TotalPrincipal sums placement principal
func (s *AuditSnapshot) TotalPrincipal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Placements {
		total = total.Add(p.Principal)
	}
	return total
}

// TotalAccrued sums the unallocated interest buckets
func (s *AuditSnapshot) TotalAccrued() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Placements {
		total = total.Add(p.AccruedInterest)
	}
	return total
}

// Reconciliation compares the three views of invested money
type Reconciliation struct {
	TotalOwnership       decimal.Decimal
	TotalPrincipal       decimal.Decimal
	RegistryInvested     decimal.Decimal
	OwnershipVsPrincipal decimal.Decimal // TotalOwnership - TotalPrincipal
	PrincipalVsRegistry  decimal.Decimal // TotalPrincipal - RegistryInvested
	Epsilon              decimal.Decimal
	Balanced             bool
}

// Reconcile checks Σownership = Σprincipal = registry.invested within epsilon
func (s *AuditSnapshot) Reconcile(epsilon decimal.Decimal) *Reconciliation {
	r := &Reconciliation{
		TotalOwnership:   s.TotalOwnership(),
		TotalPrincipal:   s.TotalPrincipal(),
		RegistryInvested: decimal.Zero,
		Epsilon:          epsilon,
	}
	if s.Registry != nil {
		r.RegistryInvested = s.Registry.TotalInvested
	}
	r.OwnershipVsPrincipal = r.TotalOwnership.Sub(r.TotalPrincipal)
	r.PrincipalVsRegistry = r.TotalPrincipal.Sub(r.RegistryInvested)
	r.Balanced = r.OwnershipVsPrincipal.Abs().LessThanOrEqual(epsilon) &&
		r.PrincipalVsRegistry.Abs().LessThanOrEqual(epsilon)
	return r
}

// FundStatus is the operator dashboard summary of the fund
type FundStatus struct {
	IdleCash         decimal.Decimal
	TotalInvested    decimal.Decimal
	TotalLiability   decimal.Decimal // Σ ownership
	AccruedInterest  decimal.Decimal // Σ unallocated interest
	LastCloseDate    *time.Time
	NextExpectedDate time.Time
}
