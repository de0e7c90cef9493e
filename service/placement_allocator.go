package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"fundledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	maxCounterpartyLength = 255
	// Rates are stored as NUMERIC(10,5)
	ratePlaces   = 5
	maxTenorDays = 100 * 365
)

// maxRate is the first rate NUMERIC(10,5) cannot hold
var maxRate = decimal.NewFromInt(100000)

// allocation is the result of deploying a close's deposits into a new placement
type allocation struct {
	Placement *models.Placement
	Stakes    []userStake
}

// userStake is one user's share of a new placement
type userStake struct {
	UserID string
	Amount decimal.Decimal
}

// validatePlacementParams checks the four mandatory placement terms
func validatePlacementParams(params *models.PlacementParams) error {
	counterparty := strings.TrimSpace(params.Counterparty)
	switch {
	case counterparty == "":
		return fmt.Errorf("%w: counterparty is required", ErrInvalidPlacementParams)
	case utf8.RuneCountInString(counterparty) > maxCounterpartyLength:
		return fmt.Errorf("%w: counterparty longer than %d characters", ErrInvalidPlacementParams, maxCounterpartyLength)
	case params.TenorDays <= 0:
		return fmt.Errorf("%w: tenor must be at least one day, got %d", ErrInvalidPlacementParams, params.TenorDays)
	case params.TenorDays > maxTenorDays:
		return fmt.Errorf("%w: tenor of %d days exceeds %d", ErrInvalidPlacementParams, params.TenorDays, maxTenorDays)
	}
	if err := checkRate("yield rate", params.YieldRate); err != nil {
		return err
	}
	return checkRate("early exit rate", params.EarlyExitRate)
}

// checkRate rejects rates the placements table would round or overflow
func checkRate(name string, rate decimal.Decimal) error {
	switch {
	case rate.IsNegative():
		return fmt.Errorf("%w: %s %s is negative", ErrInvalidPlacementParams, name, rate)
	case rate.GreaterThanOrEqual(maxRate):
		return fmt.Errorf("%w: %s %s must be below %s", ErrInvalidPlacementParams, name, rate, maxRate)
	case !rate.Equal(rate.Truncate(ratePlaces)):
		return fmt.Errorf("%w: %s %s has more than %d decimal places", ErrInvalidPlacementParams, name, rate, ratePlaces)
	}
	return nil
}

// aggregateStakes merges deposits per user, keeping first-seen order
func aggregateStakes(deposits []*models.PendingRequest) []userStake {
	index := make(map[string]int, len(deposits))
	var stakes []userStake
	for _, d := range deposits {
		if i, ok := index[d.UserID]; ok {
			stakes[i].Amount = stakes[i].Amount.Add(d.Amount)
			continue
		}
		index[d.UserID] = len(stakes)
		stakes = append(stakes, userStake{UserID: d.UserID, Amount: d.Amount})
	}
	return stakes
}

// allocatePlacement opens a placement holding exactly the sum of deposits and
// credits each depositor with their own amount. Deposits must be non-empty.
func allocatePlacement(ctx context.Context, uow UnitOfWork, startDate time.Time, params *models.PlacementParams, deposits []*models.PendingRequest) (*allocation, error) {
	if err := validatePlacementParams(params); err != nil {
		return nil, err
	}

	stakes := aggregateStakes(deposits)
	principal := decimal.Zero
	for _, s := range stakes {
		principal = principal.Add(s.Amount)
	}

	placement := &models.Placement{
		Counterparty:  strings.TrimSpace(params.Counterparty),
		Principal:     principal,
		YieldRate:     params.YieldRate,
		EarlyExitRate: params.EarlyExitRate,
		StartDate:     models.DateOnly(startDate),
		MaturityDate:  params.MaturityFrom(startDate),
	}
	if err := uow.PlacementRepository().Create(ctx, placement); err != nil {
		return nil, fmt.Errorf("failed to create placement: %w", err)
	}

	for _, s := range stakes {
		if err := uow.OwnershipRepository().AddPrincipal(ctx, s.UserID, placement.ID, s.Amount); err != nil {
			return nil, fmt.Errorf("failed to credit ownership for user %s: %w", s.UserID, err)
		}
	}

	log.WithFields(log.Fields{
		"placementID":  placement.ID,
		"counterparty": placement.Counterparty,
		"principal":    principal.StringFixed(models.CurrencyPlaces),
		"maturity":     placement.MaturityDate.Format(models.DateLayout),
		"owners":       len(stakes),
	}).Info("Placement opened")

	return &allocation{Placement: placement, Stakes: stakes}, nil
}
