package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistenceError(t *testing.T) {
	storage := errors.New("connection refused")
	wrapped := persistenceError("failed to lock registry", storage)
	assert.ErrorIs(t, wrapped, ErrPersistence)
	assert.ErrorIs(t, wrapped, storage)

	domain := persistenceError("failed to write daily report", fmt.Errorf("%w: 2026-01-01", ErrDuplicateReportDate))
	assert.ErrorIs(t, domain, ErrDuplicateReportDate)
	assert.NotErrorIs(t, domain, ErrPersistence)
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "none", ErrorReason(nil))
	assert.Equal(t, "calendar_gap", ErrorReason(fmt.Errorf("close: %w", ErrCalendarGap)))
	assert.Equal(t, "duplicate_or_past_date", ErrorReason(ErrDuplicateOrPastDate))
	assert.Equal(t, "persistence", ErrorReason(errors.New("disk full")))
}
