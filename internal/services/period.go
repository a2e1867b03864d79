package services

import (
	"time"

	"etkash_go_backend/internal/models"
)

// nextPeriod advances [start, end) one month at a time until now falls inside it.
func nextPeriod(start, end, now time.Time) (time.Time, time.Time) {
	for !now.Before(end) {
		start = end
		end = start.AddDate(0, 1, 0)
	}
	return start, end
}

func periodExpired(usage *models.UserTokenUsage, now time.Time) bool {
	return !now.Before(usage.MonthEndDate)
}

// rollForward rewrites an in-memory copy of a stale row into the window that
// contains now. It does not touch the store.
func rollForward(usage *models.UserTokenUsage, now time.Time) {
	if !periodExpired(usage, now) {
		return
	}
	usage.MonthStartDate, usage.MonthEndDate = nextPeriod(usage.MonthStartDate, usage.MonthEndDate, now)
	usage.TokensUsed = 0
}
