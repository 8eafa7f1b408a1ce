package scheduler

import (
	"sort"
	"time"

	"github.com/okorotkov/fleetsync/internal/domain"
)

// Pick selects the next account to process. Only stale accounts qualify;
// among them, accounts flagged Under Review take absolute priority, and
// within the chosen pool the stalest wins. A zero LastUpdate (never updated
// or malformed) sorts as the oldest possible, so such accounts are picked
// first. Returns nil when no account qualifies.
func Pick(accounts []domain.Account, now time.Time, staleAfter time.Duration) *domain.Account {
	var stale []domain.Account
	for _, a := range accounts {
		if a.Stale(now, staleAfter) {
			stale = append(stale, a)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	var underReview []domain.Account
	for _, a := range stale {
		if a.Status == domain.StatusUnderReview {
			underReview = append(underReview, a)
		}
	}

	pool := stale
	if len(underReview) > 0 {
		pool = underReview
	}

	sort.SliceStable(pool, func(i, j int) bool {
		// zero times compare before everything else
		return pool[i].LastUpdate.Before(pool[j].LastUpdate)
	})

	picked := pool[0]
	return &picked
}
