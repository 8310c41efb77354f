// Package usage accounts for a user's consumption of metered resources
// (audio minutes, video minutes, conversation minutes, avatar creations,
// API calls) against a monthly limit, and enforces that limit before a job
// or session is allowed to start.
package usage

import (
	"fmt"

	"avatarbackend/internal/apperr"
	"avatarbackend/internal/database"
	"avatarbackend/internal/models"
)

// defaultLimits holds the fallback monthly limit per resource, used only
// when a user has no usage_counters row yet (IncrementUsage upserts one
// with this limit on first use).
var defaultLimits = map[string]float64{
	models.ResourceAudioMinutes:        120,
	models.ResourceVideoMinutes:        60,
	models.ResourceConversationMinutes: 180,
	models.ResourceAvatarCreations:     20,
	models.ResourceAPICalls:            10000,
}

// Accountant enforces and records per-user resource usage.
type Accountant struct {
	db *database.DB
}

// New constructs an Accountant.
func New(db *database.DB) *Accountant {
	return &Accountant{db: db}
}

// CheckQuota returns an apperr.KindQuotaExceeded error if consuming amount
// more of resource would push the user over their monthly limit.
func (a *Accountant) CheckQuota(ownerID int, resource string, amount float64) error {
	counter, err := a.db.GetUsage(ownerID, resource)
	if err != nil {
		// No row yet means no usage recorded; nothing to check against.
		return nil
	}
	if counter.Used+amount > counter.Limit {
		return apperr.New(apperr.KindQuotaExceeded,
			fmt.Sprintf("%s quota exceeded: %.2f used, %.2f requested, %.2f limit", resource, counter.Used, amount, counter.Limit))
	}
	return nil
}

// Commit records amount consumed of resource against ownerID's monthly
// counter. Callers are expected to guard each logical unit of work (one
// job, one session) with a sync.Once so a retry or duplicate event never
// commits usage twice.
func (a *Accountant) Commit(ownerID int, resource string, amount float64) error {
	limit, ok := defaultLimits[resource]
	if !ok {
		limit = 0
	}
	_, err := a.db.IncrementUsage(ownerID, resource, amount, limit)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreError, "failed to commit usage", err)
	}
	return nil
}
