// This file contains the UsageCounter persistence the UsageAccountant
// layers exactly-once semantics on top of.

package database

import (
	"fmt"

	"avatarbackend/internal/models"
)

// GetUsage retrieves a user's current usage counter for a resource, along
// with its configured limit. A missing row means the user has never
// consumed that resource; callers should treat it as zero-used.
func (db *DB) GetUsage(ownerID int, resource string) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	query := `
        SELECT owner_id, resource, used, usage_limit, billing_anchor
        FROM usage_counters
        WHERE owner_id = $1 AND resource = $2`
	if err := db.Get(&counter, query, ownerID, resource); err != nil {
		return nil, err
	}
	return &counter, nil
}

// IncrementUsage atomically adds amount to a user's usage counter in a
// single statement, creating the row with a zero starting point on first
// use, and returns the counter's new total. The UPDATE/INSERT race is
// closed by ON CONFLICT, so no transaction or row lock is needed beyond
// what Postgres already does for the upsert.
func (db *DB) IncrementUsage(ownerID int, resource string, amount float64, defaultLimit float64) (float64, error) {
	var newTotal float64
	query := `
        INSERT INTO usage_counters (owner_id, resource, used, usage_limit, billing_anchor)
        VALUES ($1, $2, $3, $4, date_trunc('month', NOW()))
        ON CONFLICT (owner_id, resource) DO UPDATE
            SET used = usage_counters.used + EXCLUDED.used
        RETURNING used`
	if err := db.Get(&newTotal, query, ownerID, resource, amount, defaultLimit); err != nil {
		return 0, fmt.Errorf("failed to increment usage for owner %d resource %q: %w", ownerID, resource, err)
	}
	return newTotal, nil
}

// ResetUsageForBillingPeriod zeroes every counter whose billing_anchor has
// rolled to a prior month, advancing the anchor to the current month.
func (db *DB) ResetUsageForBillingPeriod() (int64, error) {
	query := `
        UPDATE usage_counters
        SET used = 0, billing_anchor = date_trunc('month', NOW())
        WHERE billing_anchor < date_trunc('month', NOW())`
	res, err := db.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset usage counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
