// This file contains database methods for ApiKey issuance and lookup.

package database

import (
	"fmt"
	"strings"
	"time"

	"avatarbackend/internal/models"
)

// CreateAPIKey inserts a new API key record. secretHash is the bcrypt hash
// of the caller-visible secret; only the hash is ever persisted.
func (db *DB) CreateAPIKey(ownerID int, secretHash, displayPrefix string, resources []string, expiresAt *time.Time) (*models.ApiKey, error) {
	query := `
        INSERT INTO api_keys (owner_id, secret_hash, display_prefix, resources, active, expires_at, created_at)
        VALUES ($1, $2, $3, $4, true, $5, $6)
        RETURNING id, owner_id, secret_hash, display_prefix, resources, active, expires_at, last_used_at, created_at`
	var created models.ApiKey
	err := db.Get(&created, query, ownerID, secretHash, displayPrefix, strings.Join(resources, ","), expiresAt, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	created.Resources = resources
	return &created, nil
}

// GetAPIKeysByPrefix finds active keys matching a display prefix, for the
// caller to bcrypt-compare the presented secret against.
func (db *DB) GetAPIKeysByPrefix(displayPrefix string) ([]models.ApiKey, error) {
	var keys []models.ApiKey
	query := `
        SELECT id, owner_id, secret_hash, display_prefix, resources, active, expires_at, last_used_at, created_at
        FROM api_keys WHERE display_prefix = $1 AND active = true`
	if err := db.Select(&keys, query, displayPrefix); err != nil {
		return nil, fmt.Errorf("failed to look up api keys for prefix %q: %w", displayPrefix, err)
	}
	for i := range keys {
		if keys[i].ResourcesRaw != "" {
			keys[i].Resources = strings.Split(keys[i].ResourcesRaw, ",")
		}
	}
	return keys, nil
}

// TouchAPIKey records the last-used timestamp for a key after a successful auth.
func (db *DB) TouchAPIKey(id string) error {
	_, err := db.Exec(`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch api key %q: %w", id, err)
	}
	return nil
}

// RevokeAPIKey deactivates a key so it can no longer authenticate.
func (db *DB) RevokeAPIKey(id string) error {
	_, err := db.Exec(`UPDATE api_keys SET active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key %q: %w", id, err)
	}
	return nil
}
