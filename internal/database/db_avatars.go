// This file contains database methods for reading Avatar rows. Avatar
// creation and editing happen in an excluded management surface; the core
// only ever reads avatars by ID and lists the ones a user may select from.

package database

import (
	"fmt"

	"avatarbackend/internal/models"
)

// GetAvatarByID retrieves a single avatar by its ID, regardless of owner,
// so a caller can decide for itself whether to enforce ownership or
// fall back to IsPublic visibility.
func (db *DB) GetAvatarByID(id string) (*models.Avatar, error) {
	var avatar models.Avatar
	query := `
        SELECT id, owner_id, display_name, image_url, voice_sample_url, persona_prompt, language, is_public
        FROM avatars
        WHERE id = $1`
	if err := db.Get(&avatar, query, id); err != nil {
		return nil, fmt.Errorf("failed to get avatar %q: %w", id, err)
	}
	return &avatar, nil
}

// ListAvatarsForUser returns every avatar a user may select from: the ones
// they own plus any marked public.
func (db *DB) ListAvatarsForUser(ownerID int) ([]models.Avatar, error) {
	var avatars []models.Avatar
	query := `
        SELECT id, owner_id, display_name, image_url, voice_sample_url, persona_prompt, language, is_public
        FROM avatars
        WHERE owner_id = $1 OR is_public = true
        ORDER BY display_name ASC`
	if err := db.Select(&avatars, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list avatars for user %d: %w", ownerID, err)
	}
	return avatars, nil
}
