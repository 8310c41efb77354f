// This file contains database methods related to user management.

package database

import (
	"fmt"

	"avatarbackend/internal/models"
)

// CreateUser creates a new user with a username and hashed password.
func (db *DB) CreateUser(username, hashedPassword string) (*models.User, error) {
	query := `
        INSERT INTO users (username, hashed_password, provider)
        VALUES ($1, $2, 'password')
        RETURNING id, username, hashed_password, provider, provider_id, role, created_at`
	var newUser models.User
	err := db.Get(&newUser, query, username, hashedPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &newUser, nil
}

// FindOrCreateGoogleUser finds a user by their Google provider ID or creates a new one.
// If a user with the same email already exists (as a local account), it links the Google ID to it.
// This is achieved in a single, atomic, and non-locking query using ON CONFLICT.
func (db *DB) FindOrCreateGoogleUser(email, providerID string) (*models.User, error) {
	var user models.User
	query := `
        WITH ins AS (
            INSERT INTO users (username, provider, provider_id)
            VALUES ($1, 'google', $2)
            ON CONFLICT (username) DO UPDATE
                SET provider = 'google', provider_id = EXCLUDED.provider_id, hashed_password = NULL
                WHERE users.provider = 'password'
            RETURNING id
        )
        SELECT id, username, hashed_password, provider, provider_id, role, created_at
        FROM users
        WHERE id = (
            SELECT id FROM ins
            UNION ALL
            SELECT id FROM users WHERE provider = 'google' AND provider_id = $2 AND NOT EXISTS (SELECT 1 FROM ins)
            LIMIT 1
        )`
	err := db.Get(&user, query, email, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create google user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by their numeric ID.
func (db *DB) GetUserByID(id int) (*models.User, error) {
	var user models.User
	err := db.Get(&user, `SELECT id, username, hashed_password, provider, provider_id, role, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by their username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := db.Get(&user, `SELECT id, username, hashed_password, provider, provider_id, role, created_at FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserRole updates the role for a specific user.
func (db *DB) UpdateUserRole(userID int, newRole string) error {
	query := `UPDATE users SET role = $1 WHERE id = $2`
	_, err := db.Exec(query, newRole, userID)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return nil
}

// DeleteUser permanently deletes a user and all their associated data via cascading deletes.
func (db *DB) DeleteUser(userID int) error {
	_, err := db.Exec(`DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
