// This file contains database methods for the live conversation Session
// and its transcript, persisted once the SessionMediator's event loop ends
// rather than incrementally while the conversation is in flight.

package database

import (
	"fmt"
	"time"

	"avatarbackend/internal/models"
)

// CreateSession inserts a new Session row in "connecting" status.
func (db *DB) CreateSession(session *models.Session) (*models.Session, error) {
	query := `
        INSERT INTO sessions (owner_id, avatar_id, kind, language, started_at, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, owner_id, avatar_id, kind, language, started_at, ended_at, status`
	var created models.Session
	err := db.Get(&created, query, session.OwnerID, session.AvatarID, session.Kind,
		session.Language, session.StartedAt, models.SessionStatusConnecting)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &created, nil
}

// UpdateSessionStatus moves a session to a new status (ready, active, ended, failed).
func (db *DB) UpdateSessionStatus(sessionID, status string) error {
	_, err := db.Exec(`UPDATE sessions SET status = $1 WHERE id = $2`, status, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session %q status: %w", sessionID, err)
	}
	return nil
}

// EndSession marks a session ended and, within the same transaction,
// appends its full transcript. Using a single transaction here mirrors
// the commit-or-rollback-together guarantee a multi-statement write needs:
// a session should never show as ended with a partial transcript.
func (db *DB) EndSession(sessionID string, status string, transcript []models.TranscriptEntry) (err error) {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.Exec(`UPDATE sessions SET status = $1, ended_at = $2 WHERE id = $3`, status, now, sessionID); err != nil {
		return fmt.Errorf("failed to mark session %q ended: %w", sessionID, err)
	}

	for i, entry := range transcript {
		if _, err = tx.Exec(
			`INSERT INTO session_transcripts (session_id, seq, role, text) VALUES ($1, $2, $3, $4)`,
			sessionID, i, entry.Role, entry.Text,
		); err != nil {
			return fmt.Errorf("failed to insert transcript entry %d for session %q: %w", i, sessionID, err)
		}
	}

	return nil
}

// GetSessionByID retrieves a session by ID.
func (db *DB) GetSessionByID(id string) (*models.Session, error) {
	var session models.Session
	query := `SELECT id, owner_id, avatar_id, kind, language, started_at, ended_at, status FROM sessions WHERE id = $1`
	if err := db.Get(&session, query, id); err != nil {
		return nil, fmt.Errorf("failed to get session %q: %w", id, err)
	}
	return &session, nil
}

// GetSessionTranscript retrieves a session's transcript in turn order.
func (db *DB) GetSessionTranscript(sessionID string) ([]models.TranscriptEntry, error) {
	var entries []models.TranscriptEntry
	query := `SELECT role, text FROM session_transcripts WHERE session_id = $1 ORDER BY seq ASC`
	if err := db.Select(&entries, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get transcript for session %q: %w", sessionID, err)
	}
	return entries, nil
}

// CheckSessionOwnership reports whether the given user owns the given session.
func (db *DB) CheckSessionOwnership(sessionID string, ownerID int) (bool, error) {
	var owns bool
	query := `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1 AND owner_id = $2)`
	if err := db.Get(&owns, query, sessionID, ownerID); err != nil {
		return false, fmt.Errorf("failed to check session ownership: %w", err)
	}
	return owns, nil
}
