package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetProfile fetches the session's profile. Returns ErrNotFound for a brand
// new session.
func (s *Store) GetProfile(ctx context.Context, sessionID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx,
		`SELECT session_id, name, age, onboarding_complete, created_at
		 FROM users
		 WHERE session_id = $1`,
		sessionID).
		Scan(&p.SessionID, &p.Name, &p.Age, &p.OnboardingComplete, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}

// CreateProfile inserts an empty profile for a new session. Idempotent.
func (s *Store) CreateProfile(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (session_id) VALUES ($1)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	s.cache.invalidate(sessionID)
	return nil
}

// SetProfileName records the user's name.
func (s *Store) SetProfileName(ctx context.Context, sessionID, name string) error {
	return s.updateProfile(ctx, sessionID, "name", name)
}

// SetProfileAge records the user's age (free text; "Unknown" when the user
// declined to give one).
func (s *Store) SetProfileAge(ctx context.Context, sessionID, age string) error {
	return s.updateProfile(ctx, sessionID, "age", age)
}

// CompleteOnboarding marks onboarding as finished.
func (s *Store) CompleteOnboarding(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET onboarding_complete = TRUE, updated_at = now()
		 WHERE session_id = $1`,
		sessionID)
	if err != nil {
		return fmt.Errorf("completing onboarding: %w", err)
	}
	s.cache.invalidate(sessionID)
	return nil
}

func (s *Store) updateProfile(ctx context.Context, sessionID, column, value string) error {
	// column comes from the two fixed callers above, never from input.
	_, err := s.db.Exec(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = now() WHERE session_id = $1`,
		sessionID, value)
	if err != nil {
		return fmt.Errorf("updating profile %s: %w", column, err)
	}
	s.cache.invalidate(sessionID)
	return nil
}
