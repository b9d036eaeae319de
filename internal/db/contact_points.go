package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
)

// UpsertContactPoint inserts a contact point or replaces the address of an existing one.
func (d *DB) UpsertContactPoint(ctx context.Context, cp models.ContactPoint) error {
	query := `
	INSERT INTO contact_points (user_id, channel, address, created_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	ON CONFLICT (user_id, channel)
	DO UPDATE SET address = EXCLUDED.address, updated_at = NOW()`

	_, err := d.Pool.Exec(ctx, query, cp.UserID, string(cp.Channel), cp.Address)
	if err != nil {
		return fmt.Errorf("failed to upsert contact point: %w", err)
	}
	return nil
}

// GetContactAddress returns the address registered for a user on a channel.
func (d *DB) GetContactAddress(ctx context.Context, userID string, channel models.Channel) (string, error) {
	query := `
	SELECT address
	FROM contact_points
	WHERE user_id = $1 AND channel = $2`

	var address string
	err := d.Pool.QueryRow(ctx, query, userID, string(channel)).Scan(&address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrContactNotFound
		}
		return "", fmt.Errorf("failed to get contact point for user %s: %w", userID, err)
	}
	if address == "" {
		return "", store.ErrContactNotFound
	}
	return address, nil
}
