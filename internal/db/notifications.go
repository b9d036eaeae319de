package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/store"
)

const recordColumns = `
    id, user_id, title, message, type, channels, priority, data, action_url, action_text,
    created_at, scheduled_for, expires_at, read, clicked, delivery_status, delivery_results, updated_at`

func (d *DB) InsertNotificationRecord(ctx context.Context, rec models.NotificationRecord) error {
	data, status, results, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO notifications (` + recordColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = d.Pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Title, rec.Message, string(rec.Type), channelStrings(rec.Channels),
		rec.Priority, data, rec.ActionURL, rec.ActionText, rec.CreatedAt, rec.ScheduledFor,
		rec.ExpiresAt, rec.Read, rec.Clicked, status, results, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (d *DB) ReplaceNotificationRecord(ctx context.Context, rec models.NotificationRecord) error {
	_, status, results, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	query := `
        UPDATE notifications
        SET delivery_status = $1, delivery_results = $2, updated_at = $3
        WHERE id = $4`
	tag, err := d.Pool.Exec(ctx, query, status, results, rec.UpdatedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update notification %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) GetNotificationRecord(ctx context.Context, userID, notificationID string) (*models.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`
	rec, err := scanRecord(d.Pool.QueryRow(ctx, query, notificationID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification %s: %w", notificationID, err)
	}
	return rec, nil
}

func (d *DB) InsertNotificationHistoryRecord(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}
	query := `
        INSERT INTO notification_history (
            id, user_id, title, message, type, priority, data, action_url, action_text,
            created_at, expires_at, read, clicked
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO NOTHING`
	_, err = d.Pool.Exec(ctx, query,
		n.ID, n.UserID, n.Title, n.Message, string(n.Type), n.Priority, data, n.ActionURL,
		n.ActionText, n.CreatedAt, n.ExpiresAt, n.Read, n.Clicked)
	if err != nil {
		return fmt.Errorf("failed to create notification history: %w", err)
	}
	return nil
}

func (d *DB) UpdateNotificationFlags(ctx context.Context, notificationID, userID string, flags store.FlagUpdate) error {
	sets, args := flagAssignments(flags)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, notificationID, userID)
	n := len(args)

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`UPDATE notifications SET %s, updated_at = NOW() WHERE id = $%d AND user_id = $%d`,
		strings.Join(sets, ", "), n-1, n)
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification flags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	query = fmt.Sprintf(`UPDATE notification_history SET %s WHERE id = $%d AND user_id = $%d`,
		strings.Join(sets, ", "), n-1, n)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update notification history flags: %w", err)
	}
	return tx.Commit(ctx)
}

func (d *DB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE notifications SET read = TRUE, updated_at = NOW() WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read for user %s: %w", userID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE notification_history SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID); err != nil {
		return 0, fmt.Errorf("failed to mark history read for user %s: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit mark-all-read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (d *DB) CountNotifications(ctx context.Context, f store.Filter) (int64, error) {
	where, args := whereClause(f)
	var total int64
	if err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return total, nil
}

func (d *DB) FindNotifications(ctx context.Context, f store.Filter, opts store.FindOptions) ([]models.NotificationRecord, error) {
	where, args := whereClause(f)
	query := `SELECT ` + recordColumns + ` FROM notifications` + where
	if opts.Sort == store.OldestFirst {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	defer rows.Close()

	list := []models.NotificationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return list, nil
}

func whereClause(f store.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Channel != "" {
		add("$%d = ANY(channels)", string(f.Channel))
	}
	if f.Read != nil {
		add("read = $%d", *f.Read)
	}
	if f.Clicked != nil {
		add("clicked = $%d", *f.Clicked)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func flagAssignments(flags store.FlagUpdate) ([]string, []any) {
	var sets []string
	var args []any
	if flags.Read != nil {
		args = append(args, *flags.Read)
		sets = append(sets, fmt.Sprintf("read = $%d", len(args)))
	}
	if flags.Clicked != nil {
		args = append(args, *flags.Clicked)
		sets = append(sets, fmt.Sprintf("clicked = $%d", len(args)))
	}
	return sets, args
}

func scanRecord(row pgx.Row) (*models.NotificationRecord, error) {
	var (
		rec                     models.NotificationRecord
		typ                     string
		channels                []string
		data, status, results   []byte
		scheduledFor, expiresAt *time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.Message, &typ, &channels, &rec.Priority, &data,
		&rec.ActionURL, &rec.ActionText, &rec.CreatedAt, &scheduledFor, &expiresAt, &rec.Read,
		&rec.Clicked, &status, &results, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Type = models.Type(typ)
	rec.ScheduledFor = scheduledFor
	rec.ExpiresAt = expiresAt
	rec.Channels = make([]models.Channel, len(channels))
	for i, c := range channels {
		rec.Channels[i] = models.Channel(c)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data: %w", err)
		}
	}
	if err := json.Unmarshal(status, &rec.DeliveryStatus); err != nil {
		return nil, fmt.Errorf("failed to decode delivery_status: %w", err)
	}
	if err := json.Unmarshal(results, &rec.DeliveryResults); err != nil {
		return nil, fmt.Errorf("failed to decode delivery_results: %w", err)
	}
	return &rec, nil
}

func marshalRecord(rec models.NotificationRecord) (data, status, results []byte, err error) {
	if data, err = json.Marshal(rec.Data); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode notification data: %w", err)
	}
	if status, err = json.Marshal(rec.DeliveryStatus); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode delivery status: %w", err)
	}
	if results, err = json.Marshal(rec.DeliveryResults); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode delivery results: %w", err)
	}
	return data, status, results, nil
}

func channelStrings(channels []models.Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}
