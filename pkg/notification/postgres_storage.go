package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL-backed implementation of the Store interface.
// The conditional transition maps onto a single UPDATE with a status guard,
// so optimistic concurrency comes for free from row-level locking.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed notification store.
// Run Migrate against the same pool before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const notificationColumns = `id, recipient_id, group_id, type, priority, title, body,
	payload, channels, relevance, template_id, rule_id, status, acted_action,
	created_at, scheduled_for, read_at, acted_upon_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, n *Notification) error {
	if n.RecipientID == "" {
		return ErrMissingRecipient
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Status == "" {
		n.Status = StatusPending
	}

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		n.ID, n.RecipientID, n.GroupID, n.Type, n.Priority, n.Title, n.Body,
		payload, channelStrings(n.Channels), n.Relevance,
		nullUUID(n.TemplateID), nullUUID(n.RuleID), n.Status, n.ActedAction,
		n.CreatedAt, n.ScheduledFor, n.ReadAt, n.ActedUponAt, n.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *PostgresStore) ListForRecipient(ctx context.Context, recipientID string, f Filter) ([]Notification, error) {
	var b strings.Builder
	args := []any{recipientID}
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`)

	if !f.IncludeFailed {
		b.WriteString(` AND status <> 'failed'`)
	}
	if !f.IncludeExpired {
		b.WriteString(` AND status <> 'expired'`)
	}
	if f.OnlyUnread {
		b.WriteString(` AND read_at IS NULL`)
	}
	if len(f.Types) > 0 {
		args = append(args, f.Types)
		fmt.Fprintf(&b, ` AND type = ANY($%d)`, len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		fmt.Fprintf(&b, ` AND created_at >= $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at DESC`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	return s.query(ctx, b.String(), args...)
}

func (s *PostgresStore) ListDue(ctx context.Context, before time.Time, limit int) ([]Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE status IN ('pending', 'scheduled')
		  AND COALESCE(scheduled_for, created_at) <= $1
		ORDER BY priority DESC, created_at ASC`
	args := []any{before}
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT $2`
	}
	return s.query(ctx, q, args...)
}

func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, opts ...TransitionOption) (bool, error) {
	if err := validateEdges(from, to); err != nil {
		return false, err
	}
	cfg := applyTransitionOptions(opts)

	fromStr := make([]string, len(from))
	for i, f := range from {
		fromStr[i] = string(f)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET
			status = $2,
			read_at = CASE WHEN $2 = 'read' THEN $3 ELSE read_at END,
			acted_upon_at = CASE WHEN $2 = 'acted_upon' THEN $3 ELSE acted_upon_at END,
			acted_action = CASE WHEN $2 = 'acted_upon' AND $4 <> '' THEN $4 ELSE acted_action END
		WHERE id = $1 AND status = ANY($5)`,
		id, string(to), cfg.at, cfg.action, fromStr)
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing record from a lost race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, errors.Join(ErrStoreUnavailable, err)
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, attempt DeliveryAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, notification_id, channel, attempt, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.NotificationID, attempt.Channel, attempt.Attempt,
		attempt.Outcome, attempt.Detail, attempt.CreatedAt)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]DeliveryAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, notification_id, channel, attempt, outcome, detail, created_at
		FROM delivery_attempts WHERE notification_id = $1 ORDER BY created_at ASC`, notificationID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var attempts []DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.NotificationID, &a.Channel, &a.Attempt,
			&a.Outcome, &a.Detail, &a.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Notification, error) {
	var b strings.Builder
	var args []any
	b.WriteString(`SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`)

	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		fmt.Fprintf(&b, ` AND status = ANY($%d)`, len(args))
	}
	if len(q.Types) > 0 {
		args = append(args, q.Types)
		fmt.Fprintf(&b, ` AND type = ANY($%d)`, len(args))
	}
	if q.ReadSince != nil {
		args = append(args, *q.ReadSince)
		fmt.Fprintf(&b, ` AND read_at >= $%d`, len(args))
	}
	if q.CreatedBefore != nil {
		args = append(args, *q.CreatedBefore)
		fmt.Fprintf(&b, ` AND created_at < $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at ASC`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}

	return s.query(ctx, b.String(), args...)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n          Notification
		payload    []byte
		channels   []string
		templateID *uuid.UUID
		ruleID     *uuid.UUID
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.GroupID, &n.Type, &n.Priority,
		&n.Title, &n.Body, &payload, &channels, &n.Relevance,
		&templateID, &ruleID, &n.Status, &n.ActedAction,
		&n.CreatedAt, &n.ScheduledFor, &n.ReadAt, &n.ActedUponAt, &n.ExpiresAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	n.Channels = make([]Channel, len(channels))
	for i, c := range channels {
		n.Channels[i] = Channel(c)
	}
	if templateID != nil {
		n.TemplateID = *templateID
	}
	if ruleID != nil {
		n.RuleID = *ruleID
	}
	return &n, nil
}

func channelStrings(channels []Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
