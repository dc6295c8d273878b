package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by pool.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pgQueries: &pgQueries{db: pool, queryTimeout: queryTimeout},
		pool:      pool,
	}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgQueries{db: tx, queryTimeout: s.queryTimeout})
	})
}

type pgQueries struct {
	db           dbtx
	queryTimeout time.Duration
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (q *pgQueries) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.queryTimeout > 0 {
		return context.WithTimeout(ctx, q.queryTimeout)
	}
	return ctx, func() {}
}

// --- conversations ---

func (q *pgQueries) CreateConversation(ctx context.Context, c *Conversation) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.UserID, c.Title).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (q *pgQueries) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	var c Conversation
	err := q.db.QueryRow(ctx, `
		SELECT id, user_id, title, created_at FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (q *pgQueries) ListConversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, title, created_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("list conversations scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- structured data ---

const unitColumns = `
	u.id, u.conversation_id, c.user_id, u.data_type, u.schema_version,
	u.data, u.metadata, u.version, u.created_at, u.updated_at, u.deleted_at`

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	err := row.Scan(
		&u.ID, &u.ConversationID, &u.OwnerID, &u.DataType, &u.SchemaVersion,
		&u.Data, &u.Metadata, &u.Version, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *pgQueries) InsertUnit(ctx context.Context, u *Unit) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO structured_data (id, conversation_id, data_type, schema_version, data, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version, created_at, updated_at
	`, u.ID, u.ConversationID, u.DataType, u.SchemaVersion, jsonObject(u.Data), jsonObject(u.Metadata)).
		Scan(&u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert structured data: %w", err)
	}
	return nil
}

func (q *pgQueries) GetUnit(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Unit, error) {
	tctx, cancel := q.withTimeout(ctx)
	defer cancel()

	u, err := scanUnit(q.db.QueryRow(tctx, `
		SELECT `+unitColumns+`
		FROM structured_data u
		JOIN conversations c ON c.id = u.conversation_id
		WHERE u.id = $1 AND ($2 OR u.deleted_at IS NULL)
	`, id, includeDeleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get structured data: %w", err)
	}

	u.Columns, err = q.ListColumns(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (q *pgQueries) ListUnits(ctx context.Context, userID uuid.UUID, f UnitFilter) ([]Unit, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.Query(ctx, `
		SELECT `+unitColumns+`
		FROM structured_data u
		JOIN conversations c ON c.id = u.conversation_id
		WHERE c.user_id = $1
			AND u.deleted_at IS NULL
			AND ($2::uuid IS NULL OR u.conversation_id = $2)
			AND ($3 = '' OR u.data_type = $3)
		ORDER BY u.created_at DESC
		OFFSET $4
		LIMIT $5
	`, userID, f.ConversationID, f.DataType, max(f.Skip, 0), limit)
	if err != nil {
		return nil, fmt.Errorf("list structured data: %w", err)
	}
	defer rows.Close()

	out := []Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("list structured data scan: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (q *pgQueries) FindUnitByMessageID(ctx context.Context, userID uuid.UUID, messageID string) (*Unit, error) {
	tctx, cancel := q.withTimeout(ctx)
	defer cancel()

	u, err := scanUnit(q.db.QueryRow(tctx, `
		SELECT `+unitColumns+`
		FROM structured_data u
		JOIN conversations c ON c.id = u.conversation_id
		WHERE c.user_id = $1
			AND u.deleted_at IS NULL
			AND u.metadata->>'message_id' = $2
		ORDER BY u.created_at DESC
		LIMIT 1
	`, userID, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find structured data by message: %w", err)
	}

	u.Columns, err = q.ListColumns(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (q *pgQueries) UpdateUnit(ctx context.Context, u *Unit) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	err := q.db.QueryRow(ctx, `
		UPDATE structured_data
		SET data_type = $2, schema_version = $3, data = $4, metadata = $5,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6 AND deleted_at IS NULL
		RETURNING version, updated_at
	`, u.ID, u.DataType, u.SchemaVersion, jsonObject(u.Data), jsonObject(u.Metadata), u.Version).
		Scan(&u.Version, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update structured data: %w", err)
	}
	return nil
}

func (q *pgQueries) SoftDeleteUnit(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	tag, err := q.db.Exec(ctx, `
		UPDATE structured_data SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("soft delete structured data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	tag, err := q.db.Exec(ctx, `DELETE FROM structured_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete structured data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- columns ---

func (q *pgQueries) ListColumns(ctx context.Context, unitID uuid.UUID) ([]Column, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.Query(ctx, `
		SELECT id, structured_data_id, name, data_type, format, formula,
			sort_order, is_active, metadata, created_at, updated_at
		FROM data_columns
		WHERE structured_data_id = $1
		ORDER BY created_at ASC, id ASC
	`, unitID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	out := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.ID, &c.UnitID, &c.Name, &c.DataType, &c.Format, &c.Formula,
			&c.Order, &c.IsActive, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list columns scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *pgQueries) InsertColumn(ctx context.Context, c *Column) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO data_columns (id, structured_data_id, name, data_type, format, formula, sort_order, is_active, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, c.ID, c.UnitID, c.Name, c.DataType, c.Format, c.Formula, c.Order, c.IsActive, jsonObject(c.Metadata)).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert column: %w", err)
	}
	return nil
}

func (q *pgQueries) UpdateColumn(ctx context.Context, c *Column) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	err := q.db.QueryRow(ctx, `
		UPDATE data_columns
		SET name = $2, data_type = $3, format = $4, formula = $5, sort_order = $6,
			is_active = $7, metadata = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, c.ID, c.Name, c.DataType, c.Format, c.Formula, c.Order, c.IsActive, jsonObject(c.Metadata)).
		Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update column: %w", err)
	}
	return nil
}

func (q *pgQueries) DeleteColumn(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	tag, err := q.db.Exec(ctx, `DELETE FROM data_columns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- history ---

func (q *pgQueries) InsertHistory(ctx context.Context, e *HistoryEntry) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO data_change_history
			(id, structured_data_id, user_id, change_type, column_name, row_index, old_value, new_value, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, e.ID, e.UnitID, e.UserID, string(e.ChangeType), e.ColumnName, e.RowIndex, e.OldValue, e.NewValue, jsonObject(e.Metadata)).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (q *pgQueries) ListHistory(ctx context.Context, unitID uuid.UUID, limit, offset int) ([]HistoryEntry, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.Query(ctx, `
		SELECT id, structured_data_id, user_id, change_type, column_name, row_index,
			old_value, new_value, metadata, created_at
		FROM data_change_history
		WHERE structured_data_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2
		LIMIT $3
	`, unitID, max(offset, 0), limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		var changeType string
		if err := rows.Scan(&e.ID, &e.UnitID, &e.UserID, &changeType, &e.ColumnName, &e.RowIndex,
			&e.OldValue, &e.NewValue, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list history scan: %w", err)
		}
		e.ChangeType = ChangeType(changeType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// jsonObject keeps NOT NULL jsonb columns from receiving SQL NULL.
func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
