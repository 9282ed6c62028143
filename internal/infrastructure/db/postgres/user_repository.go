package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const userColumns = `id, external_id, handle, display_name, avatar_url, description, status, version, created_at, updated_at`

const planColumns = `id, user_id, title, description, amount, payment_url, hidden, created_at, updated_at`

// UserRepository stores users in one table and their plans in another; both
// are written under a row lock on the user so availability stays consistent
// with the plan set.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) UpsertByExternalID(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, external_id, handle, handle_lower, display_name, avatar_url, description, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			handle_lower = EXCLUDED.handle_lower,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		u.ID, u.ExternalID, u.Handle, domain.NormalizeHandle(u.Handle), u.DisplayName,
		u.AvatarURL, u.Description, string(u.Status), u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	out, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrHandleTaken
		}
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if out.Plans, err = loadPlans(ctx, r.pool, out.ID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return findUser(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByHandle(ctx context.Context, handle string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return findUser(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE handle_lower = $1`, domain.NormalizeHandle(handle))
}

// FindByIDs loads users without their plans; callers only need summaries.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// Update locks the user row, applies fn and rewrites the user with its plan set.
func (r *UserRepository) Update(ctx context.Context, id string, fn ports.UserUpdateFn) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var out *domain.User
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		u, err := findUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.Version++

		_, err = tx.Exec(ctx, `
			UPDATE users SET display_name = $2, description = $3, status = $4, version = $5, updated_at = $6
			WHERE id = $1`,
			u.ID, u.DisplayName, u.Description, string(u.Status), u.Version, u.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if err := replacePlans(ctx, tx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findUser(ctx context.Context, q querier, sql string, arg any) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u.Plans, err = loadPlans(ctx, q, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		status string
	)
	err := row.Scan(&u.ID, &u.ExternalID, &u.Handle, &u.DisplayName, &u.AvatarURL,
		&u.Description, &status, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	u.Plans = []domain.PricePlan{}
	return &u, nil
}

func loadPlans(ctx context.Context, q querier, userID string) ([]domain.PricePlan, error) {
	rows, err := q.Query(ctx, `SELECT `+planColumns+` FROM price_plans WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	defer rows.Close()

	plans := make([]domain.PricePlan, 0)
	for rows.Next() {
		var p domain.PricePlan
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Amount,
			&p.PaymentURL, &p.Hidden, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func replacePlans(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	if _, err := tx.Exec(ctx, `DELETE FROM price_plans WHERE user_id = $1`, u.ID); err != nil {
		return fmt.Errorf("clear plans: %w", err)
	}
	if len(u.Plans) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range u.Plans {
		batch.Queue(`INSERT INTO price_plans (`+planColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, u.ID, p.Title, p.Description, p.Amount, p.PaymentURL, p.Hidden, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write plans: %w", err)
	}
	return nil
}
