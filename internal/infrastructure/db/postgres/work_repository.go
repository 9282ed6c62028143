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

const workColumns = `id, number, requester_id, creator_id, plan_id, description, amount, payment_url, status, file_ref, created_at, updated_at, delivered_at, rejected_at, paid_at`

type WorkRepository struct {
	pool *pgxpool.Pool
}

func NewWorkRepository(pool *pgxpool.Pool) *WorkRepository {
	return &WorkRepository{pool: pool}
}

func partyColumn(p domain.Party) string {
	if p == domain.PartyCreator {
		return "creator_id"
	}
	return "requester_id"
}

// Create holds a share lock on the creator while it re-checks the plan, so a
// concurrent plan edit either lands before the check or waits for the insert.
func (r *WorkRepository) Create(ctx context.Context, w *domain.Work, n *domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		creator, err := findUser(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR SHARE`, w.CreatorID)
		if err != nil {
			return err
		}
		plan, err := creator.RequestablePlan(w.PlanID)
		if err != nil {
			return err
		}
		if plan.Amount != w.Amount || plan.PaymentURL != w.PaymentURL {
			return domain.ErrPlanChanged
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO works (id, requester_id, creator_id, plan_id, description, amount, payment_url, status, file_ref, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING number`,
			w.ID, w.RequesterID, w.CreatorID, w.PlanID, w.Description, w.Amount, w.PaymentURL,
			string(w.Status), w.FileRef, w.CreatedAt.UTC(), w.UpdatedAt.UTC(),
		).Scan(&w.Number)
		if err != nil {
			return fmt.Errorf("insert work: %w", err)
		}
		n.WorkNumber = w.Number
		return insertNotification(ctx, tx, n)
	})
}

func (r *WorkRepository) FindByID(ctx context.Context, id string) (*domain.Work, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	w, err := scanWork(r.pool.QueryRow(ctx, `SELECT `+workColumns+` FROM works WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkNotFound
		}
		return nil, fmt.Errorf("find work: %w", err)
	}
	return w, nil
}

func (r *WorkRepository) ListByParty(ctx context.Context, party domain.Party, userID string) ([]*domain.Work, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+workColumns+` FROM works WHERE `+partyColumn(party)+` = $1 ORDER BY created_at DESC, number DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	works := make([]*domain.Work, 0)
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		works = append(works, w)
	}
	return works, rows.Err()
}

// Transition is a compare-and-set on status and actor, committed together
// with the notification it produces.
func (r *WorkRepository) Transition(ctx context.Context, t ports.WorkTransition, n *domain.Notification) (*domain.Work, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stamp string
	switch t.To {
	case domain.WorkDelivered:
		stamp = "delivered_at"
	case domain.WorkRejected:
		stamp = "rejected_at"
	case domain.WorkPaid:
		stamp = "paid_at"
	default:
		return nil, fmt.Errorf("transition to %s: %w", t.To, domain.ErrInvalidTransition)
	}

	sql := `UPDATE works SET status = $4, updated_at = $5, ` + stamp + ` = $5,
			file_ref = CASE WHEN $6 <> '' THEN $6 ELSE file_ref END
		WHERE id = $1 AND status = $2 AND ` + partyColumn(t.Actor) + ` = $3
		RETURNING ` + workColumns

	var out *domain.Work
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		w, err := scanWork(tx.QueryRow(ctx, sql,
			t.WorkID, string(t.From), t.ActorID, string(t.To), t.At.UTC(), t.FileRef))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrTransitionConflict
			}
			return fmt.Errorf("update work: %w", err)
		}
		if err := insertNotification(ctx, tx, n); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *WorkRepository) CountByStatus(ctx context.Context, party domain.Party, userID string) (map[domain.WorkStatus]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM works WHERE `+partyColumn(party)+` = $1 GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("count works: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.WorkStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[domain.WorkStatus(status)] = count
	}
	return out, rows.Err()
}

func scanWork(row pgx.Row) (*domain.Work, error) {
	var (
		w      domain.Work
		status string
	)
	err := row.Scan(&w.ID, &w.Number, &w.RequesterID, &w.CreatorID, &w.PlanID, &w.Description,
		&w.Amount, &w.PaymentURL, &status, &w.FileRef, &w.CreatedAt, &w.UpdatedAt,
		&w.DeliveredAt, &w.RejectedAt, &w.PaidAt)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WorkStatus(status)
	if !w.Status.Valid() {
		return nil, fmt.Errorf("work %s has unknown status %q", w.ID, status)
	}
	return &w, nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, n *domain.Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, work_id, work_number, type, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		n.ID, n.RecipientID, n.WorkID, n.WorkNumber, string(n.Type), n.Message, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
