package storage

import (
	"context"
	"database/sql"
	"fmt"

	"expensehub/internal/core"
)

const insertExpenseSQL = `
	INSERT INTO expenses (amount_cents, billed, type, category_id, location_id, project_id, token_id, bill_id, time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

func insertExpense(ctx context.Context, q querier, e core.Expense) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, insertExpenseSQL,
		e.Amount.Cents,
		boolInt(e.Billed),
		string(e.Type),
		nullID(e.CategoryID),
		e.LocationID,
		nullID(e.ProjectID),
		e.TokenID,
		e.BillID,
		e.Time.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return id, nil
}

// InsertExpense persists a single expense and returns its id.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	return insertExpense(ctx, r.db, e)
}

// InsertExpenses persists all expenses in one transaction. Either every
// expense is stored or none is.
func (r *SQLiteRepository) InsertExpenses(ctx context.Context, es []core.Expense) ([]int64, error) {
	ids := make([]int64, 0, len(es))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for i, e := range es {
			id, err := insertExpense(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("expense %d: %w", i, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

const detailSelect = `
	SELECT e.id, e.amount_cents, e.billed, e.type,
	       COALESCE(e.category_id, 0), e.location_id, COALESCE(e.project_id, 0),
	       e.token_id, e.bill_id, e.time, e.created_at,
	       u.username, COALESCE(o.title, ''), COALESCE(p.title, ''), l.title, COALESCE(c.title, '')
	FROM expenses e
	JOIN auth_tokens t ON t.id = e.token_id
	JOIN users u ON u.id = t.user_id
	JOIN locations l ON l.id = e.location_id
	LEFT JOIN categories c ON c.id = e.category_id
	LEFT JOIN projects p ON p.id = e.project_id
	LEFT JOIN organisations o ON o.id = p.organisation_id`

func scanDetail(row interface{ Scan(...any) error }) (core.ExpenseDetail, error) {
	var (
		d    core.ExpenseDetail
		kind string
	)
	err := row.Scan(
		&d.ID, &d.Amount.Cents, &d.Billed, &kind,
		&d.CategoryID, &d.LocationID, &d.ProjectID,
		&d.TokenID, &d.BillID, &d.Time, &d.CreatedAt,
		&d.Username, &d.Organisation, &d.Project, &d.Location, &d.Category,
	)
	d.Type = core.ExpenseType(kind)
	d.Time = d.Time.UTC()
	return d, err
}

func (r *SQLiteRepository) queryDetails(ctx context.Context, query string, args ...any) ([]core.ExpenseDetail, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// ExpenseDetail loads a single expense with its referenced titles.
func (r *SQLiteRepository) ExpenseDetail(ctx context.Context, id int64) (core.ExpenseDetail, error) {
	d, err := scanDetail(r.db.QueryRowContext(ctx, detailSelect+` WHERE e.id = ?`, id))
	if err != nil {
		return core.ExpenseDetail{}, notFound(err, fmt.Sprintf("expense %d", id))
	}
	return d, nil
}

// ListPersonalExpenses returns a page of the user's personal expenses, newest first.
func (r *SQLiteRepository) ListPersonalExpenses(ctx context.Context, userID int64, limit, offset int) ([]core.ExpenseDetail, error) {
	return r.queryDetails(ctx, detailSelect+`
		WHERE t.user_id = ? AND e.type = 'PERSONAL'
		ORDER BY e.time DESC, e.id DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
}

func (r *SQLiteRepository) CountPersonalExpenses(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM expenses e
		JOIN auth_tokens t ON t.id = e.token_id
		WHERE t.user_id = ? AND e.type = 'PERSONAL'`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count personal expenses: %w", err)
	}
	return n, nil
}

// ListOrganisationExpenses returns a page of the user's expenses on projects
// of the organisation, newest first.
func (r *SQLiteRepository) ListOrganisationExpenses(ctx context.Context, userID, orgID int64, limit, offset int) ([]core.ExpenseDetail, error) {
	return r.queryDetails(ctx, detailSelect+`
		WHERE t.user_id = ? AND p.organisation_id = ?
		ORDER BY e.time DESC, e.id DESC
		LIMIT ? OFFSET ?`, userID, orgID, limit, offset)
}

func (r *SQLiteRepository) CountOrganisationExpenses(ctx context.Context, userID, orgID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM expenses e
		JOIN auth_tokens t ON t.id = e.token_id
		JOIN projects p ON p.id = e.project_id
		WHERE t.user_id = ? AND p.organisation_id = ?`, userID, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count organisation expenses: %w", err)
	}
	return n, nil
}

// LatestPersonalInitial returns the location and category of the user's most
// recent personal expense.
func (r *SQLiteRepository) LatestPersonalInitial(ctx context.Context, userID int64) (core.ExpenseInitial, error) {
	var in core.ExpenseInitial
	err := r.db.QueryRowContext(ctx, `
		SELECT e.location_id, COALESCE(e.category_id, 0)
		FROM expenses e
		JOIN auth_tokens t ON t.id = e.token_id
		WHERE t.user_id = ? AND e.type = 'PERSONAL'
		ORDER BY e.time DESC, e.id DESC
		LIMIT 1`, userID).Scan(&in.LocationID, &in.CategoryID)
	if err != nil {
		return core.ExpenseInitial{}, notFound(err, "latest personal expense")
	}
	return in, nil
}

// LatestOrganisationInitial returns the location, category and project of the
// user's most recent expense in the organisation.
func (r *SQLiteRepository) LatestOrganisationInitial(ctx context.Context, userID, orgID int64) (core.ExpenseInitial, error) {
	var in core.ExpenseInitial
	err := r.db.QueryRowContext(ctx, `
		SELECT e.location_id, COALESCE(e.category_id, 0), e.project_id
		FROM expenses e
		JOIN auth_tokens t ON t.id = e.token_id
		JOIN projects p ON p.id = e.project_id
		WHERE t.user_id = ? AND p.organisation_id = ?
		ORDER BY e.time DESC, e.id DESC
		LIMIT 1`, userID, orgID).Scan(&in.LocationID, &in.CategoryID, &in.ProjectID)
	if err != nil {
		return core.ExpenseInitial{}, notFound(err, "latest organisation expense")
	}
	return in, nil
}

// LastBillID returns the most recent non-empty bill id among the user's
// expenses, or "" when there is none.
func (r *SQLiteRepository) LastBillID(ctx context.Context, userID int64) (string, error) {
	var billID string
	err := r.db.QueryRowContext(ctx, `
		SELECT e.bill_id
		FROM expenses e
		JOIN auth_tokens t ON t.id = e.token_id
		WHERE t.user_id = ? AND e.bill_id <> ''
		ORDER BY e.time DESC, e.id DESC
		LIMIT 1`, userID).Scan(&billID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get last bill id: %w", err)
	}
	return billID, nil
}

const countBilled = `
	SELECT COUNT(*) FROM expenses e
	JOIN projects p ON p.id = e.project_id
	WHERE e.token_id = ? AND e.billed = 1 AND p.organisation_id = ?`

// CountBilledExpenses counts the token's billed expenses on projects of the
// organisation.
func (r *SQLiteRepository) CountBilledExpenses(ctx context.Context, tokenID, orgID int64) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countBilled, tokenID, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count billed expenses: %w", err)
	}
	return n, nil
}

// NextBillSequence atomically reserves the next bill sequence number for a
// token in an organisation. The first reservation is seeded with the
// number of billed expenses the token already has there, plus one.
func (r *SQLiteRepository) NextBillSequence(ctx context.Context, tokenID, orgID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO bill_sequences (token_id, organisation_id, last_value)
		VALUES (?, ?, (`+countBilled+`) + 1)
		ON CONFLICT(token_id, organisation_id) DO UPDATE SET last_value = last_value + 1
		RETURNING last_value`, tokenID, orgID, tokenID, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reserve bill sequence for token %d in organisation %d: %w", tokenID, orgID, err)
	}
	return n, nil
}

// ProjectExpenseDetails returns every expense linked to a project, ordered by id.
func (r *SQLiteRepository) ProjectExpenseDetails(ctx context.Context) ([]core.ExpenseDetail, error) {
	return r.queryDetails(ctx, detailSelect+`
		WHERE e.project_id IS NOT NULL
		ORDER BY e.id`)
}
