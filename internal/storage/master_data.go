package storage

import (
	"context"
	"fmt"

	"expensehub/internal/core"
)

func (r *SQLiteRepository) OrganisationByID(ctx context.Context, id int64) (core.Organisation, error) {
	var o core.Organisation
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title FROM organisations WHERE id = ?`, id).Scan(&o.ID, &o.Title)
	if err != nil {
		return core.Organisation{}, notFound(err, fmt.Sprintf("organisation %d", id))
	}
	return o, nil
}

func (r *SQLiteRepository) OrganisationByTitle(ctx context.Context, title string) (core.Organisation, error) {
	var o core.Organisation
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title FROM organisations WHERE title = ?`, title).Scan(&o.ID, &o.Title)
	if err != nil {
		return core.Organisation{}, notFound(err, fmt.Sprintf("organisation %q", title))
	}
	return o, nil
}

func (r *SQLiteRepository) LocationByTitle(ctx context.Context, title string) (core.Location, error) {
	var l core.Location
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title FROM locations WHERE title = ?`, title).Scan(&l.ID, &l.Title)
	if err != nil {
		return core.Location{}, notFound(err, fmt.Sprintf("location %q", title))
	}
	return l, nil
}

func (r *SQLiteRepository) CategoryByTitle(ctx context.Context, title string) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title FROM categories WHERE title = ?`, title).Scan(&c.ID, &c.Title)
	if err != nil {
		return core.Category{}, notFound(err, fmt.Sprintf("category %q", title))
	}
	return c, nil
}

func (r *SQLiteRepository) ProjectByTitle(ctx context.Context, title string) (core.Project, error) {
	var p core.Project
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, organisation_id FROM projects WHERE title = ?`, title).
		Scan(&p.ID, &p.Title, &p.OrganisationID)
	if err != nil {
		return core.Project{}, notFound(err, fmt.Sprintf("project %q", title))
	}
	return p, nil
}

// ListLocations returns every location ordered by title.
func (r *SQLiteRepository) ListLocations(ctx context.Context) ([]core.Location, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title FROM locations ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []core.Location
	for rows.Next() {
		var l core.Location
		if err := rows.Scan(&l.ID, &l.Title); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListOrganisationLocations returns the locations linked to an organisation,
// ordered by title.
func (r *SQLiteRepository) ListOrganisationLocations(ctx context.Context, orgID int64) ([]core.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.title
		FROM locations l
		JOIN organisation_locations ol ON ol.location_id = l.id
		WHERE ol.organisation_id = ?
		ORDER BY l.title`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list organisation locations: %w", err)
	}
	defer rows.Close()

	var out []core.Location
	for rows.Next() {
		var l core.Location
		if err := rows.Scan(&l.ID, &l.Title); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListCategories returns every category ordered by title.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title FROM categories ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListOrganisationProjects returns an organisation's projects ordered by id.
func (r *SQLiteRepository) ListOrganisationProjects(ctx context.Context, orgID int64) ([]core.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, organisation_id FROM projects
		WHERE organisation_id = ?
		ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.OrganisationID); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListUserOrganisations returns the organisations a user belongs to.
func (r *SQLiteRepository) ListUserOrganisations(ctx context.Context, userID int64) ([]core.Organisation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.title
		FROM organisations o
		JOIN organisation_users ou ON ou.organisation_id = o.id
		WHERE ou.user_id = ?
		ORDER BY o.title`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user organisations: %w", err)
	}
	defer rows.Close()

	var out []core.Organisation
	for rows.Next() {
		var o core.Organisation
		if err := rows.Scan(&o.ID, &o.Title); err != nil {
			return nil, fmt.Errorf("scan organisation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// IsMember reports whether the user belongs to the organisation.
func (r *SQLiteRepository) IsMember(ctx context.Context, orgID, userID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organisation_users WHERE organisation_id = ? AND user_id = ?`,
		orgID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

// The Ensure* helpers back the seed command. They are idempotent on title
// and return the id of the existing or new row.

func (r *SQLiteRepository) EnsureOrganisation(ctx context.Context, title string) (int64, error) {
	return r.ensureTitle(ctx, "organisations", title)
}

func (r *SQLiteRepository) EnsureLocation(ctx context.Context, title string) (int64, error) {
	return r.ensureTitle(ctx, "locations", title)
}

func (r *SQLiteRepository) EnsureCategory(ctx context.Context, title string) (int64, error) {
	return r.ensureTitle(ctx, "categories", title)
}

func (r *SQLiteRepository) ensureTitle(ctx context.Context, table, title string) (int64, error) {
	if !core.ValidTitle(title) {
		return 0, fmt.Errorf("%s %q: %w", table, title, core.ErrInvalidTitle)
	}
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO `+table+` (title) VALUES (?)
		 ON CONFLICT(title) DO UPDATE SET title = excluded.title
		 RETURNING id`, title).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure %s %q: %w", table, title, err)
	}
	return id, nil
}

// EnsureProject creates or moves a project so it belongs to orgID.
func (r *SQLiteRepository) EnsureProject(ctx context.Context, orgID int64, title string) (int64, error) {
	if !core.ValidTitle(title) {
		return 0, fmt.Errorf("project %q: %w", title, core.ErrInvalidTitle)
	}
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO projects (title, organisation_id) VALUES (?, ?)
		 ON CONFLICT(title) DO UPDATE SET organisation_id = excluded.organisation_id
		 RETURNING id`, title, orgID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure project %q: %w", title, err)
	}
	return id, nil
}

func (r *SQLiteRepository) LinkOrganisationLocation(ctx context.Context, orgID, locationID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO organisation_locations (organisation_id, location_id) VALUES (?, ?)`,
		orgID, locationID)
	if err != nil {
		return fmt.Errorf("link organisation %d location %d: %w", orgID, locationID, err)
	}
	return nil
}

func (r *SQLiteRepository) AddOrganisationUser(ctx context.Context, orgID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO organisation_users (organisation_id, user_id) VALUES (?, ?)`,
		orgID, userID)
	if err != nil {
		return fmt.Errorf("add user %d to organisation %d: %w", userID, orgID, err)
	}
	return nil
}
