package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/google/uuid"
)

const emailConstraint = "contacts_user_id_email_key"

const contactColumns = `id, user_id, first_name, last_name, email, phone_number, birthday, additional_info, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO contacts (id, user_id, first_name, last_name, email, phone_number, birthday, additional_info)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING ` + contactColumns

	return r.one(ctx, query,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.Birthday, c.AdditionalInfo)
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`
	return r.one(ctx, query, id, userID)
}

func (r *PostgresRepository) List(ctx context.Context, userID string, skip, limit int) ([]*models.Contact, error) {
	query :=
		`SELECT ` + contactColumns + ` FROM contacts
		 WHERE user_id = $1
		 ORDER BY last_name, first_name, id
		 OFFSET $2 LIMIT $3
		 `
	return r.many(ctx, query, userID, skip, limit)
}

func (r *PostgresRepository) ListAll(ctx context.Context, userID string) ([]*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = $1 ORDER BY birthday, id`
	return r.many(ctx, query, userID)
}

// Search matches query case-insensitively as a substring of first name,
// last name or email.
func (r *PostgresRepository) Search(ctx context.Context, userID, query string, skip, limit int) ([]*models.Contact, error) {
	q :=
		`SELECT ` + contactColumns + ` FROM contacts
		 WHERE user_id = $1
		   AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
		 ORDER BY last_name, first_name, id
		 OFFSET $3 LIMIT $4
		 `
	return r.many(ctx, q, userID, "%"+escapeLike(query)+"%", skip, limit)
}

func (r *PostgresRepository) Update(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	query :=
		`UPDATE contacts
		 SET first_name = $3, last_name = $4, email = $5, phone_number = $6,
		     birthday = $7, additional_info = $8, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING ` + contactColumns

	return r.one(ctx, query,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.Birthday, c.AdditionalInfo)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) (*models.Contact, error) {
	query := `DELETE FROM contacts WHERE id = $1 AND user_id = $2 RETURNING ` + contactColumns
	return r.one(ctx, query, id, userID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (*models.Contact, error) {
	c := &models.Contact{}
	var info sql.NullString
	var updated sql.NullTime

	if err := s.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
		&c.Birthday, &info, &c.CreatedAt, &updated); err != nil {
		return nil, err
	}

	if info.Valid {
		c.AdditionalInfo = &info.String
	}
	if updated.Valid {
		c.UpdatedAt = &updated.Time
	}
	return c, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return nil, fmt.Errorf("contact email already used: %w", common.ErrorConflict)
		}
		return nil, dbx.Wrap(err)
	}
	return c, nil
}

func (r *PostgresRepository) many(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Wrap(err)
	}
	defer rows.Close()

	out := make([]*models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, dbx.Wrap(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Wrap(err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
