package repository

import (
	"context"
	"time"

	pgx "github.com/jackc/pgx/v4"

	"github.com/AlibekovAA/worktime/backend/internal/common/db"
	commonerrors "github.com/AlibekovAA/worktime/backend/internal/common/errors"
	"github.com/AlibekovAA/worktime/backend/internal/user/domain"
)

const usersEmailConstraint = "users_email_key"

// Repository is the credential store: identity, password hash and tenant.
type Repository interface {
	CreateWithCompany(ctx context.Context, user domain.User, company domain.Company) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByID(ctx context.Context, id domain.ID) (domain.User, error)
	UpdatePassword(ctx context.Context, id domain.ID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id domain.ID, at time.Time) error
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const selectUser = `SELECT u.id, u.email, u.password_hash, u.company_id, c.name, u.last_login_at, u.created_at
	FROM users u
	JOIN companies c ON c.id = u.company_id`

// CreateWithCompany inserts the tenant and its first user atomically, so a
// duplicate email never leaves an orphan company behind.
func (r *PgRepository) CreateWithCompany(ctx context.Context, user domain.User, company domain.Company) (domain.User, error) {
	start := time.Now()

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`INSERT INTO companies (id, name, created_at) VALUES ($1, $2, $3)`,
			company.ID,
			company.Name,
			company.CreatedAt,
		); err != nil {
			return err
		}

		_, err := tx.Exec(
			ctx,
			`INSERT INTO users (id, email, password_hash, company_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
			string(user.ID),
			user.Email,
			user.PasswordHash,
			company.ID,
			user.CreatedAt,
		)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err, usersEmailConstraint) {
			db.MeasureQueryDuration("create user with company", start)
			return domain.User{}, commonerrors.ErrEmailAlreadyExists.WithCause(err)
		}
		return domain.User{}, db.HandleExecError(err, "create user with company", start)
	}
	db.MeasureQueryDuration("create user with company", start)

	user.CompanyID = company.ID
	user.CompanyName = company.Name
	return user, nil
}

func (r *PgRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	start := time.Now()
	row := r.db.QueryRow(ctx, selectUser+` WHERE u.email = $1`, email)

	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, db.HandleQueryError(err, commonerrors.ErrUserNotFound, "find user by email", start)
	}
	db.MeasureQueryDuration("find user by email", start)
	return user, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id domain.ID) (domain.User, error) {
	start := time.Now()
	row := r.db.QueryRow(ctx, selectUser+` WHERE u.id = $1`, string(id))

	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, db.HandleQueryError(err, commonerrors.ErrUserNotFound, "find user by id", start)
	}
	db.MeasureQueryDuration("find user by id", start)
	return user, nil
}

func (r *PgRepository) UpdatePassword(ctx context.Context, id domain.ID, passwordHash string) error {
	start := time.Now()
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, string(id), passwordHash)
	if err != nil {
		return db.HandleExecError(err, "update user password", start)
	}
	db.MeasureQueryDuration("update user password", start)
	if tag.RowsAffected() == 0 {
		return commonerrors.ErrUserNotFound
	}
	return nil
}

func (r *PgRepository) UpdateLastLogin(ctx context.Context, id domain.ID, at time.Time) error {
	start := time.Now()
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, string(id), at)
	if err != nil {
		return db.HandleExecError(err, "update user last login", start)
	}
	db.MeasureQueryDuration("update user last login", start)
	if tag.RowsAffected() == 0 {
		return commonerrors.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	var id string
	err := row.Scan(&id, &user.Email, &user.PasswordHash, &user.CompanyID, &user.CompanyName, &user.LastLoginAt, &user.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	user.ID = domain.ID(id)
	return user, nil
}
