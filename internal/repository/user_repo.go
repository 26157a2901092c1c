package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spmagent/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, full_name, skill_level, available_hours_per_day,
	preferred_pace, created_at, updated_at`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts u; u.ID must already be set.
func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, full_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.FullName).Scan(&u.CreatedAt, &u.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UpdateProfile applies the non-nil fields of upd and returns the stored user.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	return r.findOne(ctx, `
		UPDATE users SET
			full_name               = COALESCE($2, full_name),
			skill_level             = COALESCE($3, skill_level),
			available_hours_per_day = COALESCE($4, available_hours_per_day),
			preferred_pace          = COALESCE($5, preferred_pace),
			updated_at              = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.FullName, upd.SkillLevel, upd.AvailableHoursPerDay, upd.PreferredPace,
	)
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.SkillLevel, &u.AvailableHoursPerDay,
		&u.PreferredPace, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}
