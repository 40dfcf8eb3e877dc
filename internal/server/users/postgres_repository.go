package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/dbx"
)

const uniqueViolation = "23505"

// PostgresRepository stores users in the users table. List fields are kept
// as JSONB.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	interests, friends, err := marshalLists(user)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO users (id, email, hashed_password, name, bio, avatar, study_interests,
		                    learning_streaks, student_id, is_verified, friends, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.HashedPassword, user.Name, user.Bio, user.Avatar, interests,
		user.LearningStreaks, nullString(user.StudentID), user.IsVerified, friends,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", common.ErrConflict, pgErr.ConstraintName)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, hashed_password, name, bio, avatar, study_interests,
		        learning_streaks, student_id, is_verified, friends, created_at, updated_at
		 FROM users`

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, selectUser+` WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	var (
		u                  User
		interests, friends []byte
		studentID          sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.HashedPassword, &u.Name, &u.Bio, &u.Avatar, &interests,
		&u.LearningStreaks, &studentID, &u.IsVerified, &friends, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.StudentID = studentID.String
	if err := unmarshalList(interests, &u.StudyInterests); err != nil {
		return nil, fmt.Errorf("study_interests: %w", err)
	}
	if err := unmarshalList(friends, &u.Friends); err != nil {
		return nil, fmt.Errorf("friends: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *User) error {
	interests, _, err := marshalLists(user)
	if err != nil {
		return err
	}

	query :=
		`UPDATE users
		 SET name = $2, bio = $3, avatar = $4, study_interests = $5, learning_streaks = $6, updated_at = $7
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Bio, user.Avatar, interests, user.LearningStreaks, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) StudentIDTaken(ctx context.Context, studentID string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE student_id = $1)`, studentID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return taken, nil
}

func marshalLists(u *User) (interests, friends []byte, err error) {
	if interests, err = json.Marshal(nonNil(u.StudyInterests)); err != nil {
		return nil, nil, err
	}
	if friends, err = json.Marshal(nonNil(u.Friends)); err != nil {
		return nil, nil, err
	}
	return interests, friends, nil
}

func unmarshalList(b []byte, dst *[]string) error {
	*dst = []string{}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
