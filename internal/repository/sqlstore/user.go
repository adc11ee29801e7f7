package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/miniapp-auth/internal/apperror"
	"github.com/sakif/miniapp-auth/internal/model"
	"github.com/sakif/miniapp-auth/internal/repository"
)

// compile-time check that *userRepo implements repository.UserRepository
var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, username, first_name, last_name, language_code, photo_url`

const (
	findUserSQL = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	// created_at is only written on insert; updated_at on every save.
	upsertUserSQL = `INSERT INTO users (` + userColumns + `)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    username = excluded.username,
    first_name = excluded.first_name,
    last_name = excluded.last_name,
    language_code = excluded.language_code,
    photo_url = excluded.photo_url,
    updated_at = CURRENT_TIMESTAMP
RETURNING ` + userColumns

	deleteUserSQL = `DELETE FROM users WHERE id = ?`
)

// userRepo is the UserRepository view of a unit of work.
type userRepo struct {
	uow *UnitOfWork
}

func (r *userRepo) FindByID(ctx context.Context, id model.UserID) (model.User, bool, error) {
	tx, err := r.uow.querier()
	if err != nil {
		return model.User{}, false, err
	}

	row := tx.QueryRowContext(ctx, r.uow.db.rebind(findUserSQL), id.Int64())
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, fmt.Errorf("sqlstore: finding user %d: %w", id, err)
	}
	return user, true, nil
}

// Save upserts user on its id and returns the stored row.
func (r *userRepo) Save(ctx context.Context, user model.User) (model.User, error) {
	tx, err := r.uow.querier()
	if err != nil {
		return model.User{}, err
	}

	row := tx.QueryRowContext(ctx, r.uow.db.rebind(upsertUserSQL),
		user.ID().Int64(),
		nullString(user.Username().Ptr()),
		user.FirstName().String(),
		nullString(user.LastName().Ptr()),
		nullString(user.LanguageCode().Ptr()),
		nullString(user.PhotoURL().Ptr()),
	)
	saved, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("sqlstore: saving user %d: %w", user.ID(), err)
	}
	return saved, nil
}

// Delete removes the user row. Returns apperror.ErrNotFound if no row
// matched.
func (r *userRepo) Delete(ctx context.Context, id model.UserID) error {
	tx, err := r.uow.querier()
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, r.uow.db.rebind(deleteUserSQL), id.Int64())
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// scanUser reads one users row and re-validates it into a model.User.
func scanUser(row *sql.Row) (model.User, error) {
	var id int64
	var firstName string
	var username, lastName, langCode, photoURL sql.NullString
	if err := row.Scan(&id, &username, &firstName, &lastName, &langCode, &photoURL); err != nil {
		return model.User{}, err
	}

	return model.BuildUser(model.UserInput{
		ID:           id,
		FirstName:    firstName,
		LastName:     stringPtr(lastName),
		Username:     stringPtr(username),
		LanguageCode: stringPtr(langCode),
		PhotoURL:     stringPtr(photoURL),
	})
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
