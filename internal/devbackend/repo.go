package devbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/models"
)

// Fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var (
	errEmailTaken   = errors.New("devbackend: email already registered")
	errInvalidToken = errors.New("devbackend: invalid token")
)

// Order is a validated ORDER BY clause.
type Order struct {
	Column string
	Desc   bool
}

func (o Order) clause(prefix string) string {
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	// rowid breaks ties between rows written in the same microsecond.
	return fmt.Sprintf("%s%s %s, %srowid %s", prefix, o.Column, dir, prefix, dir)
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

// CreateUser stores a new user with an already hashed password.
func (db *DB) CreateUser(ctx context.Context, id, email, hash string, confirmed bool, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, confirmed, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, hash, confirmed, formatTime(now))
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return errEmailTaken
		}
		return fmt.Errorf("devbackend: create user: %w", err)
	}
	return nil
}

// UserByEmail returns the user, its password hash and whether it is confirmed.
func (db *DB) UserByEmail(ctx context.Context, email string) (models.User, string, bool, error) {
	var (
		u         models.User
		hash      string
		confirmed bool
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, confirmed FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &hash, &confirmed)
	if errors.Is(err, sql.ErrNoRows) {
		return u, "", false, apperr.ErrNotFound
	}
	if err != nil {
		return u, "", false, fmt.Errorf("devbackend: user by email: %w", err)
	}
	return u, hash, confirmed, nil
}

// ConfirmUser marks the user's e-mail address as confirmed.
func (db *DB) ConfirmUser(ctx context.Context, email string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET confirmed = 1 WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("devbackend: confirm user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// InsertTokens stores a fresh access/refresh token pair.
func (db *DB) InsertTokens(ctx context.Context, access, refresh, userID string, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tokens (access_token, refresh_token, user_id, expires_at) VALUES (?, ?, ?, ?)`,
		access, refresh, userID, formatTime(expiresAt))
	if err != nil {
		return fmt.Errorf("devbackend: insert tokens: %w", err)
	}
	return nil
}

// UserForAccessToken resolves a non-expired access token.
func (db *DB) UserForAccessToken(ctx context.Context, access string, now time.Time) (models.User, error) {
	var (
		u       models.User
		expires string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.email, t.expires_at
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.access_token = ?`, access,
	).Scan(&u.ID, &u.Email, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return u, errInvalidToken
	}
	if err != nil {
		return u, fmt.Errorf("devbackend: lookup token: %w", err)
	}
	at, err := parseTime(expires)
	if err != nil {
		return u, fmt.Errorf("devbackend: parse expiry: %w", err)
	}
	if !now.Before(at) {
		return u, errInvalidToken
	}
	return u, nil
}

// RotateRefreshToken consumes refresh and stores a new token pair for the
// same user in one transaction.
func (db *DB) RotateRefreshToken(ctx context.Context, refresh, newAccess, newRefresh string, expiresAt time.Time) (models.User, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("devbackend: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var u models.User
	err = tx.QueryRowContext(ctx, `
		SELECT u.id, u.email FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.refresh_token = ?`, refresh,
	).Scan(&u.ID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return u, errInvalidToken
	}
	if err != nil {
		return u, fmt.Errorf("devbackend: lookup refresh token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE refresh_token = ?`, refresh); err != nil {
		return u, fmt.Errorf("devbackend: consume refresh token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tokens (access_token, refresh_token, user_id, expires_at) VALUES (?, ?, ?, ?)`,
		newAccess, newRefresh, u.ID, formatTime(expiresAt)); err != nil {
		return u, fmt.Errorf("devbackend: insert tokens: %w", err)
	}
	return u, tx.Commit()
}

// RevokeAccessToken deletes the token pair that access belongs to.
func (db *DB) RevokeAccessToken(ctx context.Context, access string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM tokens WHERE access_token = ?`, access)
	if err != nil {
		return fmt.Errorf("devbackend: revoke token: %w", err)
	}
	return nil
}

const noteColumns = `id, title, content, user_id, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (models.Note, error) {
	var (
		n                models.Note
		created, updated string
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.UserID, &created, &updated); err != nil {
		return n, err
	}
	var err error
	if n.CreatedAt, err = parseTime(created); err != nil {
		return n, err
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return n, err
	}
	return n, nil
}

// ListNotes returns the notes owned by ownerID.
func (db *DB) ListNotes(ctx context.Context, ownerID string, order Order) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? ORDER BY `+order.clause(""), ownerID)
	if err != nil {
		return nil, fmt.Errorf("devbackend: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("devbackend: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// GetNote returns the note with the given id if ownerID owns it.
func (db *DB) GetNote(ctx context.Context, id, ownerID string) (*models.Note, error) {
	n, err := scanNote(db.conn.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("devbackend: get note: %w", err)
	}
	return &n, nil
}

// InsertNote stores n as given.
func (db *DB) InsertNote(ctx context.Context, n models.Note) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, n.UserID, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("devbackend: insert note: %w", err)
	}
	return nil
}

// UpdateNote applies the non-nil fields to a note owned by ownerID and
// stamps updated_at with now. It returns the stored row.
func (db *DB) UpdateNote(ctx context.Context, id, ownerID string, title, content *string, now time.Time) (*models.Note, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET
			title      = COALESCE(?, title),
			content    = COALESCE(?, content),
			updated_at = ?
		WHERE id = ? AND user_id = ?`,
		title, content, formatTime(now), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("devbackend: update note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.ErrNotFound
	}
	return db.GetNote(ctx, id, ownerID)
}

// DeleteNote deletes a note owned by ownerID. Deleting nothing is not an error.
func (db *DB) DeleteNote(ctx context.Context, id, ownerID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("devbackend: delete note: %w", err)
	}
	return nil
}

// ListComments returns the comments of a note owned by ownerID.
func (db *DB) ListComments(ctx context.Context, noteID, ownerID string, order Order) ([]models.Comment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.note_id, c.content
		FROM comments c JOIN notes n ON n.id = c.note_id
		WHERE c.note_id = ? AND n.user_id = ?
		ORDER BY `+order.clause("c."), noteID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("devbackend: list comments: %w", err)
	}
	defer rows.Close()

	out := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.NoteID, &c.Content); err != nil {
			return nil, fmt.Errorf("devbackend: scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertComment stores a comment.
func (db *DB) InsertComment(ctx context.Context, c models.Comment, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, note_id, content, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.NoteID, c.Content, formatTime(now))
	if err != nil {
		return fmt.Errorf("devbackend: insert comment: %w", err)
	}
	return nil
}
