// Package users mirrors upstream identity provider accounts into the local
// users table.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/watzon/authhook/internal/database"
	"github.com/watzon/authhook/internal/webhooks"
)

// ErrNotFound is returned by Get for an unknown uid.
var ErrNotFound = errors.New("user not found")

// User is a row of the users table.
type User struct {
	webhooks.UserRecord
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store implements webhooks.UserService on top of the SQLite mirror.
type Store struct {
	db        *database.DB
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

var _ webhooks.UserService = (*Store)(nil)

func NewStore(db *database.DB) *Store {
	return &Store{
		db:        db,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// CreateUser inserts the user, replacing every column of an existing row with
// the same uid so replayed deliveries converge.
func (s *Store) CreateUser(ctx context.Context, u webhooks.UserRecord) error {
	u = s.clean(u)
	meta, err := encodeMetadata(u.Metadata)
	if err != nil {
		return err
	}
	now := s.timestamp()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, display_name, phone_number, photo_url, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			phone_number = excluded.phone_number,
			photo_url = excluded.photo_url,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, u.UID, u.Email, u.DisplayName, u.PhoneNumber, u.PhotoURL, meta, now, now)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.UID, err)
	}
	return nil
}

// UpdateUser overwrites the fields present in u and keeps the stored value
// of empty ones. A user the mirror has not seen yet is inserted.
func (s *Store) UpdateUser(ctx context.Context, u webhooks.UserRecord) error {
	u = s.clean(u)
	meta, err := encodeMetadata(u.Metadata)
	if err != nil {
		return err
	}
	if len(u.Metadata) == 0 {
		meta = ""
	}
	now := s.timestamp()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, display_name, phone_number, photo_url, metadata, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, COALESCE(NULLIF(?6, ''), '{}'), ?7, ?7)
		ON CONFLICT(uid) DO UPDATE SET
			email = COALESCE(NULLIF(excluded.email, ''), users.email),
			display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name),
			phone_number = COALESCE(NULLIF(excluded.phone_number, ''), users.phone_number),
			photo_url = COALESCE(NULLIF(excluded.photo_url, ''), users.photo_url),
			metadata = CASE WHEN ?6 = '' THEN users.metadata ELSE excluded.metadata END,
			updated_at = excluded.updated_at
	`, u.UID, u.Email, u.DisplayName, u.PhoneNumber, u.PhotoURL, meta, now)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", u.UID, err)
	}
	return nil
}

// DeleteUser removes the user. Deleting an unknown uid is not an error.
func (s *Store) DeleteUser(ctx context.Context, uid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("deleting user %s: %w", uid, err)
	}
	return nil
}

// Get loads a single user.
func (s *Store) Get(ctx context.Context, uid string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, email, display_name, phone_number, photo_url, metadata, created_at, updated_at
		FROM users WHERE uid = ?
	`, uid)

	var (
		u                          User
		email, name, phone, photo  sql.NullString
		meta, createdAt, updatedAt string
	)
	if err := row.Scan(&u.UID, &email, &name, &phone, &photo, &meta, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading user %s: %w", uid, err)
	}

	u.Email = email.String
	u.DisplayName = name.String
	u.PhoneNumber = phone.String
	u.PhotoURL = photo.String

	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &u.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", uid, err)
		}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &u, nil
}

// Count returns the number of mirrored users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// clean strips markup from the free-text display name and trims the other
// fields.
func (s *Store) clean(u webhooks.UserRecord) webhooks.UserRecord {
	u.Email = strings.TrimSpace(u.Email)
	u.PhoneNumber = strings.TrimSpace(u.PhoneNumber)
	u.PhotoURL = strings.TrimSpace(u.PhotoURL)
	u.DisplayName = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(u.DisplayName)))
	return u
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(b), nil
}
