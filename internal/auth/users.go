package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username already taken")
)

const bcryptCost = 12

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	CreatedAt   int64  `json:"created_at"`
}

// NewUser is the creation payload; the plaintext password never leaves
// this package un-hashed.
type NewUser struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

func validRole(r string) bool { return r == "student" || r == "admin" }

// UserStore manages accounts in the users table.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db} }

// Authenticate verifies a username/password pair.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,username,password_hash,role,display_name,created_at FROM users WHERE username=$1`, username)
	var u User
	var hash string
	if err := row.Scan(&u.ID, &u.Username, &hash, &u.Role, &u.DisplayName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, errors.New("password mismatch")
	}
	return u, nil
}

func (s *UserStore) Create(ctx context.Context, nu NewUser) (User, error) {
	if nu.Username == "" || nu.Password == "" {
		return User{}, errors.New("username and password required")
	}
	if nu.Role == "" {
		nu.Role = "student"
	}
	if !validRole(nu.Role) {
		return User{}, fmt.Errorf("invalid role: %s", nu.Role)
	}
	if len(nu.Password) < 6 {
		return User{}, errors.New("password too short (min 6 chars)")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcryptCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:          uuid.NewString(),
		Username:    nu.Username,
		Role:        nu.Role,
		DisplayName: nu.DisplayName,
		CreatedAt:   time.Now().Unix(),
	}
	if u.DisplayName == "" {
		u.DisplayName = nu.Username
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, nu.Username).Scan(&exists)
	if err == nil {
		return User{}, ErrUserExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id,username,password_hash,role,display_name,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, string(hash), u.Role, u.DisplayName, u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// BulkCreate inserts many accounts in one transaction; one bad row
// rolls back the batch.
func (s *UserStore) BulkCreate(ctx context.Context, rows []NewUser) ([]User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	out := make([]User, 0, len(rows))
	for i, nu := range rows {
		if nu.Role == "" {
			nu.Role = "student"
		}
		if !validRole(nu.Role) {
			return nil, fmt.Errorf("row %d: invalid role: %s", i+1, nu.Role)
		}
		if nu.Username == "" || len(nu.Password) < 6 {
			return nil, fmt.Errorf("row %d: username required and password min 6 chars", i+1)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcryptCost)
		if err != nil {
			return nil, err
		}
		u := User{
			ID:          uuid.NewString(),
			Username:    nu.Username,
			Role:        nu.Role,
			DisplayName: nu.DisplayName,
			CreatedAt:   now,
		}
		if u.DisplayName == "" {
			u.DisplayName = nu.Username
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id,username,password_hash,role,display_name,created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			u.ID, u.Username, string(hash), u.Role, u.DisplayName, u.CreatedAt); err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, nu.Username, err)
		}
		out = append(out, u)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserStore) Get(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,username,role,display_name,created_at FROM users WHERE id=$1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &u.DisplayName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context, role string) ([]User, error) {
	var rows *sql.Rows
	var err error
	if role == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id,username,role,display_name,created_at FROM users ORDER BY username`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id,username,role,display_name,created_at FROM users WHERE role=$1 ORDER BY username`, role)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update changes username, role, and display name. Empty fields keep
// their current values.
func (s *UserStore) Update(ctx context.Context, id string, username, role, displayName string) (User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if username != "" {
		u.Username = username
	}
	if role != "" {
		if !validRole(role) {
			return User{}, fmt.Errorf("invalid role: %s", role)
		}
		u.Role = role
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET username=$1, role=$2, display_name=$3 WHERE id=$4`,
		u.Username, u.Role, u.DisplayName, id)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *UserStore) SetPassword(ctx context.Context, id, password string) error {
	if len(password) < 6 {
		return errors.New("password too short (min 6 chars)")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// BulkDelete removes many accounts; missing ids are counted, not fatal.
func (s *UserStore) BulkDelete(ctx context.Context, ids []string) (deleted int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
		if err != nil {
			return deleted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}
	return deleted, tx.Commit()
}

// EnsureAdmin bootstraps the admin account from config on first start.
// No-op when the username exists or no password is configured.
func (s *UserStore) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, username).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = s.Create(ctx, NewUser{Username: username, Password: password, Role: "admin", DisplayName: username})
	return err
}
