package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// normName trims and lowercases usernames and emails before storage
func normName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// CreateUser inserts a new user with a hashed password
func (p *Postgres) CreateUser(ctx context.Context, username, email, password string) (User, error) {
	username = normName(username)
	email = normName(email)
	if username == "" || email == "" || password == "" {
		return User{}, errors.New("missing username, email or password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email, created_at
	`, username, email, string(hash))

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByID resolves a token's user_id claim to a live user.
// Returns ErrNotFound for deleted users so auth fails uniformly.
func (p *Postgres) GetUserByID(ctx context.Context, id string) (User, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1
	`, id)

	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// getUserByUsername returns the user + hashed password for login verification
func (p *Postgres) getUserByUsername(ctx context.Context, username string) (User, string, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE username = $1
	`, normName(username))

	var u User
	var hash string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &hash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, "", ErrNotFound
		}
		return User{}, "", err
	}
	return u, hash, nil
}

// VerifyUser checks username + password match
func (p *Postgres) VerifyUser(ctx context.Context, username, password string) (User, error) {
	u, hash, err := p.getUserByUsername(ctx, username)
	if err != nil {
		return User{}, errors.New("invalid credentials")
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, errors.New("invalid credentials")
	}

	return u, nil
}
