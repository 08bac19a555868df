// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package users is the credential store behind registration and login:
// email/password accounts with a bcrypt hash, one role, and a uniqueness
// constraint on email. Grounded on the teacher's internal/database/api_keys.go
// sqlite-store idiom (New...Store constructor runs initSchema, plain
// database/sql calls, fmt.Errorf-wrapped errors).
package users

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/northbound/ragvault/internal/apperror"
	"github.com/northbound/ragvault/internal/identity"
)

// User is one registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         identity.Role
}

// Store manages accounts over database/sql.
type Store struct {
	db *sql.DB
}

// New constructs a Store and initializes its schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("users: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create registers a new account with the given email and plaintext
// password, hashing the password before it ever reaches the database. The
// first account ever registered is granted RoleAdmin, matching spec.md
// §9's open-question resolution that someone must be able to bootstrap
// shared memory without a separate provisioning step.
func (s *Store) Create(email, password string) (*User, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return nil, fmt.Errorf("users: count accounts: %w", err)
	}
	role := identity.RoleUser
	if count == 0 {
		role = identity.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		"INSERT INTO users (id, email, password_hash, role) VALUES (?, ?, ?, ?)",
		id, email, string(hash), string(role),
	)
	if err != nil {
		return nil, apperror.Conflictf("an account with that email already exists")
	}
	return &User{ID: id, Email: email, PasswordHash: string(hash), Role: role}, nil
}

// GetByEmail returns nil, nil if no account matches.
func (s *Store) GetByEmail(email string) (*User, error) {
	var u User
	var role string
	err := s.db.QueryRow("SELECT id, email, password_hash, role FROM users WHERE email = ?", email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: lookup by email: %w", err)
	}
	u.Role = identity.Role(role)
	return &u, nil
}

// VerifyPassword reports whether password matches the account's stored hash.
func (s *Store) VerifyPassword(u *User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
