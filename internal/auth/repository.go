package auth

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account and returns the created Account.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, phone, role string) (*Account, error) {
	acc := &Account{
		Email:       email,
		DisplayName: displayName,
		Phone:       phone,
		Role:        role,
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, name, phone, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, email, passwordHash, displayName, phone, role)
	if err := row.Scan(&acc.ID); err != nil {
		return nil, err
	}
	return acc, nil
}

// GetByEmail returns the account and password hash for login. Returns nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, string, error) {
	var a Account
	var passwordHash string
	var name, phone *string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, phone, role, password_hash
		FROM accounts WHERE email = $1
	`, email)
	if err := row.Scan(&a.ID, &a.Email, &name, &phone, &a.Role, &passwordHash); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, "", nil
		}
		return nil, "", err
	}
	if name != nil {
		a.DisplayName = *name
	}
	if phone != nil {
		a.Phone = *phone
	}
	return &a, passwordHash, nil
}
