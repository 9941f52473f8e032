package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fiado/internal/credit"
	"fiado/internal/db"
	"fiado/internal/models"
)

// AccountRepository handles the administrative credit-account surface. The
// credit engine itself only ever reads accounts; this repository is what
// platform operators use to configure limits and block accounts.
type AccountRepository struct {
	db *db.DB
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(database *db.DB) *AccountRepository {
	return &AccountRepository{db: database}
}

// Create creates a credit account for a retailer-wholesaler pair.
func (r *AccountRepository) Create(ctx context.Context, params models.CreateAccountParams) (*models.CreditAccount, error) {
	if params.CreditLimit.IsNegative() {
		return nil, credit.ErrInvalidAmount
	}

	row := r.db.Pool().QueryRow(ctx, `
		INSERT INTO credit_accounts (retailer_id, wholesaler_id, credit_limit)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns,
		params.RetailerID, params.WholesalerID, params.CreditLimit,
	)

	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, credit.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// Update applies administrative changes. Nil fields are left untouched.
func (r *AccountRepository) Update(ctx context.Context, pair models.Pair, params models.UpdateAccountParams) (*models.CreditAccount, error) {
	if params.CreditLimit != nil && params.CreditLimit.IsNegative() {
		return nil, credit.ErrInvalidAmount
	}

	row := r.db.Pool().QueryRow(ctx, `
		UPDATE credit_accounts
		SET credit_limit = COALESCE($3, credit_limit),
			is_active = COALESCE($4, is_active),
			is_blocked = COALESCE($5, is_blocked),
			updated_at = NOW()
		WHERE retailer_id = $1 AND wholesaler_id = $2
		RETURNING `+accountColumns,
		pair.RetailerID, pair.WholesalerID,
		params.CreditLimit, params.IsActive, params.IsBlocked,
	)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, credit.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return account, nil
}

// Get returns the pair's account, or credit.ErrAccountNotFound.
func (r *AccountRepository) Get(ctx context.Context, pair models.Pair) (*models.CreditAccount, error) {
	account, err := getAccount(ctx, r.db.Pool(), pair)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, credit.ErrAccountNotFound
	}
	return account, nil
}
