package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rryowa/quantive/internal/storage"
)

type Storage struct {
	db *sql.DB
	*UserRepository
	*RefreshTokenRepository
	*AuditRepository
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:                     db,
		UserRepository:         NewUserRepository(db),
		RefreshTokenRepository: NewRefreshTokenRepository(db),
		AuditRepository:        NewAuditRepository(db),
	}
}

type txRepositories struct {
	*UserRepository
	*RefreshTokenRepository
	*AuditRepository
}

// InTx runs fn under REPEATABLE READ, so two transactions locking the same
// refresh token cannot both commit: the loser gets a serialization failure,
// reported as storage.ErrConflict.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, repos storage.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	repos := txRepositories{
		UserRepository:         NewUserRepository(tx),
		RefreshTokenRepository: NewRefreshTokenRepository(tx),
		AuditRepository:        NewAuditRepository(tx),
	}

	if err = fn(ctx, repos); err != nil {
		return classify(err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}
