package memory

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/storage"
)

// Storage keeps everything in process memory. InTx holds the lock for the whole
// transaction, so transactions are serialized and never conflict.
type Storage struct {
	mu  sync.Mutex
	st  *state
	log *zap.SugaredLogger
}

func NewStorage(log *zap.SugaredLogger) *Storage {
	return &Storage{st: newState(), log: log}
}

type state struct {
	users       map[int64]models.User
	emails      map[string]int64
	tokens      map[string]models.RefreshToken
	audit       []models.AuditLog
	nextUserID  int64
	nextTokenID int64
	nextAuditID int64
}

func newState() *state {
	return &state{
		users:  make(map[int64]models.User),
		emails: make(map[string]int64),
		tokens: make(map[string]models.RefreshToken),
	}
}

// InTx writes straight into the shared state and keeps an undo log, so a
// transaction costs what it writes. A failed or panicking fn is undone in
// reverse order.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, repos storage.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &repos{st: s.st, undo: &[]func(){}}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		s.log.Debugw("Transaction rolled back", "error", err)
		return err
	}
	return nil
}

// AuditLogs returns a copy of every audit entry written so far.
func (s *Storage) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.audit)
}

func (s *Storage) direct() *repos {
	return &repos{st: s.st}
}
