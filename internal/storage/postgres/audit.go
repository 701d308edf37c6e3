package postgres

import (
	"context"
	"fmt"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/storage"
)

type AuditRepository struct {
	db storage.DBTX
}

func NewAuditRepository(db storage.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) InsertAuditLog(ctx context.Context, entry models.AuditLog) error {
	query := `INSERT INTO audit_logs (user_id, action, entity_type, entity_id, metadata, ip_address, user_agent, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.UserID,
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		entry.Metadata,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}
