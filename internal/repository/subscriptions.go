package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/Quill/internal/database"
	"github.com/dharsanguruparan/Quill/internal/storage"
)

var _ storage.SubscriptionStore = (*SubscriptionRepository)(nil)

type SubscriptionRepository struct {
	db database.DBTX
}

func NewSubscriptionRepository(db database.DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// IsSubscribed is true while the current billing period has not ended.
func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions WHERE user_id=$1 AND current_period_end > NOW()
		)`, userID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("select subscription: %w", err)
	}
	return active, nil
}

func (r *SubscriptionRepository) SetSubscription(ctx context.Context, userID string, periodEnd time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO subscriptions (user_id, current_period_end, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET current_period_end = EXCLUDED.current_period_end, updated_at = NOW()
	`, userID, periodEnd.UTC())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}
