package workflow

import (
	"context"
	"os"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditDispatcher ships committed History rows to the external audit store
// over Pub/Sub. Rows are written inside the mutating transaction and picked up
// here after commit, so an audit event is never published for a rolled-back
// mutation. Claimed rows are marked Processing with this dispatcher's id so a
// second instance cannot double-publish them; a crashed dispatcher's claims go
// stale after LockTimeout and are reclaimed.
type AuditDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	LockTimeout  time.Duration
}

func NewAuditDispatcher(db *gorm.DB, logger *logrus.Logger) *AuditDispatcher {
	return &AuditDispatcher{
		DB:           db,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		PollInterval: 2 * time.Second,
		LockTimeout:  5 * time.Minute,
	}
}

func (d *AuditDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	d.ensureTopic(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *AuditDispatcher) ensureTopic(ctx context.Context) {
	topic := os.Getenv("AUDIT_PUBSUB_TOPIC")
	if topic == "" {
		return
	}
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		config.LogError(d.Logger, "auditDispatcher.go", "ensureTopic", "pubsub client unavailable", topic, err)
		return
	}
	if _, err := config.CreateTopicIfNotExists(client, topic); err != nil {
		config.LogError(d.Logger, "auditDispatcher.go", "ensureTopic", "create topic", topic, err)
	}
}

// DispatchOnce claims one batch and publishes it. Eligible rows are
// Pending/Failed, plus Processing rows whose claim went stale.
func (d *AuditDispatcher) DispatchOnce(ctx context.Context) {
	db := d.DB
	if db == nil {
		return
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.History
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where(`
				publish_status IN ?
				OR (publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)
			`, []models.AuditPublishStatus{
				models.AuditPublishStatusPending, models.AuditPublishStatusFailed,
			}, models.AuditPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]int, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
		}
		return tx.Model(&models.History{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"publish_status": models.AuditPublishStatusProcessing,
				"locked_by":      d.DispatcherID,
				"locked_at":      now,
			}).Error
	})
	if err != nil {
		config.LogError(d.Logger, "auditDispatcher.go", "DispatchOnce", "claim batch", nil, err)
		return
	}

	for _, rec := range claimed {
		msg := config.AuditMessage{
			ID:            rec.ID,
			ActionType:    rec.ActionType,
			ReferenceId:   rec.ReferenceID,
			ReferenceType: rec.ReferenceType,
			Before:        rec.Before,
			After:         rec.After,
			UserId:        rec.UserId,
			UserName:      rec.UserName,
			RecordedAt:    rec.CreatedAt,
			CorrelationId: rec.CorrelationId,
		}
		if _, err := config.PublishAuditMessage(ctx, msg); err != nil {
			d.markStatus(ctx, rec.ID, models.AuditPublishStatusFailed)
			config.LogError(d.Logger, "auditDispatcher.go", "DispatchOnce", "publish audit event", rec.ID, err)
			continue
		}
		d.markStatus(ctx, rec.ID, models.AuditPublishStatusPublished)
	}
}

func (d *AuditDispatcher) markStatus(ctx context.Context, id int, status models.AuditPublishStatus) {
	err := d.DB.WithContext(ctx).Model(&models.History{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status": status,
			"locked_by":      nil,
			"locked_at":      nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "auditDispatcher.go", "markStatus", "update publish status", id, err)
	}
}
