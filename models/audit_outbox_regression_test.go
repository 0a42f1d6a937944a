package models_test

import (
	"testing"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"bitbucket.org/backstitch/garments_backend/workflow"
)

// The dispatcher must persist its claim before publishing: rows held by a
// live instance are skipped, unclaimed and stale-claimed rows are picked up.
// Publishing fails here (no Pub/Sub project configured), which is enough to
// observe the claim-then-mark lifecycle.
func TestAuditDispatcher_ClaimBeforePublish(t *testing.T) {
	ctx, _ := setupIntegration(t)
	t.Setenv("PUBSUB_PROJECT_ID", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCP_PROJECT", "")

	db := config.GetDB()
	otherInstance := "other-instance"
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	held := models.History{
		ActionType:    "CREATE",
		Description:   "claimed by a live instance",
		PublishStatus: models.AuditPublishStatusProcessing,
		LockedBy:      &otherInstance,
		LockedAt:      &now,
	}
	stale := models.History{
		ActionType:    "CREATE",
		Description:   "claim from a crashed instance",
		PublishStatus: models.AuditPublishStatusProcessing,
		LockedBy:      &otherInstance,
		LockedAt:      &past,
	}
	open := models.History{
		ActionType:    "CREATE",
		Description:   "never claimed",
		PublishStatus: models.AuditPublishStatusPending,
	}
	for _, rec := range []*models.History{&held, &stale, &open} {
		if err := db.WithContext(ctx).Create(rec).Error; err != nil {
			t.Fatal(err)
		}
	}

	d := workflow.NewAuditDispatcher(db, config.GetLogger())
	d.DispatchOnce(ctx)

	reload := func(id int) models.History {
		var rec models.History
		if err := db.WithContext(ctx).First(&rec, id).Error; err != nil {
			t.Fatal(err)
		}
		return rec
	}

	got := reload(held.ID)
	if got.PublishStatus != models.AuditPublishStatusProcessing || got.LockedBy == nil || *got.LockedBy != otherInstance {
		t.Fatalf("row held by a live instance must be left alone, got status=%s locked_by=%v", got.PublishStatus, got.LockedBy)
	}

	// Both eligible rows were claimed and then failed to publish; the claim
	// is cleared when the outcome is recorded.
	for _, rec := range []models.History{reload(stale.ID), reload(open.ID)} {
		if rec.PublishStatus != models.AuditPublishStatusFailed {
			t.Fatalf("eligible row must end up Failed without a pubsub project, got %s", rec.PublishStatus)
		}
		if rec.LockedBy != nil || rec.LockedAt != nil {
			t.Fatalf("claim must be released once the outcome is recorded")
		}
	}
}
