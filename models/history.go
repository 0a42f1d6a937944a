package models

import (
	"context"
	"time"

	"bitbucket.org/backstitch/garments_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor identifies who performs a mutation. It is passed explicitly to every
// mutating call and bound to the transaction context, so audit attribution
// never depends on ambient request state.
type Actor struct {
	UserId   int
	UserName string
}

var SystemActor = Actor{UserId: 0, UserName: "system"}

// Bind threads the actor through the given context for the duration of one
// unit of work.
func (a Actor) Bind(ctx context.Context) context.Context {
	ctx = utils.SetUserIdInContext(ctx, a.UserId)
	ctx = utils.SetUserNameInContext(ctx, a.UserName)
	return ctx
}

type AuditPublishStatus string

const (
	AuditPublishStatusPending    AuditPublishStatus = "Pending"
	AuditPublishStatusProcessing AuditPublishStatus = "Processing"
	AuditPublishStatusPublished  AuditPublishStatus = "Published"
	AuditPublishStatusFailed     AuditPublishStatus = "Failed"
)

// History is one emitted audit event. Rows are written inside the mutating
// transaction (transactional outbox); the dispatcher publishes them to the
// external audit store after commit. This core never queries them back.
type History struct {
	ID            int                `gorm:"primary_key" json:"id"`
	ActionType    string             `gorm:"size:30;not null" json:"action_type"`
	Before        string             `gorm:"type:text" json:"before"`
	After         string             `gorm:"type:text" json:"after"`
	Description   string             `gorm:"type:text;not null" json:"description"`
	ReferenceID   int                `gorm:"index" json:"reference_id"`
	ReferenceType string             `gorm:"size:255" json:"reference_type"`
	UserId        int                `gorm:"index" json:"user_id"`
	UserName      string             `gorm:"size:100" json:"user_name"`
	PublishStatus AuditPublishStatus `gorm:"size:20;not null;default:Pending;index" json:"publish_status"`
	LockedBy      *string            `gorm:"size:64" json:"-"`
	LockedAt      *time.Time         `json:"-"`
	CorrelationId string             `gorm:"size:40" json:"correlation_id"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func createHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) (err error) {

	var history History

	b, _ := utils.MarshalToJSON(before)
	a, _ := utils.MarshalToJSON(after)

	ctx := tx.Statement.Context
	// actor is bound to the tx context by the mutating call; absent actor
	// means an internal process, attributed to "system"
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		userId = SystemActor.UserId
	}
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = SystemActor.UserName
	}

	history.ActionType = actionType
	history.Before = b
	history.After = a
	history.Description = description
	history.ReferenceID = referenceId
	history.ReferenceType = referenceType
	history.UserId = userId
	history.UserName = userName
	history.PublishStatus = AuditPublishStatusPending
	history.CorrelationId = correlationIdFromContextOrNew(ctx)

	err = tx.Create(&history).Error
	return err
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func SaveHistoryCreate(tx *gorm.DB, id int, obj interface{}, description string) error {
	return createHistory(tx, "CREATE", id, tx.Statement.Table, nil, obj, description)
}

func SaveHistoryUpdate(tx *gorm.DB, id int, before interface{}, after interface{}, description string) error {
	return createHistory(tx, "UPDATE", id, tx.Statement.Table, before, after, description)
}

func SaveHistoryDelete(tx *gorm.DB, id int, obj interface{}, description string) error {
	return createHistory(tx, "DELETE", id, tx.Statement.Table, obj, nil, description)
}

// SaveHistoryAction records a domain-level audit event that is not a plain
// row mutation, e.g. a pending-order delivery with its before/delivered maps.
func SaveHistoryAction(tx *gorm.DB, actionType string, referenceId int, referenceType string, before interface{}, after interface{}, description string) error {
	return createHistory(tx, actionType, referenceId, referenceType, before, after, description)
}
