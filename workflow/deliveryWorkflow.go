package workflow

import (
	"context"
	"errors"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"bitbucket.org/backstitch/garments_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer trace.Tracer = otel.Tracer("garments-backend")

// DeliveryResult reports what a delivery did to the pending order.
type DeliveryResult struct {
	Status    models.DeliveryStatus `json:"status"`
	Action    string                `json:"action,omitempty"`
	Delivered models.SizeMap        `json:"delivered"`
	Remaining models.SizeMap        `json:"remaining,omitempty"`
}

// DeliverPendingOrder converts part (or all) of a pending order into a sales
// log and recomputes the remainder. The remainder is always re-derived from
// the parent order minus the sum of every sales log ever recorded against its
// (order_number, financial_year, product_id), so repeated partial deliveries
// converge instead of drifting. Deliveries on the same order are serialized by
// the order key lock; the sales log, the ledger move and the pending rewrite
// commit in one transaction.
func DeliverPendingOrder(ctx context.Context, actor models.Actor, pendingOrderId int, deliveredSizes models.SizeMap, deliveryDate string) (*DeliveryResult, error) {
	ctx, span := tracer.Start(ctx, "DeliverPendingOrder")
	defer span.End()

	logger := config.GetLogger()

	date, err := utils.ParseDate(deliveryDate)
	if err != nil {
		return nil, err
	}

	pending, err := models.GetPendingOrder(ctx, pendingOrderId)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("order_number", pending.OrderNumber),
		attribute.String("financial_year", pending.FinancialYear),
	)

	release, err := utils.KeyLock(ctx, models.OrderKey(pending.OrderNumber, pending.FinancialYear), "orderops", "deliveryWorkflow.go", "DeliverPendingOrder")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()

	// Re-read under the lock; an earlier delivery may have shrunk the sizes.
	if err := tx.First(pending, pendingOrderId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	beforeSizes := pending.Sizes.Clone()
	delivered := deliveredSizes.ClampTo(pending.Sizes)

	if !delivered.IsEmpty() {
		orderNumber := pending.OrderNumber
		financialYear := pending.FinancialYear
		saleLog := models.SalesLog{
			ProductId:     pending.ProductId,
			Color:         pending.Color,
			ColourCode:    pending.ColourCode,
			Sizes:         delivered,
			Date:          date,
			AgencyName:    pending.AgencyName,
			StoreName:     pending.StoreName,
			OrderNumber:   &orderNumber,
			FinancialYear: &financialYear,
		}
		if err := models.CreateSalesLogInTx(tx, &saleLog); err != nil {
			tx.Rollback()
			config.LogError(logger, "deliveryWorkflow.go", "DeliverPendingOrder", "CreateSalesLogInTx", delivered, err)
			return nil, err
		}
	}

	remaining, auditAction, err := recomputeRemainingInTx(tx, pending, delivered)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result := &DeliveryResult{Delivered: delivered}
	if remaining.IsEmpty() {
		if err := tx.Delete(pending).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		result.Status = models.DeliveryStatusDelivered
		result.Action = "removed"
	} else {
		pending.Sizes = remaining
		if err := tx.Save(pending).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		result.Status = models.DeliveryStatusPartiallyDelivered
		result.Remaining = remaining
	}

	err = models.SaveHistoryAction(tx, auditAction, pending.ID, "pending_orders", beforeSizes, delivered,
		"pending order delivery")
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

// recomputeRemainingInTx derives what is still undelivered. The truth path
// reads the parent order and sums every sales log against it; a pending row
// whose parent order is gone falls back to the naive clamp-and-subtract so the
// delivery still lands, flagged in the audit trail.
func recomputeRemainingInTx(tx *gorm.DB, pending *models.PendingOrder, delivered models.SizeMap) (models.SizeMap, string, error) {
	var order models.Order
	err := tx.
		Where("order_number = ? AND financial_year = ? AND product_id = ?",
			pending.OrderNumber, pending.FinancialYear, pending.ProductId).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogWarn(config.GetLogger(), "deliveryWorkflow.go", "DeliverPendingOrder",
				"pending order has no parent order, using naive remainder", map[string]any{
					"pending_order_id": pending.ID,
					"order_number":     pending.OrderNumber,
					"financial_year":   pending.FinancialYear,
				})
			return pending.Sizes.SubtractPositive(delivered), "DELIVER_ORPHANED_PENDING_ORDER", nil
		}
		return nil, "", err
	}

	deliveredTotal, err := models.DeliveredTotalsInTx(tx, pending.OrderNumber, pending.FinancialYear, pending.ProductId)
	if err != nil {
		return nil, "", err
	}
	return order.Sizes.SubtractPositive(deliveredTotal), "DELIVER_PENDING_ORDER", nil
}
