package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/utils"
	"gorm.io/gorm"
)

// PendingOrder is the undelivered shadow of an Order, linked by the
// (order_number, financial_year) domain key rather than a foreign key. Its
// absence is the "fully delivered" signal.
type PendingOrder struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ProductId     int       `gorm:"index;not null" json:"product_id"`
	Date          time.Time `gorm:"type:date;not null" json:"date"`
	Color         string    `gorm:"size:100" json:"color"`
	ColourCode    int       `json:"colour_code"`
	Sizes         SizeMap   `gorm:"type:json" json:"sizes"`
	AgencyName    string    `gorm:"size:255" json:"agency_name"`
	StoreName     string    `gorm:"size:255" json:"store_name"`
	OrderNumber   int       `gorm:"not null;uniqueIndex:uq_pending_number_finyear" json:"order_number"`
	FinancialYear string    `gorm:"size:10;not null;uniqueIndex:uq_pending_number_finyear" json:"financial_year"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetPendingOrder(ctx context.Context, id int) (*PendingOrder, error) {
	return utils.FetchSingleModel[PendingOrder](ctx, id)
}

func GetPendingOrdersByProduct(ctx context.Context, productId int, limit int, offset int) ([]*PendingOrder, error) {
	db := config.GetDB()
	var orders []*PendingOrder
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Limit(limit).Offset(offset).
		Order("date DESC, created_at DESC").
		Find(&orders).Error
	return orders, err
}

func GetAllPendingOrders(ctx context.Context) ([]*PendingOrder, error) {
	db := config.GetDB()
	var orders []*PendingOrder
	err := db.WithContext(ctx).Order("date DESC, created_at DESC").Find(&orders).Error
	return orders, err
}

// createPendingMirrorInTx creates the pending shadow of a freshly created
// order. No deliveries can exist yet, so the sizes are copied verbatim.
func createPendingMirrorInTx(tx *gorm.DB, order *Order) error {
	pending := PendingOrder{
		ProductId:     order.ProductId,
		Date:          order.Date,
		Color:         order.Color,
		ColourCode:    order.ColourCode,
		Sizes:         order.Sizes.Clone(),
		AgencyName:    order.AgencyName,
		StoreName:     order.StoreName,
		OrderNumber:   order.OrderNumber,
		FinancialYear: order.FinancialYear,
	}
	return tx.Create(&pending).Error
}

// syncPendingMirrorInTx recomputes the pending sizes of an edited order as
// new ordered quantities minus delivered-so-far, keeping positive remainders
// only. A missing pending row is non-fatal: the order may have been fully
// delivered and its row already removed.
func syncPendingMirrorInTx(tx *gorm.DB, order *Order, delivered SizeMap) error {
	var pending PendingOrder
	err := tx.
		Where("order_number = ? AND financial_year = ?", order.OrderNumber, order.FinancialYear).
		First(&pending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogWarn(config.GetLogger(), "pendingOrder", "syncPendingMirrorInTx",
				"no pending order to sync", map[string]any{
					"order_number":   order.OrderNumber,
					"financial_year": order.FinancialYear,
				})
			return nil
		}
		return err
	}

	pending.Sizes = order.Sizes.SubtractPositive(delivered)
	pending.Date = order.Date
	pending.Color = order.Color
	pending.ColourCode = order.ColourCode
	pending.AgencyName = order.AgencyName
	pending.StoreName = order.StoreName

	if pending.Sizes.IsEmpty() {
		return tx.Delete(&pending).Error
	}
	return tx.Save(&pending).Error
}

// deletePendingMirrorInTx removes the pending shadow; already-gone is fine.
func deletePendingMirrorInTx(tx *gorm.DB, orderNumber int, financialYear string) error {
	var pending PendingOrder
	err := tx.
		Where("order_number = ? AND financial_year = ?", orderNumber, financialYear).
		First(&pending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			config.LogWarn(config.GetLogger(), "pendingOrder", "deletePendingMirrorInTx",
				"no pending order to delete", map[string]any{
					"order_number":   orderNumber,
					"financial_year": financialYear,
				})
			return nil
		}
		return err
	}
	return tx.Delete(&pending).Error
}
