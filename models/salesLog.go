package models

import (
	"context"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/utils"
	"gorm.io/gorm"
)

// SalesLog records quantities sold for one product colorway. When the sale
// originates from a pending-order delivery it carries the order number and
// financial year so delivered totals can be re-derived per order.
type SalesLog struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ProductId     int       `gorm:"index;not null" json:"product_id"`
	Color         string    `gorm:"size:100;not null" json:"color"`
	ColourCode    int       `json:"colour_code"`
	Sizes         SizeMap   `gorm:"type:json;not null" json:"sizes"`
	Date          time.Time `gorm:"type:date;not null" json:"date"`
	AgencyName    string    `gorm:"size:255" json:"agency_name"`
	StoreName     string    `gorm:"size:255" json:"store_name"`
	OrderNumber   *int      `gorm:"index:idx_sales_order_ref" json:"order_number"`
	FinancialYear *string   `gorm:"size:10;index:idx_sales_order_ref" json:"financial_year"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSalesLog struct {
	ProductId     int     `json:"product_id" validate:"required"`
	Color         string  `json:"color" validate:"required"`
	ColourCode    int     `json:"colour_code"`
	Sizes         SizeMap `json:"sizes" validate:"required"`
	Date          string  `json:"date" validate:"required"`
	AgencyName    string  `json:"agency_name"`
	StoreName     string  `json:"store_name"`
	OrderNumber   *int    `json:"order_number"`
	FinancialYear *string `json:"financial_year"`
}

type UpdateSalesLog struct {
	Color      *string `json:"color"`
	ColourCode *int    `json:"colour_code"`
	Sizes      SizeMap `json:"sizes"`
	Date       *string `json:"date"`
	AgencyName *string `json:"agency_name"`
	StoreName  *string `json:"store_name"`
}

func (l *SalesLog) ledgerEvent() LedgerEvent {
	return LedgerEvent{
		Kind:       LedgerEventSale,
		ProductId:  l.ProductId,
		Color:      l.Color,
		ColourCode: l.ColourCode,
		Sizes:      l.Sizes,
	}
}

func GetSalesLogsByProduct(ctx context.Context, productId int, limit int, offset int) ([]*SalesLog, error) {
	db := config.GetDB()
	var logs []*SalesLog
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Limit(limit).Offset(offset).
		Order("date DESC, created_at DESC").
		Find(&logs).Error
	return logs, err
}

func GetSalesLog(ctx context.Context, id int) (*SalesLog, error) {
	return utils.FetchSingleModel[SalesLog](ctx, id)
}

// CreateSalesLogInTx persists the log and applies its ledger effect inside the
// caller's transaction. The delivery processor uses this so the sale, the
// pending recomputation and the ledger move commit together.
func CreateSalesLogInTx(tx *gorm.DB, log *SalesLog) error {
	if err := tx.Create(log).Error; err != nil {
		return err
	}
	return ApplyLedgerEvent(tx, log.ledgerEvent(), StockOperationCreate)
}

func CreateSalesLog(ctx context.Context, actor Actor, input *NewSalesLog) (*SalesLog, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	date, err := utils.ParseDate(input.Date)
	if err != nil {
		return nil, err
	}
	product, err := GetProduct(ctx, input.ProductId)
	if err != nil {
		return nil, err
	}
	if err := product.validateColorAndSizes(input.Color, input.Sizes); err != nil {
		return nil, err
	}

	colourCode := input.ColourCode
	if colourCode == 0 {
		colourCode = product.ColourCodeFor(input.Color)
	}

	log := SalesLog{
		ProductId:     input.ProductId,
		Color:         input.Color,
		ColourCode:    colourCode,
		Sizes:         input.Sizes,
		Date:          date,
		AgencyName:    input.AgencyName,
		StoreName:     input.StoreName,
		OrderNumber:   input.OrderNumber,
		FinancialYear: input.FinancialYear,
	}

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := CreateSalesLogInTx(tx, &log); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// UpdateSalesLogById rewrites the log; ledger effect replaced as
// undo-old + apply-new in the same transaction.
func UpdateSalesLogById(ctx context.Context, actor Actor, id int, input *UpdateSalesLog) (*SalesLog, error) {
	log, err := utils.FetchSingleModel[SalesLog](ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *log
	if input.Color != nil {
		updated.Color = *input.Color
	}
	if input.ColourCode != nil {
		updated.ColourCode = *input.ColourCode
	}
	if input.Sizes != nil {
		updated.Sizes = input.Sizes
	}
	if input.Date != nil {
		date, err := utils.ParseDate(*input.Date)
		if err != nil {
			return nil, err
		}
		updated.Date = date
	}
	if input.AgencyName != nil {
		updated.AgencyName = *input.AgencyName
	}
	if input.StoreName != nil {
		updated.StoreName = *input.StoreName
	}

	product, err := GetProduct(ctx, updated.ProductId)
	if err != nil {
		return nil, err
	}
	if err := product.validateColorAndSizes(updated.Color, updated.Sizes); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := ApplyLedgerEvent(tx, log.ledgerEvent(), StockOperationDelete); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Save(&updated).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := ApplyLedgerEvent(tx, updated.ledgerEvent(), StockOperationCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

func DeleteSalesLogById(ctx context.Context, actor Actor, id int) (*SalesLog, error) {
	log, err := utils.FetchSingleModel[SalesLog](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := ApplyLedgerEvent(tx, log.ledgerEvent(), StockOperationDelete); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(log).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return log, nil
}

// DeliveredTotalsInTx sums every sales log ever recorded against one order,
// per size. Scoped by (order_number, financial_year, product_id) so reused
// order numbers in other fiscal years can never bleed into the total.
func DeliveredTotalsInTx(tx *gorm.DB, orderNumber int, financialYear string, productId int) (SizeMap, error) {
	var logs []*SalesLog
	err := tx.
		Where("order_number = ? AND financial_year = ? AND product_id = ?", orderNumber, financialYear, productId).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	total := SizeMap{}
	for _, log := range logs {
		total.Add(log.Sizes)
	}
	return total, nil
}
