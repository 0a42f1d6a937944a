package models

import (
	"context"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/utils"
)

// InwardLog records a supply (stock increase) or return (stock decrease) for
// one product colorway on one date.
type InwardLog struct {
	ID              int            `gorm:"primary_key" json:"id"`
	ProductId       int            `gorm:"index;not null" json:"product_id"`
	Color           string         `gorm:"size:100;not null" json:"color"`
	ColourCode      int            `json:"colour_code"`
	Sizes           SizeMap        `gorm:"type:json;not null" json:"sizes"`
	Date            time.Time      `gorm:"type:date;not null" json:"date"`
	Category        InwardCategory `gorm:"size:10;not null" json:"category"`
	StakeholderName string         `gorm:"size:255" json:"stakeholder_name"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInwardLog struct {
	ProductId       int            `json:"product_id" validate:"required"`
	Color           string         `json:"color" validate:"required"`
	ColourCode      int            `json:"colour_code"`
	Sizes           SizeMap        `json:"sizes" validate:"required"`
	Date            string         `json:"date" validate:"required"`
	Category        InwardCategory `json:"category" validate:"required"`
	StakeholderName string         `json:"stakeholder_name"`
}

type UpdateInwardLog struct {
	Color           *string         `json:"color"`
	ColourCode      *int            `json:"colour_code"`
	Sizes           SizeMap         `json:"sizes"`
	Date            *string         `json:"date"`
	Category        *InwardCategory `json:"category"`
	StakeholderName *string         `json:"stakeholder_name"`
}

// ledgerEvent maps the log onto the closed stock-event variant.
func (l *InwardLog) ledgerEvent() LedgerEvent {
	kind := LedgerEventSupply
	if l.Category == InwardCategoryReturn {
		kind = LedgerEventReturn
	}
	return LedgerEvent{
		Kind:       kind,
		ProductId:  l.ProductId,
		Color:      l.Color,
		ColourCode: l.ColourCode,
		Sizes:      l.Sizes,
	}
}

func GetInwardLogsByProduct(ctx context.Context, productId int, limit int, offset int) ([]*InwardLog, error) {
	db := config.GetDB()
	var logs []*InwardLog
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Limit(limit).Offset(offset).
		Order("date DESC, created_at DESC").
		Find(&logs).Error
	return logs, err
}

func GetInwardLog(ctx context.Context, id int) (*InwardLog, error) {
	return utils.FetchSingleModel[InwardLog](ctx, id)
}

// CreateInwardLog persists the log and applies its ledger effect in one
// transaction.
func CreateInwardLog(ctx context.Context, actor Actor, input *NewInwardLog) (*InwardLog, error) {
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

	log := InwardLog{
		ProductId:       input.ProductId,
		Color:           input.Color,
		ColourCode:      colourCode,
		Sizes:           input.Sizes,
		Date:            date,
		Category:        input.Category,
		StakeholderName: input.StakeholderName,
	}

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := tx.Create(&log).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := ApplyLedgerEvent(tx, log.ledgerEvent(), StockOperationCreate); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// UpdateInwardLogById rewrites the log. The ledger effect is replaced by
// undoing the old values and applying the new ones inside the same
// transaction, so the ledger carries exactly one net effect per log.
func UpdateInwardLogById(ctx context.Context, actor Actor, id int, input *UpdateInwardLog) (*InwardLog, error) {
	log, err := utils.FetchSingleModel[InwardLog](ctx, id)
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
	if input.Category != nil {
		updated.Category = *input.Category
	}
	if input.StakeholderName != nil {
		updated.StakeholderName = *input.StakeholderName
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

func DeleteInwardLogById(ctx context.Context, actor Actor, id int) (*InwardLog, error) {
	log, err := utils.FetchSingleModel[InwardLog](ctx, id)
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
