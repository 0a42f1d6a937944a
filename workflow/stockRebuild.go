package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func acquireStockRebuildLock(tx *gorm.DB, productId int) error {
	lockName := fmt.Sprintf("stock_rebuild:%d", productId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire stock rebuild lock for product_id=%d", productId)
	}
	return nil
}

func releaseStockRebuildLock(tx *gorm.DB, productId int) {
	lockName := fmt.Sprintf("stock_rebuild:%d", productId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// RebuildStockForProduct drops the product's ledger rows and replays every
// inward and sales log from scratch. The hot path only ever applies
// incremental deltas; this is the recovery tool for when the ledger is
// suspected to have drifted (missed event, manual database surgery).
func RebuildStockForProduct(ctx context.Context, logger *logrus.Logger, productId int) error {
	if logger == nil {
		logger = config.GetLogger()
	}
	db := config.GetDB()
	var inwardLogs []*models.InwardLog
	var salesLogs []*models.SalesLog
	// GET_LOCK is connection-scoped; pin the session so the lock survives the
	// transaction and is released only after commit.
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireStockRebuildLock(conn, productId); err != nil {
			return err
		}
		defer releaseStockRebuildLock(conn, productId)

		return conn.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("product_id = ?", productId).Delete(&models.ProductColorStock{}).Error; err != nil {
				return err
			}

			if err := tx.Where("product_id = ?", productId).Order("id ASC").Find(&inwardLogs).Error; err != nil {
				return err
			}
			for _, l := range inwardLogs {
				kind := models.LedgerEventSupply
				if l.Category == models.InwardCategoryReturn {
					kind = models.LedgerEventReturn
				}
				event := models.LedgerEvent{
					Kind:       kind,
					ProductId:  l.ProductId,
					Color:      l.Color,
					ColourCode: l.ColourCode,
					Sizes:      l.Sizes,
				}
				if err := models.ApplyLedgerEvent(tx, event, models.StockOperationCreate); err != nil {
					return err
				}
			}

			if err := tx.Where("product_id = ?", productId).Order("id ASC").Find(&salesLogs).Error; err != nil {
				return err
			}
			for _, l := range salesLogs {
				event := models.LedgerEvent{
					Kind:       models.LedgerEventSale,
					ProductId:  l.ProductId,
					Color:      l.Color,
					ColourCode: l.ColourCode,
					Sizes:      l.Sizes,
				}
				if err := models.ApplyLedgerEvent(tx, event, models.StockOperationCreate); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"product_id":  productId,
		"inward_logs": len(inwardLogs),
		"sales_logs":  len(salesLogs),
	}).Info("stock ledger rebuilt")
	return nil
}

// RebuildAllStock replays the ledger product by product.
func RebuildAllStock(ctx context.Context, logger *logrus.Logger) error {
	products, err := models.GetProducts(ctx, 0, 0)
	if err != nil {
		return err
	}
	for _, p := range products {
		if err := RebuildStockForProduct(ctx, logger, p.ID); err != nil {
			return err
		}
	}
	return nil
}
