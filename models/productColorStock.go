package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ProductColorStock is one row of the derived stock ledger: the running total
// for a (product, color, size) key. Rows are only ever moved by signed deltas,
// never recomputed on the hot path.
type ProductColorStock struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ProductId  int       `gorm:"not null;uniqueIndex:uq_product_color_size" json:"product_id"`
	Color      string    `gorm:"size:100;not null;uniqueIndex:uq_product_color_size" json:"color"`
	Size       string    `gorm:"size:20;not null;uniqueIndex:uq_product_color_size" json:"size"`
	ColourCode int       `json:"colour_code"`
	TotalStock int       `gorm:"not null;default:0" json:"total_stock"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerEvent is the closed set of stock-moving events. Inward logs map to
// Supply or Return, sales logs to Sale; nothing else touches the ledger.
type LedgerEvent struct {
	Kind       LedgerEventKind
	ProductId  int
	Color      string
	ColourCode int
	Sizes      SizeMap
}

// signedDelta produces the per-size stock delta for one event lifecycle
// transition. DELETE undoes a previously applied CREATE.
func (e LedgerEvent) signedDelta(op StockOperation) (SizeMap, error) {
	var sign int
	switch e.Kind {
	case LedgerEventSupply:
		sign = 1
	case LedgerEventReturn:
		sign = -1
	case LedgerEventSale:
		sign = -1
	default:
		return nil, fmt.Errorf("unknown ledger event kind %q", e.Kind)
	}
	if op == StockOperationDelete {
		sign = -sign
	}

	delta := make(SizeMap, len(e.Sizes))
	for size, qty := range e.Sizes {
		delta[size] = sign * qty
	}
	return delta, nil
}

const duplicateEntryErrNo = 1062

// ApplyLedgerEvent applies one event's signed deltas to the ledger inside the
// caller's transaction. The increment runs as a single atomic UPDATE so it is
// safe under concurrent writers across service instances; the row is created
// lazily on the first event for its key.
//
// CREATE then DELETE of the same event nets to zero. Calling CREATE twice
// double-counts; callers own the exactly-once-per-transition guarantee.
func ApplyLedgerEvent(tx *gorm.DB, event LedgerEvent, op StockOperation) error {
	deltas, err := event.signedDelta(op)
	if err != nil {
		return err
	}

	// fixed size order to keep row-lock acquisition deterministic
	sizes := make([]string, 0, len(deltas))
	for size := range deltas {
		sizes = append(sizes, size)
	}
	sort.Strings(sizes)

	for _, size := range sizes {
		delta := deltas[size]
		res := tx.Model(&ProductColorStock{}).
			Where("product_id = ? AND color = ? AND size = ?", event.ProductId, event.Color, size).
			Update("total_stock", gorm.Expr("total_stock + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			continue
		}

		row := ProductColorStock{
			ProductId:  event.ProductId,
			Color:      event.Color,
			Size:       size,
			ColourCode: event.ColourCode,
			TotalStock: delta,
		}
		if err := tx.Create(&row).Error; err != nil {
			var mysqlErr *mysql.MySQLError
			if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntryErrNo {
				// lost the insert race; fold into the now-existing row
				if err := tx.Model(&ProductColorStock{}).
					Where("product_id = ? AND color = ? AND size = ?", event.ProductId, event.Color, size).
					Update("total_stock", gorm.Expr("total_stock + ?", delta)).Error; err != nil {
					return err
				}
				continue
			}
			return err
		}
	}

	_ = utils.RemoveRedis[StockMatrix](event.ProductId)
	return nil
}

// StockMatrix is the read model of a product's ledger: color -> size -> stock,
// plus a per-color total.
type StockMatrix map[string]map[string]int

// GetStockMatrix assembles the current ledger rows of a product, seeded with
// zeroes for every declared color/size pair. Cached in redis until the next
// ledger movement.
func GetStockMatrix(ctx context.Context, productId int) (StockMatrix, error) {
	var cached StockMatrix
	if found, err := utils.FetchRedis[StockMatrix](productId, &cached); err == nil && found {
		return cached, nil
	}

	product, err := GetProduct(ctx, productId)
	if err != nil {
		return nil, err
	}

	matrix := StockMatrix{}
	for _, c := range product.Colors {
		matrix[c.Color] = map[string]int{}
		for _, size := range product.Sizes {
			matrix[c.Color][size] = 0
		}
	}

	db := config.GetDB()
	var rows []*ProductColorStock
	if err := db.WithContext(ctx).Where("product_id = ?", productId).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := matrix[row.Color]; !ok {
			matrix[row.Color] = map[string]int{}
		}
		matrix[row.Color][row.Size] = row.TotalStock
	}

	for color, sizes := range matrix {
		var total int
		for size, qty := range sizes {
			if size == "total" {
				continue
			}
			total += qty
		}
		matrix[color]["total"] = total
	}

	_ = utils.StoreRedis[StockMatrix](&matrix, productId)
	return matrix, nil
}

// GetStockRows returns the raw ledger rows for a product.
func GetStockRows(ctx context.Context, productId int) ([]*ProductColorStock, error) {
	db := config.GetDB()
	var rows []*ProductColorStock
	err := db.WithContext(ctx).
		Where("product_id = ?", productId).
		Order("color, size").
		Find(&rows).Error
	return rows, err
}
