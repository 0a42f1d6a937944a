package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Validation errors surfaced to the caller; no partial mutation happens when
// any of these is returned.
var (
	ErrDuplicateOrderNumber   = errors.New("duplicate order number for financial year")
	ErrOrderFullyDelivered    = errors.New("order is already fully delivered")
	ErrQuantityBelowDelivered = errors.New("ordered quantity cannot drop below the already delivered quantity")
)

// Order is a customer/agency order. (OrderNumber, FinancialYear) is unique;
// its PendingOrder shadow shares the same key.
type Order struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ProductId     int       `gorm:"index;not null" json:"product_id"`
	Date          time.Time `gorm:"type:date;not null" json:"date"`
	Color         string    `gorm:"size:100" json:"color"`
	ColourCode    int       `json:"colour_code"`
	Sizes         SizeMap   `gorm:"type:json" json:"sizes"`
	AgencyName    string    `gorm:"size:255" json:"agency_name"`
	StoreName     string    `gorm:"size:255" json:"store_name"`
	OrderNumber   int       `gorm:"not null;uniqueIndex:uq_order_number_finyear" json:"order_number"`
	FinancialYear string    `gorm:"size:10;not null;uniqueIndex:uq_order_number_finyear" json:"financial_year"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	ProductId  int     `json:"product_id" validate:"required"`
	Date       string  `json:"date" validate:"required"`
	Color      string  `json:"color" validate:"required"`
	ColourCode int     `json:"colour_code"`
	Sizes      SizeMap `json:"sizes" validate:"required"`
	AgencyName string  `json:"agency_name"`
	StoreName  string  `json:"store_name"`
}

type UpdateOrder struct {
	Date       *string `json:"date"`
	Color      *string `json:"color"`
	ColourCode *int    `json:"colour_code"`
	Sizes      SizeMap `json:"sizes"`
	AgencyName *string `json:"agency_name"`
	StoreName  *string `json:"store_name"`
}

type OrderFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	AgencyName string
	StoreName  string
}

// FinancialYearFor labels the April-to-March accounting period of a date,
// e.g. 2025-07-01 -> "2025-26", 2026-02-01 -> "2025-26".
func FinancialYearFor(date time.Time) string {
	year := date.Year()
	if date.Month() >= time.April {
		return fmt.Sprintf("%d-%02d", year, (year+1)%100)
	}
	return fmt.Sprintf("%d-%02d", year-1, year%100)
}

// OrderKey is the serialization key shared by the sequencer, the mirror and
// the delivery processor.
func OrderKey(orderNumber int, financialYear string) string {
	return fmt.Sprintf("%d:%s", orderNumber, financialYear)
}

// acquireSequenceLock serializes order-number assignment per financial year
// across instances. GET_LOCK is connection-scoped, so callers pin a session
// with db.Connection, acquire there, and release only after the inserting
// transaction has committed. Releasing earlier would reopen the window where
// two instances read the same MAX(order_number).
func acquireSequenceLock(tx *gorm.DB, financialYear string) error {
	lockName := fmt.Sprintf("order_seq:%s", financialYear)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire order sequence lock for financial_year=%s", financialYear)
	}
	return nil
}

func releaseSequenceLock(tx *gorm.DB, financialYear string) {
	lockName := fmt.Sprintf("order_seq:%s", financialYear)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// nextOrderNumberInTx returns one more than the highest order number recorded
// for the financial year, 1 when none exist. Must run under the sequence lock.
func nextOrderNumberInTx(tx *gorm.DB, financialYear string) (int, error) {
	var maxNumber *int
	err := tx.Model(&Order{}).
		Where("financial_year = ?", financialYear).
		Select("MAX(order_number)").
		Scan(&maxNumber).Error
	if err != nil {
		return 0, err
	}
	if maxNumber == nil {
		return 1, nil
	}
	return *maxNumber + 1, nil
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateEntryErrNo
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	return utils.FetchSingleModel[Order](ctx, id)
}

func GetAllOrders(ctx context.Context, limit int, offset int) ([]*Order, error) {
	db := config.GetDB()
	var orders []*Order
	err := db.WithContext(ctx).Limit(limit).Offset(offset).Order("created_at DESC").Find(&orders).Error
	return orders, err
}

func GetOrdersByProduct(ctx context.Context, productId int, filter OrderFilter, limit int, offset int) ([]*Order, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Where("product_id = ?", productId)
	if filter.StartDate != nil {
		query = query.Where("date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("date <= ?", *filter.EndDate)
	}
	if filter.AgencyName != "" {
		query = query.Where("agency_name = ?", filter.AgencyName)
	}
	if filter.StoreName != "" {
		query = query.Where("store_name = ?", filter.StoreName)
	}
	var orders []*Order
	err := query.Limit(limit).Offset(offset).Order("date DESC, created_at DESC").Find(&orders).Error
	return orders, err
}

// DeliveredStatus derives whether the order is fully delivered by comparing
// ordered quantities against the sum of all sales recorded against it.
func (o *Order) DeliveredStatus(ctx context.Context) (bool, SizeMap, error) {
	db := config.GetDB()
	delivered, err := DeliveredTotalsInTx(db.WithContext(ctx), o.OrderNumber, o.FinancialYear, o.ProductId)
	if err != nil {
		return false, nil, err
	}
	remaining := o.Sizes.SubtractPositive(delivered)
	return remaining.IsEmpty(), delivered, nil
}

func (input *NewOrder) toOrder(ctx context.Context) (*Order, error) {
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
	return &Order{
		ProductId:  input.ProductId,
		Date:       date,
		Color:      input.Color,
		ColourCode: colourCode,
		Sizes:      input.Sizes,
		AgencyName: input.AgencyName,
		StoreName:  input.StoreName,
	}, nil
}

// CreateOrder assigns the next order number in the order date's financial
// year and creates the order together with its pending shadow, all in one
// transaction. A lost sequencing race surfaces as ErrDuplicateOrderNumber;
// the caller retries.
func CreateOrder(ctx context.Context, actor Actor, input *NewOrder) (*Order, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	order, err := input.toOrder(ctx)
	if err != nil {
		return nil, err
	}
	order.FinancialYear = FinancialYearFor(order.Date)

	db := config.GetDB()
	err = db.WithContext(actor.Bind(ctx)).Connection(func(conn *gorm.DB) error {
		if err := acquireSequenceLock(conn, order.FinancialYear); err != nil {
			return err
		}
		defer releaseSequenceLock(conn, order.FinancialYear)

		return conn.Transaction(func(tx *gorm.DB) error {
			number, err := nextOrderNumberInTx(tx, order.FinancialYear)
			if err != nil {
				return err
			}
			order.OrderNumber = number

			if err := tx.Create(order).Error; err != nil {
				if isDuplicateKeyError(err) {
					return ErrDuplicateOrderNumber
				}
				return err
			}
			return createPendingMirrorInTx(tx, order)
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrdersBulk creates many orders in one transaction. Numbers are
// reserved in-memory per financial year so a batch never reuses a number
// regardless of how the orders are dated.
func CreateOrdersBulk(ctx context.Context, actor Actor, inputs []*NewOrder) ([]*Order, error) {
	orders := make([]*Order, 0, len(inputs))
	for _, input := range inputs {
		if err := validate.Struct(input); err != nil {
			return nil, err
		}
		order, err := input.toOrder(ctx)
		if err != nil {
			return nil, err
		}
		order.FinancialYear = FinancialYearFor(order.Date)
		orders = append(orders, order)
	}

	db := config.GetDB()
	err := db.WithContext(actor.Bind(ctx)).Connection(func(conn *gorm.DB) error {
		lockedYears := make([]string, 0, 2)
		defer func() {
			for _, fy := range lockedYears {
				releaseSequenceLock(conn, fy)
			}
		}()

		return conn.Transaction(func(tx *gorm.DB) error {
			// next free number per financial year, read once then advanced locally
			reserved := map[string]int{}
			for _, order := range orders {
				next, ok := reserved[order.FinancialYear]
				if !ok {
					if err := acquireSequenceLock(tx, order.FinancialYear); err != nil {
						return err
					}
					lockedYears = append(lockedYears, order.FinancialYear)
					var err error
					next, err = nextOrderNumberInTx(tx, order.FinancialYear)
					if err != nil {
						return err
					}
				}
				order.OrderNumber = next
				reserved[order.FinancialYear] = next + 1
			}

			for _, order := range orders {
				if err := tx.Create(order).Error; err != nil {
					if isDuplicateKeyError(err) {
						return ErrDuplicateOrderNumber
					}
					return err
				}
				if err := createPendingMirrorInTx(tx, order); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderById edits an order and recomputes its pending shadow. Edits are
// rejected when the order is fully delivered or when any size would drop
// below its already delivered quantity.
func UpdateOrderById(ctx context.Context, actor Actor, id int, input *UpdateOrder) (*Order, error) {
	order, err := utils.FetchSingleModel[Order](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.KeyLock(ctx, OrderKey(order.OrderNumber, order.FinancialYear), "orderops", "order.go", "UpdateOrderById")
	if err != nil {
		return nil, err
	}
	defer release()

	updated := *order
	if input.Date != nil {
		date, err := utils.ParseDate(*input.Date)
		if err != nil {
			return nil, err
		}
		updated.Date = date
	}
	if input.Color != nil {
		updated.Color = *input.Color
	}
	if input.ColourCode != nil {
		updated.ColourCode = *input.ColourCode
	}
	if input.Sizes != nil {
		updated.Sizes = input.Sizes
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

	delivered, err := DeliveredTotalsInTx(tx, order.OrderNumber, order.FinancialYear, order.ProductId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if order.Sizes.SubtractPositive(delivered).IsEmpty() {
		tx.Rollback()
		return nil, ErrOrderFullyDelivered
	}
	for size, qty := range delivered {
		if updated.Sizes[size] < qty {
			tx.Rollback()
			return nil, ErrQuantityBelowDelivered
		}
	}

	if err := tx.Save(&updated).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := syncPendingMirrorInTx(tx, &updated, delivered); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteOrderById removes the order and its pending shadow. A missing pending
// row is logged and ignored, so deletion is idempotent.
func DeleteOrderById(ctx context.Context, actor Actor, id int) (*Order, error) {
	order, err := utils.FetchSingleModel[Order](ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := utils.KeyLock(ctx, OrderKey(order.OrderNumber, order.FinancialYear), "orderops", "order.go", "DeleteOrderById")
	if err != nil {
		return nil, err
	}
	defer release()

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := tx.Delete(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := deletePendingMirrorInTx(tx, order.OrderNumber, order.FinancialYear); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return order, nil
}

// DeleteOrdersBulk removes every order on one date, optionally narrowed by
// agency/store, together with their pending shadows.
func DeleteOrdersBulk(ctx context.Context, actor Actor, date time.Time, agencyName string, storeName string) (int, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).Where("date = ?", date)
	if agencyName != "" {
		query = query.Where("agency_name = ?", agencyName)
	}
	if storeName != "" {
		query = query.Where("store_name = ?", storeName)
	}
	var orders []*Order
	if err := query.Find(&orders).Error; err != nil {
		return 0, err
	}

	tx := db.WithContext(actor.Bind(ctx)).Begin()
	for _, order := range orders {
		if err := tx.Delete(order).Error; err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := deletePendingMirrorInTx(tx, order.OrderNumber, order.FinancialYear); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return 0, err
	}
	return len(orders), nil
}
