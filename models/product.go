package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/backstitch/garments_backend/config"
	"bitbucket.org/backstitch/garments_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// ProductColor is one allowed colorway of a product.
type ProductColor struct {
	Color      string `json:"color" validate:"required"`
	ColourCode int    `json:"colour_code"`
}

type ColorList []ProductColor

func (l ColorList) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *ColorList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return fmt.Errorf("unsupported color list value: %v", value)
}

type StringList []string

func (l StringList) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = nil
		return nil
	}
	return fmt.Errorf("unsupported string list value: %v", value)
}

// Product is the immutable reference for validating downstream size and color
// keys on logs, orders and stock rows.
type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Name        string          `gorm:"size:255;index;not null" json:"name"`
	Sku         string          `gorm:"size:100;uniqueIndex;not null" json:"sku"`
	Description string          `gorm:"type:text" json:"description"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"unit_price"`
	Sizes       StringList      `gorm:"type:json;not null" json:"sizes"`
	Colors      ColorList       `gorm:"type:json;not null" json:"colors"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name        string          `json:"name" validate:"required"`
	Sku         string          `json:"sku" validate:"required"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Sizes       StringList      `json:"sizes" validate:"required,min=1"`
	Colors      ColorList       `json:"colors" validate:"required,min=1,dive"`
}

type UpdateProduct struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Sizes       StringList       `json:"sizes"`
	Colors      ColorList        `json:"colors"`
}

// HasColor reports whether color is one of the product's colorways.
func (p *Product) HasColor(color string) bool {
	for _, c := range p.Colors {
		if c.Color == color {
			return true
		}
	}
	return false
}

// ColourCodeFor returns the code registered for color, 0 if unknown.
func (p *Product) ColourCodeFor(color string) int {
	for _, c := range p.Colors {
		if c.Color == color {
			return c.ColourCode
		}
	}
	return 0
}

func (p *Product) validateColorAndSizes(color string, sizes SizeMap) error {
	if !p.HasColor(color) {
		return fmt.Errorf("color %q is not valid for product %d", color, p.ID)
	}
	return sizes.validate(p.Sizes)
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	var product Product
	if found, err := utils.FetchRedis[Product](id, &product); err == nil && found {
		return &product, nil
	}
	result, err := utils.FetchSingleModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}
	_ = utils.StoreRedis[Product](result, result.ID)
	return result, nil
}

func GetProducts(ctx context.Context, limit int, offset int) ([]*Product, error) {
	db := config.GetDB()
	var products []*Product
	query := db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	err := query.Find(&products).Error
	return products, err
}

func CreateProduct(ctx context.Context, actor Actor, input *NewProduct) (*Product, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	var count int64
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Product{}).Where("sku = ?", input.Sku).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("sku already exists")
	}

	product := Product{
		Name:        input.Name,
		Sku:         input.Sku,
		Description: input.Description,
		UnitPrice:   input.UnitPrice,
		Sizes:       input.Sizes,
		Colors:      input.Colors,
	}

	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := tx.Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.StoreRedis[Product](&product, product.ID)
	return &product, nil
}

func UpdateProductById(ctx context.Context, actor Actor, id int, input *UpdateProduct) (*Product, error) {
	product, err := utils.FetchSingleModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		product.Name = *input.Name
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.UnitPrice != nil {
		product.UnitPrice = *input.UnitPrice
	}
	if input.Sizes != nil {
		product.Sizes = input.Sizes
	}
	if input.Colors != nil {
		product.Colors = input.Colors
	}

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := tx.Save(product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.RemoveRedis[Product](id)
	return product, nil
}

func DeleteProductById(ctx context.Context, actor Actor, id int) (*Product, error) {
	product, err := utils.FetchSingleModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(actor.Bind(ctx)).Begin()
	if err := tx.Delete(product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	_ = utils.RemoveRedis[Product](id)
	return product, nil
}
