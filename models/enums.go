package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type InwardCategory string

const (
	InwardCategorySupply InwardCategory = "Supply"
	InwardCategoryReturn InwardCategory = "Return"
)

func (t InwardCategory) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *InwardCategory) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*t = InwardCategory(v)
	case string:
		*t = InwardCategory(v)
	default:
		return fmt.Errorf("unsupported inward category value: %v", value)
	}
	switch *t {
	case InwardCategorySupply, InwardCategoryReturn:
		return nil
	}
	return errors.New("invalid inward category")
}

func (t *InwardCategory) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case `"Supply"`:
		*t = InwardCategorySupply
	case `"Return"`:
		*t = InwardCategoryReturn
	default:
		return errors.New("inward category must be Supply or Return")
	}
	return nil
}

// StockOperation marks whether a ledger effect is being applied or undone.
type StockOperation string

const (
	StockOperationCreate StockOperation = "CREATE"
	StockOperationDelete StockOperation = "DELETE"
)

// LedgerEventKind is the closed set of events that move stock.
type LedgerEventKind string

const (
	LedgerEventSupply LedgerEventKind = "Supply"
	LedgerEventReturn LedgerEventKind = "Return"
	LedgerEventSale   LedgerEventKind = "Sale"
)

type DeliveryStatus string

const (
	DeliveryStatusDelivered          DeliveryStatus = "delivered"
	DeliveryStatusPartiallyDelivered DeliveryStatus = "partially_delivered"
)
