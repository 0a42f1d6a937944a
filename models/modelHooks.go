package models

import (
	"errors"

	"gorm.io/gorm"
)

// Audit capture for the tracked entities. Every create/update/delete that
// goes through a transaction emits one History row in the same transaction;
// the update hooks snapshot the previous row so Before/After are both real
// database states. Ledger rows (ProductColorStock) are derived data and are
// not tracked.

const auditBeforeKey = "audit:before"

func snapshotBefore[T any](tx *gorm.DB, id int) error {
	var prev T
	err := tx.Session(&gorm.Session{NewDB: true}).First(&prev, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	tx.InstanceSet(auditBeforeKey, prev)
	return nil
}

func beforeSnapshot(tx *gorm.DB) interface{} {
	if v, ok := tx.InstanceGet(auditBeforeKey); ok {
		return v
	}
	return nil
}

func (p *Product) AfterCreate(tx *gorm.DB) error {
	return SaveHistoryCreate(tx, p.ID, p, "product created")
}

func (p *Product) BeforeUpdate(tx *gorm.DB) error {
	return snapshotBefore[Product](tx, p.ID)
}

func (p *Product) AfterUpdate(tx *gorm.DB) error {
	return SaveHistoryUpdate(tx, p.ID, beforeSnapshot(tx), p, "product updated")
}

func (p *Product) AfterDelete(tx *gorm.DB) error {
	return SaveHistoryDelete(tx, p.ID, p, "product deleted")
}

func (l *InwardLog) AfterCreate(tx *gorm.DB) error {
	return SaveHistoryCreate(tx, l.ID, l, "inward log created")
}

func (l *InwardLog) BeforeUpdate(tx *gorm.DB) error {
	return snapshotBefore[InwardLog](tx, l.ID)
}

func (l *InwardLog) AfterUpdate(tx *gorm.DB) error {
	return SaveHistoryUpdate(tx, l.ID, beforeSnapshot(tx), l, "inward log updated")
}

func (l *InwardLog) AfterDelete(tx *gorm.DB) error {
	return SaveHistoryDelete(tx, l.ID, l, "inward log deleted")
}

func (l *SalesLog) AfterCreate(tx *gorm.DB) error {
	return SaveHistoryCreate(tx, l.ID, l, "sales log created")
}

func (l *SalesLog) BeforeUpdate(tx *gorm.DB) error {
	return snapshotBefore[SalesLog](tx, l.ID)
}

func (l *SalesLog) AfterUpdate(tx *gorm.DB) error {
	return SaveHistoryUpdate(tx, l.ID, beforeSnapshot(tx), l, "sales log updated")
}

func (l *SalesLog) AfterDelete(tx *gorm.DB) error {
	return SaveHistoryDelete(tx, l.ID, l, "sales log deleted")
}

func (o *Order) AfterCreate(tx *gorm.DB) error {
	return SaveHistoryCreate(tx, o.ID, o, "order created")
}

func (o *Order) BeforeUpdate(tx *gorm.DB) error {
	return snapshotBefore[Order](tx, o.ID)
}

func (o *Order) AfterUpdate(tx *gorm.DB) error {
	return SaveHistoryUpdate(tx, o.ID, beforeSnapshot(tx), o, "order updated")
}

func (o *Order) AfterDelete(tx *gorm.DB) error {
	return SaveHistoryDelete(tx, o.ID, o, "order deleted")
}

func (p *PendingOrder) AfterCreate(tx *gorm.DB) error {
	return SaveHistoryCreate(tx, p.ID, p, "pending order created")
}

func (p *PendingOrder) BeforeUpdate(tx *gorm.DB) error {
	return snapshotBefore[PendingOrder](tx, p.ID)
}

func (p *PendingOrder) AfterUpdate(tx *gorm.DB) error {
	return SaveHistoryUpdate(tx, p.ID, beforeSnapshot(tx), p, "pending order updated")
}

func (p *PendingOrder) AfterDelete(tx *gorm.DB) error {
	return SaveHistoryDelete(tx, p.ID, p, "pending order deleted")
}

func (u *User) AfterCreate(tx *gorm.DB) error {
	sanitized := *u
	sanitized.Password = ""
	return SaveHistoryCreate(tx, u.ID, sanitized, "user created")
}
