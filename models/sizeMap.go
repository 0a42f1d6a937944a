package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// SizeMap is a size -> quantity mapping stored as a JSON column.
type SizeMap map[string]int

func (m SizeMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *SizeMap) Scan(value interface{}) error {
	if value == nil {
		*m = SizeMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("unsupported size map value: %v", value)
}

func (m SizeMap) Clone() SizeMap {
	out := make(SizeMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m SizeMap) Total() int {
	var total int
	for _, v := range m {
		total += v
	}
	return total
}

func (m SizeMap) IsEmpty() bool {
	return len(m) == 0
}

// Add accumulates other into m (m is mutated).
func (m SizeMap) Add(other SizeMap) {
	for k, v := range other {
		m[k] += v
	}
}

// ClampTo caps requested quantities at what limit holds per size and drops
// sizes that end up non-positive or are absent from limit.
func (m SizeMap) ClampTo(limit SizeMap) SizeMap {
	out := SizeMap{}
	for size, available := range limit {
		qty := m[size]
		if qty > available {
			qty = available
		}
		if qty > 0 {
			out[size] = qty
		}
	}
	return out
}

// SubtractPositive returns m - other keeping only strictly positive remainders.
func (m SizeMap) SubtractPositive(other SizeMap) SizeMap {
	out := SizeMap{}
	for size, qty := range m {
		remainder := qty - other[size]
		if remainder > 0 {
			out[size] = remainder
		}
	}
	return out
}

func (m SizeMap) validate(validSizes []string) error {
	if len(m) == 0 {
		return errors.New("at least one size quantity is required")
	}
	for size, qty := range m {
		if qty <= 0 {
			return fmt.Errorf("quantity for size %q must be positive", size)
		}
		if len(validSizes) > 0 {
			found := false
			for _, s := range validSizes {
				if s == size {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("size %q is not valid for this product", size)
			}
		}
	}
	return nil
}
