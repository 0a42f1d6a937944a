package models

import (
	"testing"
)

func TestSignedDelta(t *testing.T) {
	sizes := SizeMap{"S": 3, "M": 5}
	cases := []struct {
		name  string
		kind  LedgerEventKind
		op    StockOperation
		wantS int
	}{
		{"supply create adds", LedgerEventSupply, StockOperationCreate, 3},
		{"supply delete undoes", LedgerEventSupply, StockOperationDelete, -3},
		{"return create subtracts", LedgerEventReturn, StockOperationCreate, -3},
		{"return delete undoes", LedgerEventReturn, StockOperationDelete, 3},
		{"sale create subtracts", LedgerEventSale, StockOperationCreate, -3},
		{"sale delete undoes", LedgerEventSale, StockOperationDelete, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			event := LedgerEvent{Kind: c.kind, ProductId: 1, Color: "Navy", Sizes: sizes}
			delta, err := event.signedDelta(c.op)
			if err != nil {
				t.Fatal(err)
			}
			if delta["S"] != c.wantS {
				t.Errorf("delta[S] = %d, want %d", delta["S"], c.wantS)
			}
			if len(delta) != len(sizes) {
				t.Errorf("delta must cover every size, got %v", delta)
			}
		})
	}
}

func TestSignedDeltaRejectsUnknownKind(t *testing.T) {
	event := LedgerEvent{Kind: LedgerEventKind("Adjustment"), Sizes: SizeMap{"S": 1}}
	if _, err := event.signedDelta(StockOperationCreate); err == nil {
		t.Error("unknown event kind must be rejected")
	}
}

// CREATE then DELETE of the same event must net to zero for every size.
func TestSignedDeltaCreateDeleteNetsToZero(t *testing.T) {
	for _, kind := range []LedgerEventKind{LedgerEventSupply, LedgerEventReturn, LedgerEventSale} {
		event := LedgerEvent{Kind: kind, Sizes: SizeMap{"S": 4, "L": 7}}
		created, err := event.signedDelta(StockOperationCreate)
		if err != nil {
			t.Fatal(err)
		}
		deleted, err := event.signedDelta(StockOperationDelete)
		if err != nil {
			t.Fatal(err)
		}
		for size := range event.Sizes {
			if created[size]+deleted[size] != 0 {
				t.Errorf("%s: %s does not net to zero (%d + %d)", kind, size, created[size], deleted[size])
			}
		}
	}
}
