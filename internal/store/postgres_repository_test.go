package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/payhive/wallet-service/internal/domain"
)

func TestSettlementRowOrder_SameForCrossingTransfers(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	forward := settlementRowOrder(a, b)
	reverse := settlementRowOrder(b, a)
	if forward != reverse {
		t.Fatalf("crossing transfers must touch rows in the same order: %v vs %v", forward, reverse)
	}
	if forward[0] == forward[1] {
		t.Fatal("row order must contain both accounts")
	}

	self := settlementRowOrder(a, a)
	if self[0] != a || self[1] != a {
		t.Fatalf("unexpected order for identical ids: %v", self)
	}
}

func TestNormalizeListOptions(t *testing.T) {
	tests := []struct {
		name          string
		opts          domain.TransferListOptions
		wantPage      int
		wantLimit     int
		wantOffset    int
		wantDirection string
		wantSearch    string
	}{
		{
			name:          "zero values get defaults",
			opts:          domain.TransferListOptions{},
			wantPage:      1,
			wantLimit:     20,
			wantOffset:    0,
			wantDirection: domain.DirectionAll,
		},
		{
			name:          "limit clamps at 100",
			opts:          domain.TransferListOptions{Page: 2, Limit: 500},
			wantPage:      2,
			wantLimit:     100,
			wantOffset:    100,
			wantDirection: domain.DirectionAll,
		},
		{
			name:          "negative page resets to first",
			opts:          domain.TransferListOptions{Page: -3, Limit: 10},
			wantPage:      1,
			wantLimit:     10,
			wantOffset:    0,
			wantDirection: domain.DirectionAll,
		},
		{
			name:          "unknown direction coerces to all",
			opts:          domain.TransferListOptions{Direction: "sideways"},
			wantPage:      1,
			wantLimit:     20,
			wantOffset:    0,
			wantDirection: domain.DirectionAll,
		},
		{
			name:          "debit direction and trimmed search pass through",
			opts:          domain.TransferListOptions{Page: 3, Limit: 25, Direction: domain.DirectionDebit, Search: "  rent "},
			wantPage:      3,
			wantLimit:     25,
			wantOffset:    50,
			wantDirection: domain.DirectionDebit,
			wantSearch:    "rent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, limit, offset, direction, search := normalizeListOptions(tt.opts)
			if page != tt.wantPage {
				t.Errorf("page = %d, want %d", page, tt.wantPage)
			}
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
			if direction != tt.wantDirection {
				t.Errorf("direction = %q, want %q", direction, tt.wantDirection)
			}
			if search != tt.wantSearch {
				t.Errorf("search = %q, want %q", search, tt.wantSearch)
			}
		})
	}
}
