package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func boolp(b bool) *bool { return &b }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestStore returns a MemStore whose clock ticks one minute per call, so
// insertion order is creation order.
func newTestStore() *MemStore {
	s := NewMemStore()
	tick := 0
	s.now = func() time.Time {
		tick++
		return testEpoch.Add(time.Duration(tick) * time.Minute)
	}
	return s
}

func seed(t *testing.T, s Store, ps ...Product) []Product {
	t.Helper()

	out := make([]Product, 0, len(ps))
	for _, p := range ps {
		got, err := s.Insert(context.Background(), p)
		require.NoError(t, err)
		out = append(out, got)
	}
	return out
}

func product(externalID, name, category, amount string) Product {
	p := Product{ExternalID: externalID, Name: name}
	if category != "" {
		p.Category = strp(category)
	}
	if amount != "" {
		p.Price = price(amount)
	}
	return p
}
