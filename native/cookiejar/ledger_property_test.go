package cookiejar

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func buildLedger(deltas, amounts []uint64) (*Ledger, []Claim) {
	l := NewLedger(nil)
	claims := make([]Claim, 0, len(deltas))
	var ts uint64
	for i, delta := range deltas {
		if i >= len(amounts) {
			break
		}
		ts += delta
		c := Claim{Timestamp: ts, Amount: amounts[i]}
		_ = l.Append(context.Background(), alice, c)
		claims = append(claims, c)
	}
	return l, claims
}

// TestWindowCorrectness checks that the window total equals the naive sum
// over every entry with now - t < period.
func TestWindowCorrectness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("total matches naive window sum", prop.ForAll(
		func(deltas, amounts []uint64, now uint64, periodSecs uint64) bool {
			l, claims := buildLedger(deltas, amounts)
			var want uint64
			for _, c := range claims {
				if int64(now)-int64(c.Timestamp) < int64(periodSecs) {
					want += c.Amount
				}
			}
			got, err := l.TotalClaimedInWindow(context.Background(), alice, now, time.Duration(periodSecs)*time.Second)
			return err == nil && got == want
		},
		gen.SliceOf(gen.UInt64Range(0, 100)),
		gen.SliceOf(gen.UInt64Range(0, 1000)),
		gen.UInt64Range(0, 5000),
		gen.UInt64Range(1, 2000),
	))

	properties.TestingRun(t)
}

// TestPruneIdempotence checks that a second read at the same instant changes
// neither the total nor the ledger length.
func TestPruneIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("second read is a no-op", prop.ForAll(
		func(deltas, amounts []uint64, now uint64, periodSecs uint64) bool {
			ctx := context.Background()
			l, _ := buildLedger(deltas, amounts)
			period := time.Duration(periodSecs) * time.Second
			first, err := l.TotalClaimedInWindow(ctx, alice, now, period)
			if err != nil {
				return false
			}
			firstLen, _ := l.Len(ctx, alice)
			second, err := l.TotalClaimedInWindow(ctx, alice, now, period)
			if err != nil {
				return false
			}
			secondLen, _ := l.Len(ctx, alice)
			return first == second && firstLen == secondLen
		},
		gen.SliceOf(gen.UInt64Range(0, 100)),
		gen.SliceOf(gen.UInt64Range(0, 1000)),
		gen.UInt64Range(0, 5000),
		gen.UInt64Range(1, 2000),
	))

	properties.TestingRun(t)
}
