// Package stock holds the allocation rules for partitioning a product's total
// stock into Free, Hold, Display and Fault buckets. Everything here is pure:
// functions take product values and return new values or validation errors,
// and persistence is the caller's problem.
package stock

import (
	"errors"
	"fmt"

	"glasstock/backend/internal/domain"
)

var (
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidBreakdown       = errors.New("invalid sell breakdown")
	ErrBelowAllocated         = errors.New("total stock below hold + display allocation")
	ErrAllFaulty              = errors.New("all items are faulty")
	ErrFaultExceedsTotal      = errors.New("fault quantity exceeds total stock")
	ErrAllocationExceedsTotal = errors.New("allocation exceeds total stock")
	ErrFutureTimestamp        = errors.New("timestamp cannot be in the future")
)

// Available is the UI-facing sellable quantity. Display stock still counts as
// available; only Hold and Fault remove units from what can be sold.
func Available(p domain.Product) int {
	avail := p.TotalStock - p.OnHold - p.OnFault
	if avail < 0 {
		return 0
	}
	return avail
}

// FreeStock is the unallocated remainder used only for sell-source routing.
// It may be negative transiently while validating, but is never persisted.
func FreeStock(p domain.Product) int {
	return p.TotalStock - p.OnHold - p.OnDisplay - p.OnFault
}

// SellPlan is the outcome of routing a sell across buckets. When Pending is
// set the caller must confirm a breakdown before anything changes; otherwise
// Breakdown can be applied immediately.
type SellPlan struct {
	Pending   bool
	Breakdown domain.SellBreakdown
}

// PlanSell validates a sell of qty units and routes it across the sellable
// buckets. With at most one non-empty source bucket the sale resolves in one
// step: the first bucket in priority order Free, Hold, Display whose quantity
// covers qty is used in full. With two or more non-empty buckets the plan is
// pending and carries a greedy default breakdown that drains Display first,
// then Hold, then Free.
func PlanSell(p domain.Product, qty int) (SellPlan, error) {
	if qty <= 0 {
		return SellPlan{}, ErrInvalidQuantity
	}
	if qty > p.TotalStock {
		return SellPlan{}, fmt.Errorf("%w: quantity %d exceeds total stock %d", ErrInsufficientStock, qty, p.TotalStock)
	}

	free := FreeStock(p)

	sources := 0
	if free > 0 {
		sources++
	}
	if p.OnHold > 0 {
		sources++
	}
	if p.OnDisplay > 0 {
		sources++
	}

	if sources <= 1 {
		switch {
		case free >= qty:
			return SellPlan{Breakdown: domain.SellBreakdown{FromFree: qty}}, nil
		case p.OnHold >= qty:
			return SellPlan{Breakdown: domain.SellBreakdown{FromHold: qty}}, nil
		case p.OnDisplay >= qty:
			return SellPlan{Breakdown: domain.SellBreakdown{FromDisplay: qty}}, nil
		default:
			return SellPlan{}, ErrInsufficientStock
		}
	}

	fromDisplay := min(qty, p.OnDisplay)
	remaining := qty - fromDisplay
	fromHold := min(remaining, p.OnHold)
	fromFree := min(remaining-fromHold, max(0, free))

	return SellPlan{
		Pending: true,
		Breakdown: domain.SellBreakdown{
			FromFree:    fromFree,
			FromHold:    fromHold,
			FromDisplay: fromDisplay,
		},
	}, nil
}

// ValidateBreakdown checks a caller-confirmed breakdown against the product's
// current buckets: every part within its bucket's bounds and the parts summing
// to exactly qty.
func ValidateBreakdown(p domain.Product, qty int, b domain.SellBreakdown) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > p.TotalStock {
		return ErrInsufficientStock
	}
	if b.FromFree < 0 || b.FromHold < 0 || b.FromDisplay < 0 {
		return ErrInvalidBreakdown
	}
	if b.FromHold > p.OnHold {
		return fmt.Errorf("%w: hold part %d exceeds on-hold %d", ErrInvalidBreakdown, b.FromHold, p.OnHold)
	}
	if b.FromDisplay > p.OnDisplay {
		return fmt.Errorf("%w: display part %d exceeds on-display %d", ErrInvalidBreakdown, b.FromDisplay, p.OnDisplay)
	}
	if b.FromFree > max(0, FreeStock(p)) {
		return fmt.Errorf("%w: free part %d exceeds free stock %d", ErrInvalidBreakdown, b.FromFree, max(0, FreeStock(p)))
	}
	if b.Total() != qty {
		return fmt.Errorf("%w: parts sum to %d, want %d", ErrInvalidBreakdown, b.Total(), qty)
	}
	return nil
}

// ApplySell returns the product with qty removed from total stock and the
// breakdown's Hold/Display parts removed from their buckets. Buckets never go
// below zero.
func ApplySell(p domain.Product, qty int, b domain.SellBreakdown) domain.Product {
	p.TotalStock = max(0, p.TotalStock-qty)
	p.OnHold = max(0, p.OnHold-b.FromHold)
	p.OnDisplay = max(0, p.OnDisplay-b.FromDisplay)
	return p
}

// PlanAllocation validates a direct bucket adjustment (moving stock on hold,
// onto display, or marking it faulty). A nil conflict with a nil error means
// the requested values can be applied as-is. A non-nil conflict means Hold and
// Display together exceed total stock and the caller must pick one of the two
// candidate resolutions before anything is applied.
func PlanAllocation(p domain.Product, newHold, newDisplay, newFault int) (*domain.AllocationConflict, error) {
	if newHold < 0 || newDisplay < 0 || newFault < 0 {
		return nil, ErrInvalidQuantity
	}
	if p.OnFault >= p.TotalStock && (newHold > p.OnHold || newDisplay > p.OnDisplay) {
		return nil, ErrAllFaulty
	}
	if newFault > p.TotalStock {
		return nil, fmt.Errorf("%w: fault %d, total %d", ErrFaultExceedsTotal, newFault, p.TotalStock)
	}
	if newHold+newDisplay+newFault > p.TotalStock {
		return nil, fmt.Errorf("%w: %d+%d+%d over total %d", ErrAllocationExceedsTotal, newHold, newDisplay, newFault, p.TotalStock)
	}
	if newHold+newDisplay > p.TotalStock {
		return &domain.AllocationConflict{
			Message: fmt.Sprintf("Hold (%d) + Display (%d) = %d exceeds Total (%d)", newHold, newDisplay, newHold+newDisplay, p.TotalStock),
			Candidates: []domain.AllocationCandidate{
				{Resolution: domain.ResolutionKeepDisplay, Hold: 0, Display: newDisplay},
				{Resolution: domain.ResolutionKeepHold, Hold: newHold, Display: 0},
			},
		}, nil
	}
	return nil, nil
}

// ApplyAllocation returns the product with the three buckets replaced.
func ApplyAllocation(p domain.Product, newHold, newDisplay, newFault int) domain.Product {
	p.OnHold = newHold
	p.OnDisplay = newDisplay
	p.OnFault = newFault
	return p
}

// ValidateEditTotal guards product edits that lower total stock. The new total
// must cover the current Hold + Display allocation. Fault is not counted here;
// that mirrors the store's established rule even though the manage-allocation
// guard does count it.
func ValidateEditTotal(p domain.Product, newTotal int) error {
	if newTotal < 0 {
		return ErrInvalidQuantity
	}
	if newTotal < p.OnHold+p.OnDisplay {
		return fmt.Errorf("%w: total %d below hold %d + display %d", ErrBelowAllocated, newTotal, p.OnHold, p.OnDisplay)
	}
	return nil
}
