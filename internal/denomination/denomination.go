// Package denomination turns a physical cash count into a total.
package denomination

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"salonpos/backend/internal/apperr"
)

// Counts maps a note or coin value to how many were counted.
type Counts map[int64]int

// Total is the sum of denomination x count.
func (c Counts) Total() int64 {
	var total int64
	for value, count := range c {
		total += value * int64(count)
	}
	return total
}

// Validate rejects negative counts and, when allowed is non-empty, values
// outside the configured set.
func (c Counts) Validate(allowed []int64) error {
	set := make(map[int64]struct{}, len(allowed))
	for _, value := range allowed {
		set[value] = struct{}{}
	}

	var errs error
	for _, value := range c.Denominations() {
		count := c[value]
		if value <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("denomination %d must be positive", value))
			continue
		}
		if count < 0 {
			errs = multierr.Append(errs, fmt.Errorf("count for %d must not be negative", value))
		}
		if len(set) > 0 {
			if _, ok := set[value]; !ok {
				errs = multierr.Append(errs, fmt.Errorf("denomination %d is not accepted", value))
			}
		}
	}
	if errs != nil {
		return apperr.Wrap(apperr.CodeValidation, errs, "invalid denomination count")
	}
	return nil
}

// Denominations returns the counted values in ascending order.
func (c Counts) Denominations() []int64 {
	values := make([]int64, 0, len(c))
	for value := range c {
		values = append(values, value)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

// Variance is counted minus expected; negative means the drawer is short.
func (c Counts) Variance(expected int64) int64 {
	return c.Total() - expected
}
