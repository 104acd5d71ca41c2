// Package resource implements arithmetic over fixed-typed relief bundles.
// A Bundle is a value type; every agent holds its own copy and no component
// ever shares one by reference.
package resource

import (
	"fmt"
	"strings"
)

// Bundle maps the closed set of resource kinds to non-negative quantities.
// The zero value is the empty bundle.
type Bundle struct {
	Food     int `json:"food"`
	Water    int `json:"water"`
	Medicine int `json:"medicine"`
}

// Normalize floors every kind at zero. Inputs from the wire or from config
// pass through here before arithmetic.
func (b Bundle) Normalize() Bundle {
	return Bundle{
		Food:     max(0, b.Food),
		Water:    max(0, b.Water),
		Medicine: max(0, b.Medicine),
	}
}

// Add returns the element-wise sum.
func (b Bundle) Add(o Bundle) Bundle {
	return Bundle{
		Food:     b.Food + o.Food,
		Water:    b.Water + o.Water,
		Medicine: b.Medicine + o.Medicine,
	}
}

// Sub returns the element-wise difference, floored at zero per kind.
func (b Bundle) Sub(o Bundle) Bundle {
	return Bundle{
		Food:     max(0, b.Food-o.Food),
		Water:    max(0, b.Water-o.Water),
		Medicine: max(0, b.Medicine-o.Medicine),
	}
}

// Clamp caps every kind at the corresponding value in limit.
func (b Bundle) Clamp(limit Bundle) Bundle {
	return Bundle{
		Food:     min(b.Food, limit.Food),
		Water:    min(b.Water, limit.Water),
		Medicine: min(b.Medicine, limit.Medicine),
	}
}

// Total is the sum over all kinds.
func (b Bundle) Total() int {
	return b.Food + b.Water + b.Medicine
}

// Below reports whether any kind is strictly under its threshold.
func (b Bundle) Below(threshold Bundle) bool {
	return b.Food < threshold.Food || b.Water < threshold.Water || b.Medicine < threshold.Medicine
}

// ApplyLoss reduces every kind by the given fraction (0..1), rounding down.
func (b Bundle) ApplyLoss(loss float64) Bundle {
	if loss <= 0 {
		return b
	}
	if loss >= 1 {
		return Bundle{}
	}
	keep := 1 - loss
	return Bundle{
		Food:     max(0, int(float64(b.Food)*keep)),
		Water:    max(0, int(float64(b.Water)*keep)),
		Medicine: max(0, int(float64(b.Medicine)*keep)),
	}
}

// Diff returns, per kind, how much current falls short of target.
func Diff(target, current Bundle) Bundle {
	return Bundle{
		Food:     max(0, target.Food-current.Food),
		Water:    max(0, target.Water-current.Water),
		Medicine: max(0, target.Medicine-current.Medicine),
	}
}

// Allocate computes a shipment from available inventory against a request,
// bounded by vehicle capacity. Kinds are filled in fixed priority order:
// medicine, then water, then food.
func Allocate(available, requested Bundle, capacity int) Bundle {
	available = available.Normalize()
	requested = requested.Normalize()
	remaining := max(0, capacity)

	take := func(avail, want int) int {
		n := min(avail, want, remaining)
		remaining -= n
		return n
	}

	var s Bundle
	s.Medicine = take(available.Medicine, requested.Medicine)
	s.Water = take(available.Water, requested.Water)
	s.Food = take(available.Food, requested.Food)
	return s
}

// Phrase renders a bundle for narrative log lines, e.g. "4 food, 2 medicine".
// Zero kinds are omitted unless includeZero is set; an empty bundle reads
// "nothing".
func (b Bundle) Phrase(includeZero bool) string {
	var parts []string
	add := func(n int, label string) {
		if n == 0 && !includeZero {
			return
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	add(b.Food, "food")
	add(b.Water, "water")
	add(b.Medicine, "medicine")
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}
