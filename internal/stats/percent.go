// Package stats aggregates ward records into the table, chart and summary
// views of a dataset.
package stats

import (
	"fmt"
	"math/bits"
	"sort"
)

// Percent is a percentage in hundredths: 1234 means 12.34%.
type Percent int64

const whole Percent = 10000

func (p Percent) Float() float64 {
	return float64(p) / 100
}

func (p Percent) String() string {
	return fmt.Sprintf("%d.%02d", p/100, p%100)
}

func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// shares splits 100.00% across values by the largest-remainder method. The
// result sums to exactly 10000 whenever the total is positive and is all
// zeros otherwise. Ties go to the earlier value. Negative values count as zero.
func shares(values []int64) []Percent {
	out := make([]Percent, len(values))
	var total uint64
	for _, v := range values {
		if v > 0 {
			total += uint64(v)
		}
	}
	if total == 0 {
		return out
	}

	type remainder struct {
		index int
		rem   uint64
	}
	rems := make([]remainder, len(values))
	var assigned Percent
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		// v <= total, so the quotient fits and Div64 cannot panic.
		hi, lo := bits.Mul64(uint64(v), uint64(whole))
		quo, rem := bits.Div64(hi, lo, total)
		out[i] = Percent(quo)
		rems[i] = remainder{index: i, rem: rem}
		assigned += out[i]
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].rem > rems[b].rem })
	for i := 0; assigned < whole && i < len(rems); i++ {
		out[rems[i].index]++
		assigned++
	}
	return out
}
