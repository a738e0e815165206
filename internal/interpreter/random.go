package interpreter

import (
	"math/rand"
	"time"
)

// Picker draws uniform random indexes. *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

func newPicker() Picker {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// pick returns an index in [0, k-1] for k > 0. Out-of-range draws are
// clamped to the last legal index.
func pick(p Picker, k int) int {
	idx := p.Intn(k)
	if idx >= k {
		idx = k - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// asList reports whether v denotes a pick-one-at-random list
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
