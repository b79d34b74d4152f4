package pipeline

import (
	"context"
	"fmt"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// noFrequency marks stages whose result does not depend on the request frequency
const noFrequency domain.Frequency = ""

// stageKey identifies a memoized stage result
type stageKey struct {
	stage string
	// variant separates results of one stage computed under different
	// request parameters, such as an overridden usage/allocation ratio
	variant string
	freq    domain.Frequency
	version uint64
}

func (k stageKey) String() string {
	name := k.stage
	if k.variant != "" {
		name += "[" + k.variant + "]"
	}
	if k.freq == noFrequency {
		return fmt.Sprintf("%s#%d", name, k.version)
	}
	return fmt.Sprintf("%s@%s#%d", name, k.freq, k.version)
}

// memo holds stage results. Frequency-dependent entries only ever belong to
// the current request frequency; entries of an older catalog version are
// never read.
type memo struct {
	entries map[stageKey]any
	freq    domain.Frequency
}

func newMemo() *memo {
	return &memo{entries: make(map[stageKey]any)}
}

// switchTo purges every frequency-dependent entry when the request frequency
// changes and returns how many were dropped
func (m *memo) switchTo(freq domain.Frequency) int {
	if m.freq == freq {
		return 0
	}
	m.freq = freq
	n := 0
	for k := range m.entries {
		if k.freq != noFrequency {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// purgeVersionsBefore drops entries of older catalog versions
func (m *memo) purgeVersionsBefore(version uint64) {
	for k := range m.entries {
		if k.version < version {
			delete(m.entries, k)
		}
	}
}

func (m *memo) len() int {
	return len(m.entries)
}

// memoize returns the cached value for the stage or computes and stores it
func memoize[T any](ctx context.Context, s *Session, key stageKey, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := s.memo.entries[key]; ok {
		s.stats.Hits++
		return v.(T), nil
	}
	s.stats.Misses++
	var out T
	err := s.instrument(ctx, key, func(ctx context.Context) (int, error) {
		v, err := compute(ctx)
		if err != nil {
			return 0, err
		}
		out = v
		return rowCount(v), nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	s.memo.entries[key] = out
	return out, nil
}
