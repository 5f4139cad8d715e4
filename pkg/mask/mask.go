// Package mask parses core-range specifications such as "0-3,8" into
// affinity bitmasks and renders them back.
//
// A zero CoreMask is "unset": the caller leaves the process affinity alone.
// It never means "no cores".
package mask

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxCores is the widest host a CoreMask can describe.
const MaxCores = 64

// CoreMask selects logical cores; bit i set means core i is included.
type CoreMask uint64

// Full returns the mask with every core below numCores set.
func Full(numCores int) CoreMask {
	if numCores <= 0 {
		return 0
	}
	if numCores >= MaxCores {
		return ^CoreMask(0)
	}
	return CoreMask(1)<<numCores - 1
}

// IsSet reports whether the mask requests any affinity at all.
func (m CoreMask) IsSet() bool { return m != 0 }

// Has reports whether core is part of the mask.
func (m CoreMask) Has(core int) bool {
	if core < 0 || core >= MaxCores {
		return false
	}
	return m&(1<<core) != 0
}

// Count returns the number of cores in the mask.
func (m CoreMask) Count() int { return bits.OnesCount64(uint64(m)) }

// Contains reports whether every core of other is also in m.
func (m CoreMask) Contains(other CoreMask) bool { return other&^m == 0 }

// Cores lists the core numbers in ascending order.
func (m CoreMask) Cores() []int {
	out := make([]int, 0, m.Count())
	for v := uint64(m); v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros64(v))
	}
	return out
}

// String renders the mask in list form ("0-3,8"). The unset mask renders as "".
func (m CoreMask) String() string {
	var (
		sb    strings.Builder
		cores = m.Cores()
	)
	for i := 0; i < len(cores); {
		j := i
		for j+1 < len(cores) && cores[j+1] == cores[j]+1 {
			j++
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(cores[i]))
		if j > i {
			sb.WriteByte('-')
			sb.WriteString(strconv.Itoa(cores[j]))
		}
		i = j + 1
	}
	return sb.String()
}

// Parse turns spec into a CoreMask for a host with numCores logical cores.
//
// spec is a comma-separated list of core numbers ("3") and inclusive ranges
// ("0-3", "5-2" is the same as "2-5"). Whitespace around numbers and dashes
// is ignored. An empty or blank spec yields the unset mask. Errors are
// *ParseError values naming the failing segment.
func Parse(spec string, numCores int) (CoreMask, error) {
	if numCores < 1 {
		return 0, ErrNoCores
	}
	if numCores > MaxCores {
		numCores = MaxCores
	}
	if strings.TrimSpace(spec) == "" {
		return 0, nil
	}

	var result CoreMask
	for start := 0; start < len(spec); {
		end := strings.IndexByte(spec[start:], ',')
		if end < 0 {
			end = len(spec)
		} else {
			end += start
		}
		segment := spec[start:end]

		lo, hi, ok := parseSegment(segment)
		if !ok {
			return 0, &ParseError{Segment: segment, Err: ErrSyntax}
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi >= numCores {
			return 0, &ParseError{Segment: segment, Value: hi, Err: ErrRange}
		}
		for c := lo; c <= hi; c++ {
			result |= 1 << c
		}

		start = end + 1
	}
	return result, nil
}

// MustParse is like Parse but panics on error.
func MustParse(spec string, numCores int) CoreMask {
	m, err := Parse(spec, numCores)
	if err != nil {
		panic(err)
	}
	return m
}

// parseSegment accepts "n" or "a-b" with optional surrounding whitespace.
func parseSegment(s string) (lo, hi int, ok bool) {
	left, right, isRange := strings.Cut(s, "-")
	lo, ok = parseCore(left)
	if !ok {
		return 0, 0, false
	}
	if !isRange {
		return lo, lo, true
	}
	hi, ok = parseCore(right)
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

func parseCore(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// too many digits for an int
		return 0, false
	}
	return n, true
}
