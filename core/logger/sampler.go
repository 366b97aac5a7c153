package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler passes the first n of every m events. The chattiest debug
// sites here (update receipt, trigger evaluation, outbound send results)
// all share one sampler, so Allow must stay cheap under the poller's
// concurrency: a packed ratio plus a single atomic sequence keeps it
// lock-free.
type ratioSampler struct {
	ratio atomic.Uint64 // numerator<<32 | denominator; 0 disables
	seq   atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set installs an n-of-m ratio. Non-positive values disable sampling so
// every event passes.
func (s *ratioSampler) Set(numerator, denominator int) {
	if numerator <= 0 || denominator <= 0 {
		s.ratio.Store(0)
		s.seq.Store(0)
		return
	}
	if numerator > denominator {
		numerator = denominator
	}
	s.ratio.Store(uint64(numerator)<<32 | uint64(denominator))
	s.seq.Store(0)
}

// Allow reports whether the current event falls inside the pass window.
func (s *ratioSampler) Allow() bool {
	packed := s.ratio.Load()
	if packed == 0 {
		return true
	}
	num := packed >> 32
	den := packed & 0xffffffff
	n := s.seq.Add(1) - 1
	return n%den < num
}

// parseRatioSpec reads the debug_sample config value: "n/m", or a bare
// "m" meaning 1-of-m. Anything else disables sampling.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if numPart, denPart, ok := strings.Cut(spec, "/"); ok {
		num, errN := strconv.Atoi(strings.TrimSpace(numPart))
		den, errD := strconv.Atoi(strings.TrimSpace(denPart))
		if errN != nil || errD != nil {
			return 0, 0
		}
		return num, den
	}
	every, err := strconv.Atoi(spec)
	if err != nil || every <= 0 {
		return 0, 0
	}
	return 1, every
}
