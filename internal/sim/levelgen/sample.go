package levelgen

import "fmt"

// Sampler is the part of the environment's random stream the generator
// draws from.
type Sampler interface {
	RandInt(lo, hi int) int
}

func pick[T any](s Sampler, xs []T) T {
	return xs[s.RandInt(0, len(xs))]
}

// sampleUntil draws from xs until accept holds, giving up after maxAttempts
// draws.
func sampleUntil[T any](s Sampler, xs []T, maxAttempts int, accept func(T) bool) (T, error) {
	for n := 0; n < maxAttempts; n++ {
		v := pick(s, xs)
		if accept(v) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w after %d draws", ErrSamplingExhausted, maxAttempts)
}
