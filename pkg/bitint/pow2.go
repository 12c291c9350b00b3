// Package bitint holds the integer arithmetic used to size audio frames and
// analysis windows. Every function is allocation free and safe on the
// real-time path.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= n, or 1 for n <= 0.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	// size-1 keeps exact powers of two from doubling.
	return 1 << bits.Len(uint(n-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FrameCount returns how many frames of frameSize samples it takes to cover
// n samples, counting a trailing partial frame. It returns 0 when either
// argument is not positive.
func FrameCount(n, frameSize int) int {
	if n <= 0 || frameSize <= 0 {
		return 0
	}
	return (n + frameSize - 1) / frameSize
}

// AlignUp rounds n up to a multiple of frameSize.
func AlignUp(n, frameSize int) int {
	return FrameCount(n, frameSize) * frameSize
}
