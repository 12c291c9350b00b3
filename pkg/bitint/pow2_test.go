// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{1, 1},       // One
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{1000, 1024}, // Frame size
		{1 << 20, 1 << 20},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.n); got != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, got, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 256, 1024, 8192} {
		if !IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = false", n)
		}
	}
	for _, n := range []int{-8, 0, 3, 1000, 6144} {
		if IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = true", n)
		}
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		n, frame, expected int
	}{
		{0, 1024, 0},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{3000, 1024, 3},
		{96, 32, 3},
		{100, 0, 0},
		{-5, 32, 0},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.n, tt.frame); got != tt.expected {
			t.Errorf("FrameCount(%d, %d) = %d, expected %d", tt.n, tt.frame, got, tt.expected)
		}
	}
}

func TestAlignUp(t *testing.T) {
	if got := AlignUp(3000, 1024); got != 3072 {
		t.Errorf("AlignUp(3000, 1024) = %d, expected 3072", got)
	}
	if got := AlignUp(2048, 1024); got != 2048 {
		t.Errorf("AlignUp(2048, 1024) = %d, expected 2048", got)
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NextPowerOfTwo(i)
	}
}

func BenchmarkFrameCount(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = FrameCount(i, 1024)
	}
}
