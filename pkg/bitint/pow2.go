/*
Package bitint provides the integer bit helpers used to size and index the
radix-2 FFT. Every function is allocation free and safe to call from the
audio hot path.

Usage:

	// Verify the transform length is valid
	ok := bitint.IsPowerOfTwo(512) // true

	// Stage count of a 512 point transform
	stages := bitint.Log2(512) // 9

	// Bit-reversed position of index 1 in a 3-bit address space
	j := bitint.Reverse(1, 3) // 4

----------------------------------------------------------------------

What this code does:

	NextPowerOfTwo returns the next power of 2 greater than or
	equal to size. The subtraction (size-1) keeps exact powers of
	2 unchanged: bits.Len(7) = 3 so 1<<3 = 8, while bits.Len(8)
	would give 4 and double the input.

	Reverse mirrors the low `bits` bits of i. It is the closed
	form of the incremental counter the FFT uses and exists so the
	permutation can be checked independently.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2. Powers of 2 have exactly one
// bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns floor(log2(n)) for positive n and 0 otherwise.
func Log2(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}

// Reverse returns i with its lowest width bits in reverse order.
func Reverse(i, width int) int {
	if width <= 0 {
		return 0
	}
	return int(bits.Reverse(uint(i)) >> (bits.UintSize - width))
}
