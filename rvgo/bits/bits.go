// Package bits extracts instruction fields and sign-extends immediates.
package bits

// GetBits returns the length-bit unsigned field of word starting at bit start.
func GetBits(word uint32, start, length uint) uint32 {
	if length >= 32 {
		return word >> start
	}
	return (word >> start) & (1<<length - 1)
}

// GetBit returns bit pos of word, 0 or 1.
func GetBit(word uint32, pos uint) uint32 {
	return (word >> pos) & 1
}

// SignExtend treats bit as the sign bit of v and replicates it upward.
func SignExtend(v uint64, bit uint) int64 {
	if bit >= 63 {
		return int64(v)
	}
	shift := 63 - bit
	return int64(v<<shift) >> shift
}
