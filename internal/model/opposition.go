package model

import "fmt"

// OpPosition represents a position in a shard's commit log: the segment the
// write landed in and the byte offset of the record within that segment.
// Positions are totally ordered and immutable once recorded.
type OpPosition struct {
	Segment int64
	Offset  int64
}

// OpPositionComparison represents the result of comparing two op positions
type OpPositionComparison int

const (
	// Equal means both positions are identical
	Equal OpPositionComparison = iota
	// Earlier means the first position precedes the second
	Earlier
	// Later means the first position follows the second
	Later
)

// Compare orders two positions by segment, then offset
func (p OpPosition) Compare(other OpPosition) OpPositionComparison {
	switch {
	case p.Segment < other.Segment:
		return Earlier
	case p.Segment > other.Segment:
		return Later
	case p.Offset < other.Offset:
		return Earlier
	case p.Offset > other.Offset:
		return Later
	default:
		return Equal
	}
}

// Before reports whether p precedes other in the commit log
func (p OpPosition) Before(other OpPosition) bool {
	return p.Compare(other) == Earlier
}

// After reports whether p follows other in the commit log
func (p OpPosition) After(other OpPosition) bool {
	return p.Compare(other) == Later
}

// IsZero reports whether the position has never been set
func (p OpPosition) IsZero() bool {
	return p.Segment == 0 && p.Offset == 0
}

// Packed returns the position in its single-word wire form: segment in the
// high 32 bits, offset in the low 32 bits. Offsets never exceed a segment's
// size, which is capped well below 4GiB.
func (p OpPosition) Packed() uint64 {
	return uint64(p.Segment)<<32 | uint64(p.Offset)&0xFFFFFFFF
}

// UnpackOpPosition is the inverse of Packed
func UnpackOpPosition(packed uint64) OpPosition {
	return OpPosition{
		Segment: int64(packed >> 32),
		Offset:  int64(packed & 0xFFFFFFFF),
	}
}

func (p OpPosition) String() string {
	return fmt.Sprintf("%d:%d", p.Segment, p.Offset)
}
