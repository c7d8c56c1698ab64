package mvq

import (
	"fmt"
)

// Point3d is an ordered list of three 32-bit signed integers indexing the
// X, Y, and T axes of a volume.  X varies fastest in buffers, then Y, then T.
type Point3d [3]int32

// Add returns the componentwise addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{
		p[0] + p2[0],
		p[1] + p2[1],
		p[2] + p2[2],
	}
}

// Sub returns the componentwise subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{
		p[0] - p2[0],
		p[1] - p2[1],
		p[2] - p2[2],
	}
}

// Mult returns the componentwise multiplication of two points.
func (p Point3d) Mult(p2 Point3d) Point3d {
	return Point3d{
		p[0] * p2[0],
		p[1] * p2[1],
		p[2] * p2[2],
	}
}

// Div returns the componentwise division of the receiver by the passed point.
func (p Point3d) Div(p2 Point3d) Point3d {
	return Point3d{
		p[0] / p2[0],
		p[1] / p2[1],
		p[2] / p2[2],
	}
}

// AddScalar adds a scalar value to each element of the point.
func (p Point3d) AddScalar(value int32) Point3d {
	return Point3d{p[0] + value, p[1] + value, p[2] + value}
}

// Max returns a point where each element is the maximum of the two points' elements.
func (p Point3d) Max(p2 Point3d) Point3d {
	result := p
	if p[0] < p2[0] {
		result[0] = p2[0]
	}
	if p[1] < p2[1] {
		result[1] = p2[1]
	}
	if p[2] < p2[2] {
		result[2] = p2[2]
	}
	return result
}

// Min returns a point where each element is the minimum of the two points' elements.
func (p Point3d) Min(p2 Point3d) Point3d {
	result := p
	if p[0] > p2[0] {
		result[0] = p2[0]
	}
	if p[1] > p2[1] {
		result[1] = p2[1]
	}
	if p[2] > p2[2] {
		result[2] = p2[2]
	}
	return result
}

// Prod returns the product of the point's elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}
