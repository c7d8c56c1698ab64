/*
	This file supports extents and strided grids, the geometry of every query
	and decode in mvq.  All functions are pure; none hold shared state.
*/

package mvq

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatched is returned when a range or extent is malformed or
// falls outside the geometry it is addressed against.
var ErrDimensionMismatched = errors.New("dimension mismatched")

// Extent is an axis-aligned box of samples in index space: an origin plus a
// per-axis size.  The zero value is "unset", which request handling treats as
// the whole volume.  An extent produced by cropping may cover no samples and
// should be checked with Empty.
type Extent struct {
	From Point3d
	Dims Point3d
}

// ExtentFromDims returns the extent covering a whole volume of the given dims.
func ExtentFromDims(dims Point3d) Extent {
	return Extent{Dims: dims}
}

// Last returns the coordinates of the extent's last sample.
func (e Extent) Last() Point3d {
	return e.From.Add(e.Dims).AddScalar(-1)
}

// Empty returns true if the extent covers no samples.
func (e Extent) Empty() bool {
	return e.Dims[0] <= 0 || e.Dims[1] <= 0 || e.Dims[2] <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("extent from %s to %s", e.From, e.Last())
}

// Crop returns the intersection of an extent with the given bounds.  The
// result may be empty.
func Crop(e, bounds Extent) Extent {
	from := e.From.Max(bounds.From)
	last := e.Last().Min(bounds.Last())
	return Extent{From: from, Dims: last.Sub(from).AddScalar(1)}
}

// BoundingBox returns the smallest extent containing both given extents.
func BoundingBox(a, b Extent) Extent {
	from := a.From.Min(b.From)
	last := a.Last().Max(b.Last())
	return Extent{From: from, Dims: last.Sub(from).AddScalar(1)}
}

// Grid is a strided sub-lattice of samples: an origin, a per-axis sample
// count, and a per-axis stride between samples.  An all-stride-1 grid is a
// dense extent.  The grid's last sample is at From + (Dims-1)*Stride.
type Grid struct {
	From   Point3d
	Dims   Point3d
	Stride Point3d
}

// Last returns the coordinates of the grid's last sample.
func (g Grid) Last() Point3d {
	return g.From.Add(g.Dims.AddScalar(-1).Mult(g.Stride))
}

// NumSamples returns the total number of samples on the grid.
func (g Grid) NumSamples() int64 {
	return g.Dims.Prod()
}

func (g Grid) String() string {
	return fmt.Sprintf("grid from %s to %s, stride %s", g.From, g.Last(), g.Stride)
}

// SnapToStride computes the grid of samples covering extent e on the strided
// lattice selected by the given per-axis downsampling factor, within a volume
// of the given dims.  The stride along each axis is 1 << factor.  The extent
// is first cropped to the volume; then on each axis the lower bound moves down
// to the nearest stride multiple and the upper bound moves up, so the returned
// grid always covers the cropped extent.  A 1-thick extent falling strictly
// between two lattice points comes back 2 samples thick on that axis;
// resolving that case is the caller's job.
func SnapToStride(dims, downsampling Point3d, e Extent) Grid {
	e = Crop(e, ExtentFromDims(dims))
	var g Grid
	for d := 0; d < 3; d++ {
		stride := int32(1) << uint(downsampling[d])
		first := (e.From[d] / stride) * stride
		last := e.From[d] + e.Dims[d] - 1
		last = ((last + stride - 1) / stride) * stride
		g.From[d] = first
		g.Dims[d] = (last-first)/stride + 1
		g.Stride[d] = stride
	}
	return g
}

// Relative returns g's bounds as sample offsets within the container grid's
// local lattice.  The grids must share a stride, and g's samples must lie on
// and within the container.
func Relative(g, container Grid) (Extent, error) {
	var e Extent
	for d := 0; d < 3; d++ {
		if g.Stride[d] != container.Stride[d] {
			return Extent{}, fmt.Errorf("stride of %s differs from container %s: %w", g, container, ErrDimensionMismatched)
		}
		offset := g.From[d] - container.From[d]
		if offset%container.Stride[d] != 0 {
			return Extent{}, fmt.Errorf("%s is off the lattice of container %s: %w", g, container, ErrDimensionMismatched)
		}
		e.From[d] = offset / container.Stride[d]
		e.Dims[d] = g.Dims[d]
		if e.From[d] < 0 || e.From[d]+e.Dims[d] > container.Dims[d] {
			return Extent{}, fmt.Errorf("%s extends outside container %s: %w", g, container, ErrDimensionMismatched)
		}
	}
	return e, nil
}
