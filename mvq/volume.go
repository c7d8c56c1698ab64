/*
	This file supports dense sample buffers and the sub-region copies used to
	scatter one decoded buffer into many query outputs.
*/

package mvq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrSizeTooSmall is returned when a caller-supplied buffer cannot hold the
// samples an operation must write.
var ErrSizeTooSmall = errors.New("buffer size too small")

// Volume is a dense buffer of typed samples in row-major layout, X varying
// fastest, then Y, then T.
type Volume struct {
	Data []byte
	Dims Point3d
	T    DataType
}

// NewVolume allocates a volume of the given dims and element type.
func NewVolume(dims Point3d, t DataType) *Volume {
	return &Volume{
		Data: make([]byte, dims.Prod()*int64(DataTypeBytes(t))),
		Dims: dims,
		T:    t,
	}
}

// NumBytes returns the byte size of the volume's samples.
func (v *Volume) NumBytes() int64 {
	return v.Dims.Prod() * int64(DataTypeBytes(v.T))
}

// index returns the linear sample index of point p.
func (v *Volume) index(p Point3d) int64 {
	return (int64(p[2])*int64(v.Dims[1])+int64(p[1]))*int64(v.Dims[0]) + int64(p[0])
}

// ValueAt returns the sample at linear index i converted to float64.
func (v *Volume) ValueAt(i int64) float64 {
	switch v.T {
	case T_uint8:
		return float64(v.Data[i])
	case T_int8:
		return float64(int8(v.Data[i]))
	case T_uint16:
		return float64(binary.LittleEndian.Uint16(v.Data[i*2:]))
	case T_int16:
		return float64(int16(binary.LittleEndian.Uint16(v.Data[i*2:])))
	case T_uint32:
		return float64(binary.LittleEndian.Uint32(v.Data[i*4:]))
	case T_int32:
		return float64(int32(binary.LittleEndian.Uint32(v.Data[i*4:])))
	case T_uint64:
		return float64(binary.LittleEndian.Uint64(v.Data[i*8:]))
	case T_int64:
		return float64(int64(binary.LittleEndian.Uint64(v.Data[i*8:])))
	case T_float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Data[i*4:])))
	case T_float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(v.Data[i*8:]))
	}
	return 0
}

// SetValueAt stores a float64 into the sample at linear index i, converting
// to the volume's element type.
func (v *Volume) SetValueAt(i int64, value float64) {
	switch v.T {
	case T_uint8:
		v.Data[i] = uint8(value)
	case T_int8:
		v.Data[i] = uint8(int8(value))
	case T_uint16:
		binary.LittleEndian.PutUint16(v.Data[i*2:], uint16(value))
	case T_int16:
		binary.LittleEndian.PutUint16(v.Data[i*2:], uint16(int16(value)))
	case T_uint32:
		binary.LittleEndian.PutUint32(v.Data[i*4:], uint32(value))
	case T_int32:
		binary.LittleEndian.PutUint32(v.Data[i*4:], uint32(int32(value)))
	case T_uint64:
		binary.LittleEndian.PutUint64(v.Data[i*8:], uint64(value))
	case T_int64:
		binary.LittleEndian.PutUint64(v.Data[i*8:], uint64(int64(value)))
	case T_float32:
		binary.LittleEndian.PutUint32(v.Data[i*4:], math.Float32bits(float32(value)))
	case T_float64:
		binary.LittleEndian.PutUint64(v.Data[i*8:], math.Float64bits(value))
	}
}

// CopyExtent copies the sub-region srcE of the src volume into the sub-region
// dstE of the dst volume.  The two sub-regions must have identical dims, the
// volumes must share an element type, and each sub-region must lie within its
// volume.  Rows along X are contiguous in both volumes, so the copy proceeds
// one row run at a time.
func CopyExtent(dst *Volume, dstE Extent, src *Volume, srcE Extent) error {
	if dstE.Dims != srcE.Dims {
		return fmt.Errorf("copy of %s into %s: %w", srcE, dstE, ErrDimensionMismatched)
	}
	if dst.T != src.T {
		return fmt.Errorf("copy between %s and %s volumes: %w", src.T, dst.T, ErrDimensionMismatched)
	}
	if Crop(srcE, ExtentFromDims(src.Dims)) != srcE || Crop(dstE, ExtentFromDims(dst.Dims)) != dstE {
		return fmt.Errorf("sub-region outside volume in copy of %s into %s: %w", srcE, dstE, ErrDimensionMismatched)
	}
	elsz := int64(DataTypeBytes(dst.T))
	rowBytes := int64(dstE.Dims[0]) * elsz
	for t := int32(0); t < dstE.Dims[2]; t++ {
		for y := int32(0); y < dstE.Dims[1]; y++ {
			srcI := src.index(srcE.From.Add(Point3d{0, y, t})) * elsz
			dstI := dst.index(dstE.From.Add(Point3d{0, y, t})) * elsz
			copy(dst.Data[dstI:dstI+rowBytes], src.Data[srcI:srcI+rowBytes])
		}
	}
	return nil
}

// Collapse reduces the volume from 2 samples to 1 along the given axis by
// linear interpolation, writing the blended slab in place: each output sample
// is far*t + near*(1-t), where near is the slab at offset 0 along the axis and
// far the slab at offset 1.  The volume's dims shrink to 1 on that axis; data
// beyond the new sample count is left as garbage.
func (v *Volume) Collapse(axis int, t float64) error {
	if v.Dims[axis] != 2 {
		return fmt.Errorf("collapse of axis %d with %d samples: %w", axis, v.Dims[axis], ErrDimensionMismatched)
	}
	outDims := v.Dims
	outDims[axis] = 1
	out := Volume{Data: v.Data, Dims: outDims, T: v.T}

	var step Point3d
	step[axis] = 1

	// Output index never exceeds the near-sample input index, so a forward
	// pass can blend in place.
	var p Point3d
	for p[2] = 0; p[2] < outDims[2]; p[2]++ {
		for p[1] = 0; p[1] < outDims[1]; p[1]++ {
			for p[0] = 0; p[0] < outDims[0]; p[0]++ {
				near := v.ValueAt(v.index(p))
				far := v.ValueAt(v.index(p.Add(step)))
				out.SetValueAt(out.index(p), far*t+near*(1-t))
			}
		}
	}
	v.Dims = outDims
	return nil
}
