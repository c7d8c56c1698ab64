/*
	This file handles the layout of sample values within decoded buffers.
*/

package mvq

// DataType is a unique ID for each element type a dataset can hold, e.g., a
// uint8 or a float32.
type DataType uint8

const (
	T_uint8 DataType = iota
	T_int8
	T_uint16
	T_int16
	T_uint32
	T_int32
	T_uint64
	T_int64
	T_float32
	T_float64
)

var typeBytes = map[DataType]int32{
	T_uint8:   1,
	T_int8:    1,
	T_uint16:  2,
	T_int16:   2,
	T_uint32:  4,
	T_int32:   4,
	T_uint64:  8,
	T_int64:   8,
	T_float32: 4,
	T_float64: 8,
}

// DataTypeBytes returns the # of bytes for a given element type.
// For example, T_uint16 is 2 bytes.  No error checking is performed
// to make sure the type is valid.
func DataTypeBytes(t DataType) int32 {
	return typeBytes[t]
}

func (t DataType) String() string {
	switch t {
	case T_uint8:
		return "uint8"
	case T_int8:
		return "int8"
	case T_uint16:
		return "uint16"
	case T_int16:
		return "int16"
	case T_uint32:
		return "uint32"
	case T_int32:
		return "int32"
	case T_uint64:
		return "uint64"
	case T_int64:
		return "int64"
	case T_float32:
		return "float32"
	case T_float64:
		return "float64"
	}
	return "unknown type"
}
