/*
	Package query expands structured face/depth/time queries over a
	partitioned volumetric dataset into flat per-file decode requests, and
	runs them through a decode session.
*/
package query

import (
	"context"
	"fmt"

	"github.com/oceanvis/mvq/decode"
	"github.com/oceanvis/mvq/mvq"
)

// Order fixes how face, depth, and time interleave in the flattened request
// list.  Names list the axes slowest to fastest.
type Order int

const (
	DepthFaceTime Order = iota
	DepthTimeFace
	FaceDepthTime
	FaceTimeDepth
	TimeDepthFace
	TimeFaceDepth
)

var orderNames = []string{
	"DepthFaceTime",
	"DepthTimeFace",
	"FaceDepthTime",
	"FaceTimeDepth",
	"TimeDepthFace",
	"TimeFaceDepth",
}

func (o Order) String() string {
	if o < 0 || int(o) >= len(orderNames) {
		return fmt.Sprintf("order %d", int(o))
	}
	return orderNames[o]
}

// ParseOrder returns the Order with the given name, e.g., "TimeDepthFace".
func ParseOrder(s string) (Order, error) {
	for i, name := range orderNames {
		if name == s {
			return Order(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis order %q", s)
}

// strides returns the flattened-index strides per axis so that the request
// for (face f, depth d, time t), all zero-based within the query, lands at
// t*timeStride + f*faceStride + d*depthStride.  The fastest axis gets
// stride 1.
func (o Order) strides(numFaces, numDepths, numTimes int) (faceStride, depthStride, timeStride int) {
	switch o {
	case DepthFaceTime:
		return numTimes, numFaces * numTimes, 1
	case DepthTimeFace:
		return 1, numTimes * numFaces, numFaces
	case FaceDepthTime:
		return numDepths * numTimes, numTimes, 1
	case FaceTimeDepth:
		return numTimes * numDepths, 1, numDepths
	case TimeDepthFace:
		return 1, numFaces, numDepths * numFaces
	default: // TimeFaceDepth
		return numDepths, 1, numFaces * numDepths
	}
}

// Range is a half-open [Begin, End) index range.
type Range struct {
	Begin int
	End   int
}

// SpatialRange selects one face and an X/Y rectangle within it.
type SpatialRange struct {
	Face int
	X    Range
	Y    Range
}

// Metadata identifies the (face, depth, time) cell a request serves, in
// absolute dataset indices.
type Metadata struct {
	Face  int
	Depth int
	Time  int
}

// Query is a cross product of per-face spatial rectangles, a depth range,
// and a time range, decoded at one global accuracy and downsampling.  Build
// one against a Dataset, add ranges with the Add helpers or directly, then
// call Requests or Execute.
type Query struct {
	Dataset *Dataset

	Order        Order
	Accuracy     float64
	Downsampling mvq.Point3d

	Ranges []SpatialRange
	Depths Range
	Times  Range
}

// NewQuery returns a query against the given dataset geometry.
func NewQuery(ds *Dataset) *Query {
	return &Query{Dataset: ds}
}

// AddSpatialRange selects the rectangle [x0, x1) x [y0, y1) on the given
// face.
func (q *Query) AddSpatialRange(face, x0, x1, y0, y1 int) {
	q.Ranges = append(q.Ranges, SpatialRange{Face: face, X: Range{x0, x1}, Y: Range{y0, y1}})
}

// AddFace selects the whole extent of the given face.
func (q *Query) AddFace(face int) {
	if face < 0 || face >= len(q.Dataset.Faces) {
		q.AddSpatialRange(face, 0, 0, 0, 0) // rejected at expansion
		return
	}
	dims := q.Dataset.Faces[face].Dims
	q.AddSpatialRange(face, 0, int(dims[0]), 0, int(dims[1]))
}

// SliceType selects the orientation of a 1-thick face slice.
type SliceType int

const (
	SliceAlongX SliceType = iota
	SliceAlongY
)

// AddFaceSlice selects a 1-thick slice across the given face: along X at
// y = pos, or along Y at x = pos.
func (q *Query) AddFaceSlice(face int, slice SliceType, pos int) {
	if face < 0 || face >= len(q.Dataset.Faces) {
		q.AddSpatialRange(face, 0, 0, 0, 0)
		return
	}
	dims := q.Dataset.Faces[face].Dims
	switch slice {
	case SliceAlongX:
		q.AddSpatialRange(face, 0, int(dims[0]), pos, pos+1)
	case SliceAlongY:
		q.AddSpatialRange(face, pos, pos+1, 0, int(dims[1]))
	}
}

// Requests expands the query into one request per (face, depth, time) cell
// plus parallel metadata, flattened per the query's axis order.  Each
// request's extent is the face's rectangle at a single window-local time
// step; its file comes from the dataset's name formatter; transposed faces
// get their X/Y downsampling swapped.
func (q *Query) Requests() ([]decode.Request, []Metadata, error) {
	ds := q.Dataset
	if ds == nil || len(ds.Faces) == 0 {
		return nil, nil, fmt.Errorf("query has no dataset geometry: %w", mvq.ErrDimensionMismatched)
	}
	if q.Order < DepthFaceTime || q.Order > TimeFaceDepth {
		return nil, nil, fmt.Errorf("unknown axis order %d: %w", int(q.Order), mvq.ErrDimensionMismatched)
	}
	if err := q.validateRanges(); err != nil {
		return nil, nil, err
	}

	numDepths := q.Depths.End - q.Depths.Begin
	numTimes := q.Times.End - q.Times.Begin
	numFaces := len(q.Ranges)
	faceStride, depthStride, timeStride := q.Order.strides(numFaces, numDepths, numTimes)

	n := numFaces * numDepths * numTimes
	requests := make([]decode.Request, n)
	metadata := make([]Metadata, n)
	for d := 0; d < numDepths; d++ {
		depth := q.Depths.Begin + d
		for f, r := range q.Ranges {
			for t := 0; t < numTimes; t++ {
				time := q.Times.Begin + t
				i := t*timeStride + f*faceStride + d*depthStride
				begin, _ := ds.timeWindow(time)
				ds3 := q.Downsampling
				if ds.Faces[r.Face].Transposed {
					ds3[0], ds3[1] = ds3[1], ds3[0]
				}
				requests[i] = decode.Request{
					File: ds.FileName(r.Face, depth, time),
					Extent: mvq.Extent{
						From: mvq.Point3d{int32(r.X.Begin), int32(r.Y.Begin), int32(time - begin)},
						Dims: mvq.Point3d{int32(r.X.End - r.X.Begin), int32(r.Y.End - r.Y.Begin), 1},
					},
					Downsampling: ds3,
					Accuracy:     q.Accuracy,
				}
				metadata[i] = Metadata{Face: r.Face, Depth: depth, Time: time}
			}
		}
	}
	return requests, metadata, nil
}

func (q *Query) validateRanges() error {
	ds := q.Dataset
	if len(q.Ranges) == 0 {
		return fmt.Errorf("query selects no faces: %w", mvq.ErrDimensionMismatched)
	}
	for _, r := range q.Ranges {
		if r.Face < 0 || r.Face >= len(ds.Faces) {
			return fmt.Errorf("face %d outside dataset's %d faces: %w",
				r.Face, len(ds.Faces), mvq.ErrDimensionMismatched)
		}
		dims := ds.Faces[r.Face].Dims
		if r.X.Begin >= r.X.End || r.X.Begin < 0 || r.X.End > int(dims[0]) {
			return fmt.Errorf("face %d x range [%d, %d) outside [0, %d): %w",
				r.Face, r.X.Begin, r.X.End, dims[0], mvq.ErrDimensionMismatched)
		}
		if r.Y.Begin >= r.Y.End || r.Y.Begin < 0 || r.Y.End > int(dims[1]) {
			return fmt.Errorf("face %d y range [%d, %d) outside [0, %d): %w",
				r.Face, r.Y.Begin, r.Y.End, dims[1], mvq.ErrDimensionMismatched)
		}
	}
	if q.Depths.Begin >= q.Depths.End {
		return fmt.Errorf("depth range [%d, %d) is invalid: %w",
			q.Depths.Begin, q.Depths.End, mvq.ErrDimensionMismatched)
	}
	if ds.Depths > 0 && (q.Depths.Begin < 0 || q.Depths.End > ds.Depths) {
		return fmt.Errorf("depth range [%d, %d) outside [0, %d): %w",
			q.Depths.Begin, q.Depths.End, ds.Depths, mvq.ErrDimensionMismatched)
	}
	if q.Times.Begin >= q.Times.End {
		return fmt.Errorf("time range [%d, %d) is invalid: %w",
			q.Times.Begin, q.Times.End, mvq.ErrDimensionMismatched)
	}
	if ds.Times > 0 && (q.Times.Begin < 0 || q.Times.End > ds.Times) {
		return fmt.Errorf("time range [%d, %d) outside [0, %d): %w",
			q.Times.Begin, q.Times.End, ds.Times, mvq.ErrDimensionMismatched)
	}
	return nil
}

// Execute expands the query and decodes every request through the session.
// Outputs and metadata are parallel to the flattened request order.
func (q *Query) Execute(ctx context.Context, s *decode.Session) ([]decode.Output, []Metadata, error) {
	requests, metadata, err := q.Requests()
	if err != nil {
		return nil, nil, err
	}
	timedLog := mvq.NewTimeLog()
	outputs := make([]decode.Output, len(requests))
	if err := s.DecodeFiles(ctx, requests, outputs); err != nil {
		return nil, nil, err
	}
	timedLog.Infof("Executed %s query of %d requests against %q", q.Order, len(requests), q.Dataset.Name)
	return outputs, metadata, nil
}
