package decode

import (
	"context"
	"fmt"

	"github.com/oceanvis/mvq/mvq"
)

// Request asks for one file's samples within an extent, at a downsampling
// factor and accuracy.  A zero-value Extent means the whole volume.
type Request struct {
	File         string
	Extent       mvq.Extent
	Downsampling mvq.Point3d
	Accuracy     float64
}

// Output receives one request's samples: the grid actually covered, the
// sample buffer, and the element type.  Callers may preallocate Buffer; it
// is never shrunk or silently reallocated.  After a failed decode the
// buffer's contents are undefined.
type Output struct {
	Grid   mvq.Grid
	Buffer []byte
	T      mvq.DataType
}

// DecodeFile decodes a single request, allocating out.Buffer only if the
// caller did not supply one.  The output grid is the requested extent
// cropped to the volume and snapped outward to the downsampling stride;
// axes where a 1-thick request snapped to 2 samples are collapsed by linear
// interpolation.  Returns the native dims of the file's volume so callers
// can resolve sibling grids.
func (s *Session) DecodeFile(ctx context.Context, req Request, out *Output) (mvq.Point3d, error) {
	dims, err := s.decodeRaw(ctx, req, out)
	if err != nil {
		return mvq.Point3d{}, err
	}
	if err := collapseSlices(req, out); err != nil {
		return mvq.Point3d{}, err
	}
	return dims, nil
}

// decodeRaw opens, resolves, and decodes one request without slice collapse.
// Batched decodes keep the raw grid so member sub-regions stay addressable.
func (s *Session) decodeRaw(ctx context.Context, req Request, out *Output) (mvq.Point3d, error) {
	dataset, err := s.engine.Open(ctx, s.opts.Dir, req.File)
	if err != nil {
		return mvq.Point3d{}, fmt.Errorf("can't open %q: %w", req.File, err)
	}
	defer dataset.Close()

	dims := dataset.Dims()
	out.T = dataset.Type()
	s.cacheInfo(req.File, FileInfo{Dims: dims, T: out.T})

	grid, err := resolveGrid(dims, req)
	if err != nil {
		return mvq.Point3d{}, err
	}
	if err := allocOutput(out, grid); err != nil {
		return mvq.Point3d{}, err
	}
	if err := dataset.Decode(ctx, grid, req.Accuracy, out.Buffer); err != nil {
		return mvq.Point3d{}, fmt.Errorf("can't decode %q: %w", req.File, err)
	}
	out.Grid = grid
	return dims, nil
}

// resolveGrid crops the requested extent to the volume and snaps it outward
// to the downsampling stride.  An unset extent covers the whole volume.
func resolveGrid(dims mvq.Point3d, req Request) (mvq.Grid, error) {
	ext := req.Extent
	if ext.Dims == (mvq.Point3d{}) {
		ext = mvq.ExtentFromDims(dims)
	}
	if mvq.Crop(ext, mvq.ExtentFromDims(dims)).Empty() {
		return mvq.Grid{}, fmt.Errorf("%s of %q lies outside volume dims %s: %w",
			ext, req.File, dims, mvq.ErrDimensionMismatched)
	}
	return mvq.SnapToStride(dims, req.Downsampling, ext), nil
}

// allocOutput makes sure out.Buffer can hold the grid's samples, allocating
// only when the caller did not supply a buffer.
func allocOutput(out *Output, grid mvq.Grid) error {
	need := grid.NumSamples() * int64(mvq.DataTypeBytes(out.T))
	if out.Buffer == nil {
		out.Buffer = make([]byte, need)
		return nil
	}
	if int64(len(out.Buffer)) < need {
		return fmt.Errorf("output buffer has %d bytes, %s needs %d: %w",
			len(out.Buffer), grid, need, mvq.ErrSizeTooSmall)
	}
	return nil
}

// collapseSlices blends away output grid axes that snapped to 2 samples for
// a 1-thick request, highest axis first.  The blend weight is the requested
// position's fraction of the way from the grid's first sample to its last,
// so the result is far*t + near*(1-t) per sample.
func collapseSlices(req Request, out *Output) error {
	vol := mvq.Volume{Data: out.Buffer, Dims: out.Grid.Dims, T: out.T}
	for axis := 2; axis >= 0; axis-- {
		if req.Extent.Dims[axis] != 1 || out.Grid.Dims[axis] != 2 {
			continue
		}
		t := float64(req.Extent.From[axis]-out.Grid.From[axis]) /
			float64(out.Grid.Last()[axis]-out.Grid.From[axis])
		if err := vol.Collapse(axis, t); err != nil {
			return err
		}
		out.Grid.From[axis] = req.Extent.From[axis]
		out.Grid.Dims[axis] = 1
	}
	return nil
}
