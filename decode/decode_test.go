package decode

import (
	"context"
	"errors"
	"testing"

	"github.com/oceanvis/mvq/engine"
	"github.com/oceanvis/mvq/engine/enginetest"
	"github.com/oceanvis/mvq/mvq"
)

// rampValue gives every volume coordinate a distinct sample value.
func rampValue(p mvq.Point3d) float64 {
	return float64(p[0]) + 10*float64(p[1]) + 100*float64(p[2])
}

func newTestSession(t *testing.T, eng *enginetest.Engine, opts Options) *Session {
	engine.Register(eng)
	opts.Engine = eng.GetName()
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("can't create session: %v", err)
	}
	return s
}

// sampleAt reads the output sample at local grid position (x, y, z).
func sampleAt(out *Output, x, y, z int32) float64 {
	vol := mvq.Volume{Data: out.Buffer, Dims: out.Grid.Dims, T: out.T}
	i := (int64(z)*int64(out.Grid.Dims[1])+int64(y))*int64(out.Grid.Dims[0]) + int64(x)
	return vol.ValueAt(i)
}

func TestNewSessionUnknownEngine(t *testing.T) {
	if _, err := NewSession(Options{Engine: "no-such-format"}); err == nil {
		t.Fatalf("expected error for unregistered engine")
	}
}

func TestDecodeFile(t *testing.T) {
	eng := enginetest.NewEngine("test-decode-file")
	eng.AddVolume("plane", enginetest.Volume{Dims: mvq.Point3d{7, 5, 1}, T: mvq.T_float64, Value: rampValue})
	s := newTestSession(t, eng, Options{})
	defer s.Close()

	req := Request{
		File:   "plane",
		Extent: mvq.Extent{From: mvq.Point3d{1, 1, 0}, Dims: mvq.Point3d{4, 3, 1}},
	}
	var out Output
	dims, err := s.DecodeFile(context.Background(), req, &out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dims != (mvq.Point3d{7, 5, 1}) {
		t.Errorf("got native dims %s, expected (7,5,1)", dims)
	}
	want := mvq.Grid{From: mvq.Point3d{1, 1, 0}, Dims: mvq.Point3d{4, 3, 1}, Stride: mvq.Point3d{1, 1, 1}}
	if out.Grid != want {
		t.Fatalf("got grid %s, expected %s", out.Grid, want)
	}
	if out.T != mvq.T_float64 {
		t.Fatalf("got element type %s, expected float64", out.T)
	}
	for y := int32(0); y < 3; y++ {
		for x := int32(0); x < 4; x++ {
			if got, expect := sampleAt(&out, x, y, 0), rampValue(mvq.Point3d{1 + x, 1 + y, 0}); got != expect {
				t.Errorf("sample (%d,%d): got %v, expected %v", x, y, got, expect)
			}
		}
	}

	// Downsampled by 2 along x, the grid snaps outward to stride-aligned
	// samples.
	req.Downsampling = mvq.Point3d{1, 0, 0}
	out = Output{}
	if _, err = s.DecodeFile(context.Background(), req, &out); err != nil {
		t.Fatalf("downsampled decode failed: %v", err)
	}
	want = mvq.Grid{From: mvq.Point3d{0, 1, 0}, Dims: mvq.Point3d{3, 3, 1}, Stride: mvq.Point3d{2, 1, 1}}
	if out.Grid != want {
		t.Fatalf("got downsampled grid %s, expected %s", out.Grid, want)
	}
	for y := int32(0); y < 3; y++ {
		for x := int32(0); x < 3; x++ {
			if got, expect := sampleAt(&out, x, y, 0), rampValue(mvq.Point3d{2 * x, 1 + y, 0}); got != expect {
				t.Errorf("downsampled sample (%d,%d): got %v, expected %v", x, y, got, expect)
			}
		}
	}
}

func TestDecodeDefaults(t *testing.T) {
	eng := enginetest.NewEngine("test-decode-defaults")
	eng.AddVolume("vol", enginetest.Volume{Dims: mvq.Point3d{3, 2, 2}, T: mvq.T_uint16, Value: rampValue})
	s := newTestSession(t, eng, Options{})
	defer s.Close()

	// A zero-value extent decodes the whole volume.
	var out Output
	if _, err := s.DecodeFile(context.Background(), Request{File: "vol"}, &out); err != nil {
		t.Fatalf("whole-volume decode failed: %v", err)
	}
	want := mvq.Grid{Dims: mvq.Point3d{3, 2, 2}, Stride: mvq.Point3d{1, 1, 1}}
	if out.Grid != want {
		t.Fatalf("got grid %s, expected %s", out.Grid, want)
	}
	if len(out.Buffer) != 3*2*2*2 {
		t.Fatalf("got %d buffer bytes, expected 24", len(out.Buffer))
	}
	if got, expect := sampleAt(&out, 2, 1, 1), rampValue(mvq.Point3d{2, 1, 1}); got != expect {
		t.Errorf("corner sample: got %v, expected %v", got, expect)
	}

	// An extent entirely outside the volume is an error.
	req := Request{File: "vol", Extent: mvq.Extent{From: mvq.Point3d{5, 0, 0}, Dims: mvq.Point3d{2, 2, 2}}}
	if _, err := s.DecodeFile(context.Background(), req, &out); !errors.Is(err, mvq.ErrDimensionMismatched) {
		t.Fatalf("expected dimension error for outside extent, got %v", err)
	}
}

func TestDecodeBufferReuse(t *testing.T) {
	eng := enginetest.NewEngine("test-decode-buffer")
	eng.AddVolume("vol", enginetest.Volume{Dims: mvq.Point3d{4, 4, 1}, T: mvq.T_uint8, Value: rampValue})
	s := newTestSession(t, eng, Options{})
	defer s.Close()

	buf := make([]byte, 4*4)
	out := Output{Buffer: buf}
	if _, err := s.DecodeFile(context.Background(), Request{File: "vol"}, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if &out.Buffer[0] != &buf[0] {
		t.Fatalf("caller buffer was reallocated")
	}

	out = Output{Buffer: make([]byte, 7)}
	if _, err := s.DecodeFile(context.Background(), Request{File: "vol"}, &out); !errors.Is(err, mvq.ErrSizeTooSmall) {
		t.Fatalf("expected size error for undersized buffer, got %v", err)
	}
}

func TestDecodeSliceCollapse(t *testing.T) {
	eng := enginetest.NewEngine("test-decode-collapse")
	eng.AddVolume("vol", enginetest.Volume{Dims: mvq.Point3d{4, 4, 4}, T: mvq.T_float64, Value: rampValue})
	s := newTestSession(t, eng, Options{})
	defer s.Close()

	// A 1-thick request between downsampled lattice points blends the two
	// bracketing slabs.
	req := Request{
		File:         "vol",
		Extent:       mvq.Extent{From: mvq.Point3d{1, 1, 3}, Dims: mvq.Point3d{2, 2, 1}},
		Downsampling: mvq.Point3d{0, 0, 1},
	}
	var out Output
	if _, err := s.DecodeFile(context.Background(), req, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := mvq.Grid{From: mvq.Point3d{1, 1, 3}, Dims: mvq.Point3d{2, 2, 1}, Stride: mvq.Point3d{1, 1, 2}}
	if out.Grid != want {
		t.Fatalf("got grid %s, expected %s", out.Grid, want)
	}
	for y := int32(0); y < 2; y++ {
		for x := int32(0); x < 2; x++ {
			expect := (rampValue(mvq.Point3d{1 + x, 1 + y, 2}) + rampValue(mvq.Point3d{1 + x, 1 + y, 4})) / 2
			if got := sampleAt(&out, x, y, 0); got != expect {
				t.Errorf("blended sample (%d,%d): got %v, expected %v", x, y, got, expect)
			}
		}
	}

	// On a lattice point the slab is returned as is.
	req.Extent.From[2] = 2
	out = Output{}
	if _, err := s.DecodeFile(context.Background(), req, &out); err != nil {
		t.Fatalf("lattice decode failed: %v", err)
	}
	want = mvq.Grid{From: mvq.Point3d{1, 1, 2}, Dims: mvq.Point3d{2, 2, 1}, Stride: mvq.Point3d{1, 1, 2}}
	if out.Grid != want {
		t.Fatalf("got lattice grid %s, expected %s", out.Grid, want)
	}
	if got, expect := sampleAt(&out, 0, 0, 0), rampValue(mvq.Point3d{1, 1, 2}); got != expect {
		t.Errorf("lattice sample: got %v, expected %v", got, expect)
	}
}

func TestFileInfoCache(t *testing.T) {
	eng := enginetest.NewEngine("test-decode-info")
	eng.AddVolume("a", enginetest.Volume{Dims: mvq.Point3d{6, 5, 4}, T: mvq.T_int16, Value: rampValue})
	eng.AddVolume("b", enginetest.Volume{Dims: mvq.Point3d{2, 2, 2}, T: mvq.T_uint8, Value: rampValue})
	s := newTestSession(t, eng, Options{CacheSize: 1})
	defer s.Close()
	if s.ID() == "" {
		t.Errorf("session has no id")
	}

	info, err := s.FileInfo(context.Background(), "a")
	if err != nil {
		t.Fatalf("file info failed: %v", err)
	}
	if info.Dims != (mvq.Point3d{6, 5, 4}) || info.T != mvq.T_int16 {
		t.Fatalf("bad file info %v", info)
	}
	if _, err := s.FileInfo(context.Background(), "a"); err != nil {
		t.Fatalf("cached file info failed: %v", err)
	}
	if opens := eng.Opens("a"); opens != 1 {
		t.Errorf("metadata cache missed: %d opens", opens)
	}

	// Decoding caches metadata as a side effect.
	var out Output
	if _, err := s.DecodeFile(context.Background(), Request{File: "b"}, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, err := s.FileInfo(context.Background(), "b"); err != nil {
		t.Fatalf("file info after decode failed: %v", err)
	}
	if opens := eng.Opens("b"); opens != 1 {
		t.Errorf("decode did not cache metadata: %d opens", opens)
	}
}
