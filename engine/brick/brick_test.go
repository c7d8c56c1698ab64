package brick

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/twinj/uuid"

	"github.com/oceanvis/mvq/engine"
	"github.com/oceanvis/mvq/mvq"
)

func testDir(t *testing.T) string {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("mvq-test-brick-%x", uuid.NewV4().Bytes()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Unable to make test dir %q: %v\n", dir, err)
	}
	return dir
}

// testVolume returns a 7 x 5 x 1 float32 volume where each sample holds its
// linear index.
func testVolume() *mvq.Volume {
	vol := mvq.NewVolume(mvq.Point3d{7, 5, 1}, mvq.T_float32)
	for i := int64(0); i < vol.Dims.Prod(); i++ {
		vol.SetValueAt(i, float64(i))
	}
	return vol
}

func TestWriteOpenDecode(t *testing.T) {
	dir := testDir(t)
	defer os.RemoveAll(dir)

	vol := testVolume()
	if err := Write(filepath.Join(dir, "test.brick"), vol, Snappy, CRC32); err != nil {
		t.Fatalf("Unable to write brick file: %v\n", err)
	}

	e, err := engine.Get("brick")
	if err != nil {
		t.Fatalf("Brick engine not registered: %v\n", err)
	}
	ds, err := e.Open(context.Background(), dir, "test.brick")
	if err != nil {
		t.Fatalf("Unable to open brick file: %v\n", err)
	}
	defer ds.Close()

	if ds.Dims() != vol.Dims {
		t.Errorf("Bad dims: got %s, expected %s\n", ds.Dims(), vol.Dims)
	}
	if ds.Type() != mvq.T_float32 {
		t.Errorf("Bad element type: %s\n", ds.Type())
	}

	// Dense decode of the whole volume round-trips every sample.
	dense := mvq.SnapToStride(vol.Dims, mvq.Point3d{0, 0, 0}, mvq.ExtentFromDims(vol.Dims))
	buf := make([]byte, dense.NumSamples()*4)
	if err := ds.Decode(context.Background(), dense, 0, buf); err != nil {
		t.Fatalf("Unable to decode dense grid: %v\n", err)
	}
	out := mvq.Volume{Data: buf, Dims: dense.Dims, T: mvq.T_float32}
	for i := int64(0); i < dense.NumSamples(); i++ {
		if out.ValueAt(i) != float64(i) {
			t.Fatalf("Bad dense sample %d: got %f\n", i, out.ValueAt(i))
		}
	}

	// Strided decode picks every other X sample.
	strided := mvq.SnapToStride(vol.Dims, mvq.Point3d{1, 0, 0},
		mvq.Extent{From: mvq.Point3d{1, 1, 0}, Dims: mvq.Point3d{4, 3, 1}})
	buf = make([]byte, strided.NumSamples()*4)
	if err := ds.Decode(context.Background(), strided, 0, buf); err != nil {
		t.Fatalf("Unable to decode strided grid: %v\n", err)
	}
	out = mvq.Volume{Data: buf, Dims: strided.Dims, T: mvq.T_float32}
	var i int64
	var p mvq.Point3d
	for p[1] = 0; p[1] < strided.Dims[1]; p[1]++ {
		for p[0] = 0; p[0] < strided.Dims[0]; p[0]++ {
			src := strided.From.Add(p.Mult(strided.Stride))
			want := float64(int64(src[1])*7 + int64(src[0]))
			if got := out.ValueAt(i); got != want {
				t.Errorf("Bad strided sample at %s: got %f, expected %f\n", src, got, want)
			}
			i++
		}
	}

	if err := ds.Decode(context.Background(), dense, 0, make([]byte, 16)); !errors.Is(err, mvq.ErrSizeTooSmall) {
		t.Errorf("Expected too-small buffer error, got %v\n", err)
	}
}

func TestCompression(t *testing.T) {
	dir := testDir(t)
	defer os.RemoveAll(dir)

	vol := testVolume()
	e, err := engine.Get("brick")
	if err != nil {
		t.Fatalf("Brick engine not registered: %v\n", err)
	}
	for _, spec := range []struct {
		compress Compression
		checksum Checksum
	}{
		{Uncompressed, NoChecksum},
		{Snappy, CRC32},
		{Gzip, CRC32},
	} {
		file := fmt.Sprintf("test-%d-%d.brick", spec.compress, spec.checksum)
		if err := Write(filepath.Join(dir, file), vol, spec.compress, spec.checksum); err != nil {
			t.Fatalf("Unable to write %s/%s brick file: %v\n", spec.compress, spec.checksum, err)
		}
		ds, err := e.Open(context.Background(), dir, file)
		if err != nil {
			t.Fatalf("Unable to open %s/%s brick file: %v\n", spec.compress, spec.checksum, err)
		}
		g := mvq.SnapToStride(vol.Dims, mvq.Point3d{0, 0, 0}, mvq.ExtentFromDims(vol.Dims))
		buf := make([]byte, g.NumSamples()*4)
		if err := ds.Decode(context.Background(), g, 0, buf); err != nil {
			t.Fatalf("Unable to decode %s/%s brick file: %v\n", spec.compress, spec.checksum, err)
		}
		out := mvq.Volume{Data: buf, Dims: g.Dims, T: mvq.T_float32}
		for i := int64(0); i < g.NumSamples(); i++ {
			if out.ValueAt(i) != float64(i) {
				t.Fatalf("Bad %s/%s sample %d: got %f\n", spec.compress, spec.checksum, i, out.ValueAt(i))
			}
		}
		ds.Close()
	}
}

func TestEdgeClamp(t *testing.T) {
	dir := testDir(t)
	defer os.RemoveAll(dir)

	vol := mvq.NewVolume(mvq.Point3d{4, 1, 1}, mvq.T_float32)
	for i := int64(0); i < 4; i++ {
		vol.SetValueAt(i, float64(10+i))
	}
	if err := Write(filepath.Join(dir, "edge.brick"), vol, Uncompressed, NoChecksum); err != nil {
		t.Fatalf("Unable to write brick file: %v\n", err)
	}
	e, err := engine.Get("brick")
	if err != nil {
		t.Fatalf("Brick engine not registered: %v\n", err)
	}
	ds, err := e.Open(context.Background(), dir, "edge.brick")
	if err != nil {
		t.Fatalf("Unable to open brick file: %v\n", err)
	}
	defer ds.Close()

	// Snapping the last sample right can push a lattice point past the native
	// dims; such samples repeat the edge.
	g := mvq.Grid{From: mvq.Point3d{2, 0, 0}, Dims: mvq.Point3d{2, 1, 1}, Stride: mvq.Point3d{2, 1, 1}}
	buf := make([]byte, g.NumSamples()*4)
	if err := ds.Decode(context.Background(), g, 0, buf); err != nil {
		t.Fatalf("Unable to decode grid past the edge: %v\n", err)
	}
	out := mvq.Volume{Data: buf, Dims: g.Dims, T: mvq.T_float32}
	if out.ValueAt(0) != 12 || out.ValueAt(1) != 13 {
		t.Errorf("Bad edge samples: got %f, %f, expected 12, 13\n", out.ValueAt(0), out.ValueAt(1))
	}
}

func TestBadFile(t *testing.T) {
	dir := testDir(t)
	defer os.RemoveAll(dir)

	vol := testVolume()
	path := filepath.Join(dir, "good.brick")
	if err := Write(path, vol, Uncompressed, CRC32); err != nil {
		t.Fatalf("Unable to write brick file: %v\n", err)
	}
	e, err := engine.Get("brick")
	if err != nil {
		t.Fatalf("Brick engine not registered: %v\n", err)
	}

	if _, err := e.Open(context.Background(), dir, "missing.brick"); err == nil {
		t.Errorf("Expected open of missing file to fail\n")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unable to read brick file back: %v\n", err)
	}
	data[0] = 'X'
	bad := filepath.Join(dir, "badmagic.brick")
	if err := os.WriteFile(bad, data, 0644); err != nil {
		t.Fatalf("Unable to write corrupted file: %v\n", err)
	}
	if _, err := e.Open(context.Background(), dir, "badmagic.brick"); err == nil {
		t.Errorf("Expected open of file with bad magic to fail\n")
	}

	data[0] = 'B'
	data[len(data)-1] ^= 0xff
	bad = filepath.Join(dir, "badsum.brick")
	if err := os.WriteFile(bad, data, 0644); err != nil {
		t.Fatalf("Unable to write corrupted file: %v\n", err)
	}
	if _, err := e.Open(context.Background(), dir, "badsum.brick"); err == nil {
		t.Errorf("Expected open of file with bad checksum to fail\n")
	}
}
