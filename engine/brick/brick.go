/*
	Package brick implements a reference engine for self-contained volume
	files in a local directory.  A brick file holds a small header (magic,
	format version, dims, element type) followed by the dense sample payload,
	optionally compressed and checksummed.  Decode subsamples the dense array
	along the requested grid, so reconstruction is lossless and the accuracy
	argument is ignored.
*/
package brick

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blang/semver"

	"github.com/oceanvis/mvq/engine"
	"github.com/oceanvis/mvq/mvq"
)

var magic = [4]byte{'B', 'R', 'C', 'K'}

const formatVersion uint8 = 1

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		mvq.Errorf("Unable to make semver in brick: %v\n", err)
	}
	e := Engine{"brick", "local brick files", ver}
	engine.Register(e)
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

// Open reads the named brick file under dir and keeps its samples in memory
// for decoding.
func (e Engine) Open(ctx context.Context, dir, file string) (engine.Dataset, error) {
	path := filepath.Join(dir, file)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read brick file %q: %w", path, err)
	}

	buf := bytes.NewBuffer(data)
	var fileMagic [4]byte
	if err := binary.Read(buf, binary.LittleEndian, &fileMagic); err != nil {
		return nil, fmt.Errorf("can't read magic of brick file %q: %v", path, err)
	}
	if fileMagic != magic {
		return nil, fmt.Errorf("file %q is not a brick file", path)
	}
	var version uint8
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("can't read version of brick file %q: %v", path, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("brick file %q has unhandled format version %d", path, version)
	}
	var dtype uint8
	if err := binary.Read(buf, binary.LittleEndian, &dtype); err != nil {
		return nil, fmt.Errorf("can't read element type of brick file %q: %v", path, err)
	}
	var dims mvq.Point3d
	if err := binary.Read(buf, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("can't read dims of brick file %q: %v", path, err)
	}

	samples, err := deserializeData(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("can't deserialize payload of brick file %q: %v", path, err)
	}
	vol := &mvq.Volume{Data: samples, Dims: dims, T: mvq.DataType(dtype)}
	if int64(len(samples)) != vol.NumBytes() {
		return nil, fmt.Errorf("brick file %q payload has %d bytes, expected %d for %s %s",
			path, len(samples), vol.NumBytes(), dims, vol.T)
	}
	return &Dataset{path: path, vol: vol}, nil
}

// --- Dataset Implementation ------

// Dataset is one open brick file with its samples held in memory.
type Dataset struct {
	path string
	vol  *mvq.Volume
}

func (d *Dataset) Dims() mvq.Point3d {
	return d.vol.Dims
}

func (d *Dataset) Type() mvq.DataType {
	return d.vol.T
}

// Decode fills buf with the samples on the given grid, row-major with X
// varying fastest.  Grid samples past the native dims repeat the nearest edge
// sample, since stride snapping can push a grid's last lattice point beyond
// the volume.  The accuracy argument is ignored.
func (d *Dataset) Decode(ctx context.Context, g mvq.Grid, accuracy float64, buf []byte) error {
	elsz := int64(mvq.DataTypeBytes(d.vol.T))
	if int64(len(buf)) < g.NumSamples()*elsz {
		return fmt.Errorf("decode of %s from %q into %d bytes: %w", g, d.path, len(buf), mvq.ErrSizeTooSmall)
	}

	dims := d.vol.Dims
	rowable := g.Stride[0] == 1 && g.From[0] >= 0 && g.From[0]+g.Dims[0] <= dims[0]
	var i int64
	for t := int32(0); t < g.Dims[2]; t++ {
		srcT := clamp(g.From[2]+t*g.Stride[2], dims[2]-1)
		for y := int32(0); y < g.Dims[1]; y++ {
			srcY := clamp(g.From[1]+y*g.Stride[1], dims[1]-1)
			rowI := (int64(srcT)*int64(dims[1]) + int64(srcY)) * int64(dims[0])
			if rowable {
				srcI := (rowI + int64(g.From[0])) * elsz
				n := int64(g.Dims[0]) * elsz
				copy(buf[i*elsz:i*elsz+n], d.vol.Data[srcI:srcI+n])
				i += int64(g.Dims[0])
				continue
			}
			for x := int32(0); x < g.Dims[0]; x++ {
				srcX := clamp(g.From[0]+x*g.Stride[0], dims[0]-1)
				srcI := (rowI + int64(srcX)) * elsz
				copy(buf[i*elsz:(i+1)*elsz], d.vol.Data[srcI:srcI+elsz])
				i++
			}
		}
	}
	return nil
}

func (d *Dataset) Close() error {
	return nil
}

func clamp(v, max int32) int32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Write creates a brick file at path holding the given volume, compressing
// and checksumming the payload as requested.
func Write(path string, vol *mvq.Volume, compress Compression, checksum Checksum) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, magic); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint8(vol.T)); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, vol.Dims); err != nil {
		return err
	}
	payload, err := serializeData(vol.Data, compress, checksum)
	if err != nil {
		return fmt.Errorf("can't serialize payload for brick file %q: %v", path, err)
	}
	if _, err := buf.Write(payload); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("can't write brick file %q: %v", path, err)
	}
	return nil
}
