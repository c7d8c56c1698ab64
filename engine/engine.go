/*
	Package engine provides a unified interface to multiresolution decode
	engines.  Each engine handles one on-disk volume format; implementations
	register themselves by format name so sessions can open files without
	knowing which engine package backs them.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/blang/semver"

	"github.com/oceanvis/mvq/mvq"
)

// Engine opens volume files of one multiresolution format.
type Engine interface {
	// GetName returns the format name this engine handles, e.g., "brick".
	GetName() string

	// GetSemVer returns the engine version.
	GetSemVer() semver.Version

	// Open readies the named file under dir for decoding.
	Open(ctx context.Context, dir, file string) (Dataset, error)
}

// Dataset is one open volume file.
type Dataset interface {
	// Dims returns the native sample dimensions of the volume.
	Dims() mvq.Point3d

	// Type returns the element type of the volume's samples.
	Type() mvq.DataType

	// Decode reconstructs the samples of the given grid into buf, row-major
	// with X varying fastest, exactly grid.NumSamples() samples.  Accuracy is
	// the permitted RMS error; lossless engines ignore it.
	Decode(ctx context.Context, grid mvq.Grid, accuracy float64, buf []byte) error

	// Close releases resources held for the open file.
	Close() error
}

var availEngines map[string]Engine

// Register makes an engine available by format name.  Engine packages call
// it from init, so no locking is done.
func Register(e Engine) {
	mvq.Debugf("Engine %q (version %s) registered.\n", e.GetName(), e.GetSemVer())
	if availEngines == nil {
		availEngines = map[string]Engine{e.GetName(): e}
	} else {
		availEngines[e.GetName()] = e
	}
}

// Get returns the registered engine for a format name.
func Get(format string) (Engine, error) {
	e, found := availEngines[format]
	if !found {
		return nil, fmt.Errorf("no engine registered for format %q", format)
	}
	return e, nil
}
