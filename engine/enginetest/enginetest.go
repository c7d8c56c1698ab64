/*
	Package enginetest provides an in-memory engine whose sample values come
	from a deterministic per-coordinate function, so decode and query layers
	can be exercised without real files.  It counts opens and decodes per
	file, tracks the high-water mark of concurrently running decodes, and can
	inject per-file failures.
*/
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blang/semver"

	"github.com/oceanvis/mvq/engine"
	"github.com/oceanvis/mvq/mvq"
)

// ValueFunc computes the sample value at a global volume coordinate.
type ValueFunc func(p mvq.Point3d) float64

// Volume describes one openable in-memory file.
type Volume struct {
	Dims  mvq.Point3d
	T     mvq.DataType
	Value ValueFunc
}

// Engine is a stub engine for tests.  Register it under a unique name with
// engine.Register, then add volumes keyed by file name.
type Engine struct {
	name   string
	semver semver.Version

	// Delay is applied inside every Decode so schedulers can be observed.
	Delay time.Duration

	mu        sync.Mutex
	volumes   map[string]Volume
	openErr   map[string]error
	decodeErr map[string]error
	opens     map[string]int
	decodes   map[string]int

	running   int32
	highWater int32
}

func NewEngine(name string) *Engine {
	return &Engine{
		name:      name,
		semver:    semver.MustParse("0.1.0"),
		volumes:   make(map[string]Volume),
		openErr:   make(map[string]error),
		decodeErr: make(map[string]error),
		opens:     make(map[string]int),
		decodes:   make(map[string]int),
	}
}

// AddVolume makes the given file name openable.
func (e *Engine) AddVolume(file string, vol Volume) {
	e.mu.Lock()
	e.volumes[file] = vol
	e.mu.Unlock()
}

// FailOpen makes every Open of the given file return err.
func (e *Engine) FailOpen(file string, err error) {
	e.mu.Lock()
	e.openErr[file] = err
	e.mu.Unlock()
}

// FailDecode makes every Decode of the given file return err.
func (e *Engine) FailDecode(file string, err error) {
	e.mu.Lock()
	e.decodeErr[file] = err
	e.mu.Unlock()
}

// Opens returns how many times the given file was opened.
func (e *Engine) Opens(file string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens[file]
}

// Decodes returns how many times the given file was decoded.
func (e *Engine) Decodes(file string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodes[file]
}

// HighWater returns the maximum number of decodes seen running at once.
func (e *Engine) HighWater() int {
	return int(atomic.LoadInt32(&e.highWater))
}

// --- engine.Engine implementation ------

func (e *Engine) GetName() string {
	return e.name
}

func (e *Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e *Engine) Open(ctx context.Context, dir, file string) (engine.Dataset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opens[file]++
	if err := e.openErr[file]; err != nil {
		return nil, err
	}
	vol, found := e.volumes[file]
	if !found {
		return nil, fmt.Errorf("no volume for file %q", file)
	}
	return &dataset{engine: e, file: file, vol: vol}, nil
}

// --- engine.Dataset implementation ------

type dataset struct {
	engine *Engine
	file   string
	vol    Volume
}

func (d *dataset) Dims() mvq.Point3d {
	return d.vol.Dims
}

func (d *dataset) Type() mvq.DataType {
	return d.vol.T
}

func (d *dataset) Decode(ctx context.Context, g mvq.Grid, accuracy float64, buf []byte) error {
	e := d.engine
	running := atomic.AddInt32(&e.running, 1)
	defer atomic.AddInt32(&e.running, -1)
	for {
		highWater := atomic.LoadInt32(&e.highWater)
		if running <= highWater || atomic.CompareAndSwapInt32(&e.highWater, highWater, running) {
			break
		}
	}

	e.mu.Lock()
	e.decodes[d.file]++
	injected := e.decodeErr[d.file]
	delay := e.Delay
	e.mu.Unlock()
	if injected != nil {
		return injected
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	elsz := int64(mvq.DataTypeBytes(d.vol.T))
	if int64(len(buf)) < g.NumSamples()*elsz {
		return fmt.Errorf("decode of %s from %q into %d bytes: %w", g, d.file, len(buf), mvq.ErrSizeTooSmall)
	}
	out := mvq.Volume{Data: buf, Dims: g.Dims, T: d.vol.T}
	var i int64
	var p mvq.Point3d
	for p[2] = 0; p[2] < g.Dims[2]; p[2]++ {
		for p[1] = 0; p[1] < g.Dims[1]; p[1]++ {
			for p[0] = 0; p[0] < g.Dims[0]; p[0]++ {
				out.SetValueAt(i, d.vol.Value(g.From.Add(p.Mult(g.Stride))))
				i++
			}
		}
	}
	return nil
}

func (d *dataset) Close() error {
	return nil
}
