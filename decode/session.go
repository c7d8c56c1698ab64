/*
	Package decode turns flat per-file requests into batched, bounded,
	concurrent engine decodes and scatters each merged decode's output back
	into the original requests' buffers.
*/
package decode

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/twinj/uuid"

	"github.com/oceanvis/mvq/engine"
	"github.com/oceanvis/mvq/mvq"
)

// Options configures a Session.
type Options struct {
	// Engine is the registered format name used to open files.
	Engine string `toml:"engine"`

	// Dir is the directory holding the session's dataset files.
	Dir string `toml:"dir"`

	// MaxTasks bounds how many decode tasks run at once.  Zero means the
	// number of CPUs.
	MaxTasks int `toml:"max_tasks"`

	// CacheSize is the size in MB of the file-metadata cache.  Zero disables
	// caching.
	CacheSize int `toml:"cache_size"`
}

// Session issues decodes against one dataset directory through one engine.
// A session holds only transient state: the task bound, the file-metadata
// cache, and an optional activity producer.  Its methods are safe for
// concurrent use, and concurrent sessions are independent.
type Session struct {
	opts   Options
	engine engine.Engine
	id     string

	metaCache    *freecache.Cache
	metaAttempts uint64
	metaHits     uint64

	publisher *activityPublisher
}

// NewSession readies the configured engine and caches for decoding files
// under opts.Dir.
func NewSession(opts Options) (*Session, error) {
	e, err := engine.Get(opts.Engine)
	if err != nil {
		return nil, err
	}
	if opts.MaxTasks == 0 {
		opts.MaxTasks = runtime.NumCPU()
	}
	s := &Session{
		opts:   opts,
		engine: e,
		id:     uuid.NewV4().String(),
	}
	if opts.CacheSize > 0 {
		s.metaCache = freecache.NewCache(opts.CacheSize * mvq.Mega)
		mvq.Infof("Created freecache of ~ %d MB for file metadata.\n", opts.CacheSize)
	}
	return s, nil
}

// ID returns the session identifier used to correlate activity records.
func (s *Session) ID() string {
	return s.id
}

// Close logs cache statistics and shuts down the activity producer, flushing
// pending records.
func (s *Session) Close() {
	attempts := atomic.LoadUint64(&s.metaAttempts)
	if attempts > 0 {
		hits := atomic.LoadUint64(&s.metaHits)
		mvq.Infof("Session %s file-metadata cache: %d hits / %d attempts\n", s.id, hits, attempts)
	}
	s.closePublisher()
}

// FileInfo holds the per-file metadata needed to resolve output grids.
type FileInfo struct {
	Dims mvq.Point3d
	T    mvq.DataType
}

// FileInfo returns the native dims and element type of the given file,
// reading through the session's metadata cache.  On a miss the file is
// opened and its metadata cached.
func (s *Session) FileInfo(ctx context.Context, file string) (FileInfo, error) {
	if info, found := s.cachedInfo(file); found {
		return info, nil
	}
	d, err := s.engine.Open(ctx, s.opts.Dir, file)
	if err != nil {
		return FileInfo{}, fmt.Errorf("can't open %q for metadata: %w", file, err)
	}
	defer d.Close()
	info := FileInfo{Dims: d.Dims(), T: d.Type()}
	s.cacheInfo(file, info)
	return info, nil
}

// Cached metadata is 3 little-endian int32 dims plus an element type byte.
const fileInfoBytes = 13

func (s *Session) cachedInfo(file string) (FileInfo, bool) {
	if s.metaCache == nil {
		return FileInfo{}, false
	}
	atomic.AddUint64(&s.metaAttempts, 1)
	b, err := s.metaCache.Get([]byte(file))
	if err != nil {
		if err != freecache.ErrNotFound {
			mvq.Errorf("metadata cache get for %q: %v\n", file, err)
		}
		return FileInfo{}, false
	}
	if len(b) != fileInfoBytes {
		return FileInfo{}, false
	}
	var info FileInfo
	info.Dims[0] = int32(binary.LittleEndian.Uint32(b[0:]))
	info.Dims[1] = int32(binary.LittleEndian.Uint32(b[4:]))
	info.Dims[2] = int32(binary.LittleEndian.Uint32(b[8:]))
	info.T = mvq.DataType(b[12])
	atomic.AddUint64(&s.metaHits, 1)
	return info, true
}

func (s *Session) cacheInfo(file string, info FileInfo) {
	if s.metaCache == nil {
		return
	}
	b := make([]byte, fileInfoBytes)
	binary.LittleEndian.PutUint32(b[0:], uint32(info.Dims[0]))
	binary.LittleEndian.PutUint32(b[4:], uint32(info.Dims[1]))
	binary.LittleEndian.PutUint32(b[8:], uint32(info.Dims[2]))
	b[12] = byte(info.T)
	if err := s.metaCache.Set([]byte(file), b, 0); err != nil {
		mvq.Errorf("unable to cache metadata for %q: %v\n", file, err)
	}
}
