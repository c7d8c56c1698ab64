package decode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/oceanvis/mvq/mvq"
)

// ErrDivergentBatch is returned when requests targeting the same file carry
// different accuracy or downsampling, which one merged decode cannot serve.
var ErrDivergentBatch = errors.New("divergent accuracy or downsampling in batch")

// requestPair keeps a request joined to its original index across sorting.
type requestPair struct {
	req Request
	idx int
}

// DecodeFiles decodes all requests, merging requests that target the same
// file into a single engine decode whose grid covers their union extent,
// then scattering sub-regions into each request's output.  outputs[i]
// receives requests[i]'s samples regardless of completion order.  Merged
// decodes run concurrently up to Options.MaxTasks; the first failure cancels
// the remaining tasks and is returned once all tasks have drained, at which
// point every output is undefined.
func (s *Session) DecodeFiles(ctx context.Context, requests []Request, outputs []Output) error {
	if len(requests) == 0 {
		return fmt.Errorf("no requests given: %w", mvq.ErrDimensionMismatched)
	}
	if len(outputs) != len(requests) {
		return fmt.Errorf("%d outputs for %d requests: %w", len(outputs), len(requests), mvq.ErrDimensionMismatched)
	}
	t0 := time.Now()
	timedLog := mvq.NewTimeLog()

	// Sort by file so requests sharing a file end up in contiguous runs.
	pairs := make([]requestPair, len(requests))
	for i, req := range requests {
		pairs[i] = requestPair{req, i}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].req.File < pairs[j].req.File })

	// Validate every run before dispatching any decode.
	var groups [][]requestPair
	for begin := 0; begin < len(pairs); {
		end := begin + 1
		for end < len(pairs) && pairs[end].req.File == pairs[begin].req.File {
			if pairs[end].req.Accuracy != pairs[begin].req.Accuracy ||
				pairs[end].req.Downsampling != pairs[begin].req.Downsampling {
				return fmt.Errorf("requests for %q: %w", pairs[begin].req.File, ErrDivergentBatch)
			}
			end++
		}
		groups = append(groups, pairs[begin:end])
		begin = end
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxTasks)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			return s.decodeGroup(gctx, group, outputs)
		})
	}
	err := g.Wait()

	var written int64
	if err == nil {
		for i := range outputs {
			written += outputs[i].Grid.NumSamples() * int64(mvq.DataTypeBytes(outputs[i].T))
		}
	}
	s.publishActivity(t0, len(requests), len(groups), written, err)
	if err != nil {
		timedLog.Errorf("Failed decode of %d requests across %d files: %v", len(requests), len(groups), err)
		return err
	}
	timedLog.Infof("Decoded %d requests across %d files, %s", len(requests), len(groups),
		humanize.Bytes(uint64(written)))
	return nil
}

// decodeGroup serves one file's requests with a single decode covering their
// union extent, then scatters coordinate-relative sub-regions into each
// member's output.  The shared buffer is never collapsed; slice collapse
// runs per member after its copy.
func (s *Session) decodeGroup(ctx context.Context, group []requestPair, outputs []Output) error {
	if len(group) == 1 {
		_, err := s.DecodeFile(ctx, group[0].req, &outputs[group[0].idx])
		return err
	}

	merged := group[0].req
	for _, pair := range group[1:] {
		// Any whole-volume member widens the batch to the whole volume.
		if merged.Extent.Dims == (mvq.Point3d{}) || pair.req.Extent.Dims == (mvq.Point3d{}) {
			merged.Extent = mvq.Extent{}
		} else {
			merged.Extent = mvq.BoundingBox(merged.Extent, pair.req.Extent)
		}
	}

	var shared Output
	timedLog := mvq.NewTimeLog()
	dims, err := s.decodeRaw(ctx, merged, &shared)
	if err != nil {
		return err
	}
	timedLog.Infof("Decoded %q once for %d requests, %s", merged.File, len(group),
		humanize.Bytes(uint64(len(shared.Buffer))))

	sharedVol := mvq.Volume{Data: shared.Buffer, Dims: shared.Grid.Dims, T: shared.T}
	for _, pair := range group {
		out := &outputs[pair.idx]
		grid, err := resolveGrid(dims, pair.req)
		if err != nil {
			return err
		}
		out.T = shared.T
		if err := allocOutput(out, grid); err != nil {
			return err
		}
		relE, err := mvq.Relative(grid, shared.Grid)
		if err != nil {
			return fmt.Errorf("can't address %q sub-region: %w", pair.req.File, err)
		}
		outVol := mvq.Volume{Data: out.Buffer, Dims: grid.Dims, T: out.T}
		if err := mvq.CopyExtent(&outVol, mvq.Extent{Dims: grid.Dims}, &sharedVol, relE); err != nil {
			return fmt.Errorf("can't distribute %q sub-region: %w", pair.req.File, err)
		}
		out.Grid = grid
		if err := collapseSlices(pair.req, out); err != nil {
			return err
		}
	}
	return nil
}
