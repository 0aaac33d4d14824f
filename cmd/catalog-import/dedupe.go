package main

import (
	"context"
	"log/slog"
	"math/bits"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

// maxFeeds bounds the number of feeds so a file set fits in a uint bitmask.
const maxFeeds = bits.UintSize

// filterParams sizes the per-feed bloom filters.
type filterParams struct {
	capacity uint
	fpr      float64
}

// buildFilters streams every feed concurrently and returns one bloom filter
// of product codes per feed.
func buildFilters(ctx context.Context, feeds []string, p filterParams) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(p.capacity, p.fpr)
			var count int
			if err := streamLines(ctx, path, func(line []byte) error {
				code, err := productCode(line)
				if err != nil {
					return err
				}
				filter.AddString(code)
				count++
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for feed %d", i+1)
			}

			slog.Info("pass 1 complete", slog.String("feed", path), slog.Int("products", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts returns the product codes listed by two or more feeds.
// Each feed is re-streamed and its codes tested against the other feeds'
// filters; only filter hits are kept in memory, tagged with the feed's bit,
// so false positives drop out when the bitmasks are merged.
func findConflicts(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	candidates := make([]map[string]uint, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			found := make(map[string]uint)
			bit := uint(1) << uint(i)
			if err := streamLines(ctx, path, func(line []byte) error {
				code, err := productCode(line)
				if err != nil {
					return err
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						found[code] |= bit
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan feed %d for duplicates", i+1)
			}

			slog.Info("pass 2 complete", slog.String("feed", path), slog.Int("candidates", len(found)))
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, found := range candidates {
		for code, mask := range found {
			merged[code] |= mask
		}
	}

	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	return conflicts, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
