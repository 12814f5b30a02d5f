package reactor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/zjrosen/reactor/internal/cachemanager"
	"github.com/zjrosen/reactor/internal/config"
	"github.com/zjrosen/reactor/internal/flags"
	"github.com/zjrosen/reactor/internal/scope"
)

// suggest returns the published event names of this reactor that are close
// to key. Results are cached per registry generation.
func (r *Reactor) suggest(key scope.Key) []string {
	cfg := r.tree.Config().Suggestions
	if cfg.Threshold <= 0 || len(r.published) == 0 {
		return nil
	}
	if !r.tree.Flags().EnabledOr(flags.FlagNearMissSuggestions, true) {
		return nil
	}

	cached := cachemanager.NewReadThroughCache(r.tree.suggestions,
		func(_ context.Context, want scope.Key) ([]string, error) {
			return nearMisses(want, r.PublishedKeys(), cfg), nil
		}, false)
	cacheKey := fmt.Sprintf("%s/%d/%s", r.ID(), r.generation, key)
	out, _ := cached.Get(context.Background(), cacheKey, key, cfg.CacheTTL)
	return out
}

// nearMisses ranks known by edit distance to want, keeping those whose
// distance divided by the length of want is below the threshold.
func nearMisses(want scope.Key, known []scope.Key, cfg config.SuggestionConfig) []string {
	target := want.String()
	length := utf8.RuneCountInString(target)
	if length == 0 {
		return nil
	}

	type candidate struct {
		name  string
		score float64
	}
	var found []candidate
	for _, k := range known {
		name := k.String()
		if name == target {
			continue
		}
		score := float64(levenshtein.ComputeDistance(target, name)) / float64(length)
		if score < cfg.Threshold {
			found = append(found, candidate{name: name, score: score})
		}
	}
	slices.SortFunc(found, func(a, b candidate) int {
		if c := cmp.Compare(a.score, b.score); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	if cfg.Max > 0 && len(found) > cfg.Max {
		found = found[:cfg.Max]
	}
	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.name
	}
	return out
}
