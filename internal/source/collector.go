package source

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/cafebot/internal/ledger"
)

// Result holds the outcome of one collection pass.
type Result struct {
	Items  []Item
	Found  int
	Errors int
}

// Collector runs every keyword against every source.
type Collector struct {
	sources []Source
	fetcher *ContentFetcher
	log     *logrus.Entry
}

// NewCollector creates a collector. fetcher may be nil.
func NewCollector(sources []Source, fetcher *ContentFetcher, log *logrus.Entry) *Collector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Collector{sources: sources, fetcher: fetcher, log: log}
}

// Collect searches all keywords, in order, and returns the items found with
// duplicates (by item identifier) removed. Search failures are counted and
// logged; they do not abort the pass.
func (c *Collector) Collect(ctx context.Context, keywords []string) Result {
	var r Result
	seen := make(map[string]struct{})

	for _, kw := range keywords {
		for _, src := range c.sources {
			if ctx.Err() != nil {
				return r
			}
			items, err := src.Search(ctx, kw)
			if err != nil {
				r.Errors++
				c.log.WithError(err).WithFields(logrus.Fields{"keyword": kw, "source": src.Name()}).Warn("search failed")
				continue
			}
			r.Found += len(items)
			for _, it := range items {
				id := ledger.Normalize(it.URL)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				r.Items = append(r.Items, it)
			}
			c.log.WithFields(logrus.Fields{"keyword": kw, "found": len(items)}).Debug("keyword searched")
		}
	}

	if c.fetcher != nil && len(r.Items) > 0 {
		c.fetcher.Enrich(ctx, r.Items)
	}
	c.log.WithFields(logrus.Fields{"found": r.Found, "unique": len(r.Items), "errors": r.Errors}).Info("collection complete")
	return r
}
