// Package storage persists crawled pages to relational sinks and ordered
// JSON exports.
package storage

import (
	"context"
	"errors"

	"semcrawl/pkg/types"
)

// Sink persists a single crawled page.
type Sink interface {
	Save(ctx context.Context, page types.CrawledPage) error
}

// Pipeline fans a page out to multiple sinks, joining their errors so
// one failing sink does not starve the others.
type Pipeline struct {
	sinks []Sink
}

// NewPipeline builds a pipeline from the non-nil sinks. It returns nil
// when nothing is configured, which callers treat as "no persistence".
func NewPipeline(sinks ...Sink) *Pipeline {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &Pipeline{sinks: kept}
}

// Save stores the page in every configured sink.
func (p *Pipeline) Save(ctx context.Context, page types.CrawledPage) error {
	if p == nil {
		return nil
	}
	var err error
	for _, s := range p.sinks {
		if serr := s.Save(ctx, page); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return err
}
