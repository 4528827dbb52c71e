package testutil

import (
	"context"
	"sync"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/ports"
)

// PageKey addresses one scripted pollution page.
type PageKey struct {
	Country string
	Page    int
}

// PollutionSource serves scripted pages and errors.
type PollutionSource struct {
	mu     sync.Mutex
	Pages  map[PageKey]domain.PollutionPage
	Errors map[PageKey]error
	calls  []PageKey
}

var _ ports.PollutionSource = (*PollutionSource)(nil)

// NewPollutionSource returns a source with no pages; unknown pages come back empty.
func NewPollutionSource() *PollutionSource {
	return &PollutionSource{
		Pages:  map[PageKey]domain.PollutionPage{},
		Errors: map[PageKey]error{},
	}
}

func (p *PollutionSource) FetchPage(_ context.Context, country string, page, _ int) (domain.PollutionPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := PageKey{Country: country, Page: page}
	p.calls = append(p.calls, key)
	if err := p.Errors[key]; err != nil {
		return domain.PollutionPage{}, err
	}
	if result, ok := p.Pages[key]; ok {
		return result, nil
	}
	return domain.PollutionPage{Results: []domain.RawCity{}}, nil
}

// Calls returns the fetched pages in call order.
func (p *PollutionSource) Calls() []PageKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PageKey(nil), p.calls...)
}

// Describer answers description lookups from a fixed table.
type Describer struct {
	mu           sync.Mutex
	Descriptions map[string]string
	Errors       map[string]error
	calls        []string
	// Block, when set, makes Describe wait on it or on ctx.
	Block chan struct{}
}

var _ ports.DescriptionSource = (*Describer)(nil)

// NewDescriber returns a describer with the given name to description table.
func NewDescriber(descriptions map[string]string) *Describer {
	if descriptions == nil {
		descriptions = map[string]string{}
	}
	return &Describer{Descriptions: descriptions, Errors: map[string]error{}}
}

func (d *Describer) Describe(ctx context.Context, name string) (string, bool, error) {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	block := d.Block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.Errors[name]; err != nil {
		return "", false, err
	}
	text, ok := d.Descriptions[name]
	return text, ok, nil
}

// Calls returns every looked-up name in call order.
func (d *Describer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
