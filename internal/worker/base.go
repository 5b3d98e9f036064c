package worker

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/pkg/propdata"
)

// def is the static description of one catalog worker.
type def struct {
	name     string
	category model.Category
	set      Set
	label    string
	provider string
	path     string
	timeout  time.Duration
	critical bool
}

// base implements the descriptive half of Worker for every adapter.
type base struct {
	def
	client propdata.Client
}

func (b *base) Name() string             { return b.name }
func (b *base) Category() model.Category { return b.category }
func (b *base) Set() Set                 { return b.set }
func (b *base) Label() string            { return b.label }
func (b *base) Timeout() time.Duration   { return b.timeout }
func (b *base) Critical() bool           { return b.critical }

// subjectQuery builds the address query every provider accepts.
func subjectQuery(s model.ResearchSubject) url.Values {
	q := url.Values{}
	q.Set("address", s.NormalizedAddress)
	q.Set("street", s.Street)
	if s.City != "" {
		q.Set("city", s.City)
	}
	if s.State != "" {
		q.Set("state", s.State)
	}
	if s.PostalCode != "" {
		q.Set("zip", s.PostalCode)
	}
	return q
}

// fetch calls the worker's provider endpoint for the request subject and
// decodes the response into out. A provider 404 becomes ErrNoData.
func (b *base) fetch(ctx context.Context, req Request, extra url.Values, out any) error {
	q := subjectQuery(req.Subject)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	err := b.client.Get(ctx, b.path, q, out)
	if errors.Is(err, propdata.ErrNotFound) {
		return eris.Wrapf(ErrNoData, "%s: %s", b.name, b.client.Provider())
	}
	if err != nil {
		return eris.Wrapf(err, "%s", b.name)
	}
	return nil
}

// passthrough is an adapter whose provider response already has the payload
// shape.
type passthrough[T any, P interface {
	*T
	model.Payload
}] struct {
	base
	finish func(P) error
}

func (w *passthrough[T, P]) Run(ctx context.Context, req Request) (model.Payload, error) {
	out := P(new(T))
	if err := w.fetch(ctx, req, nil, out); err != nil {
		return nil, err
	}
	if w.finish != nil {
		if err := w.finish(out); err != nil {
			return nil, eris.Wrapf(err, "%s", w.name)
		}
	}
	return out, nil
}
