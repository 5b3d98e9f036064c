package worker

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Catalog holds per-worker overrides read from a YAML side file.
type Catalog struct {
	Workers map[string]CatalogEntry `yaml:"workers"`
}

// CatalogEntry overrides one worker's defaults. Zero values keep the default.
type CatalogEntry struct {
	TimeoutSecs int    `yaml:"timeout_secs"`
	Label       string `yaml:"label"`
	Disabled    bool   `yaml:"disabled"`
	Provider    string `yaml:"provider"` // alternate provider client name
}

// LoadCatalog reads worker overrides from a YAML file. The file has a
// top-level "catalog" key.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "worker: read catalog %s", path)
	}

	var wrapper struct {
		Catalog Catalog `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "worker: parse catalog")
	}
	for name, e := range wrapper.Catalog.Workers {
		if e.TimeoutSecs < 0 {
			return nil, eris.Errorf("worker: catalog %s: negative timeout_secs", name)
		}
	}
	return &wrapper.Catalog, nil
}

// entry returns the override for name, or a zero entry.
func (c *Catalog) entry(name string) CatalogEntry {
	if c == nil {
		return CatalogEntry{}
	}
	return c.Workers[name]
}

// overridden decorates a worker with catalog label and timeout overrides.
type overridden struct {
	Worker
	label   string
	timeout time.Duration
}

func (o *overridden) Label() string {
	if o.label != "" {
		return o.label
	}
	return o.Worker.Label()
}

func (o *overridden) Timeout() time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return o.Worker.Timeout()
}

// apply wraps w when e carries label or timeout overrides.
func (e CatalogEntry) apply(w Worker) Worker {
	if e.Label == "" && e.TimeoutSecs == 0 {
		return w
	}
	return &overridden{
		Worker:  w,
		label:   e.Label,
		timeout: time.Duration(e.TimeoutSecs) * time.Second,
	}
}
