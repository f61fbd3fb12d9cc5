package catalog

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Catalog is the process-wide immutable requirement registry. Construct
// once via Load and share the pointer freely; there is no lock because
// nothing ever mutates it after construction.
type Catalog struct {
	byFramework map[Framework][]Requirement
	byID        map[Framework]map[string]Requirement
	version     string
}

// Load parses every embedded framework YAML file. A malformed catalog is a
// fatal startup error.
func Load() (*Catalog, error) {
	entries, err := dataFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("catalog: read embedded dir: %w", err)
	}

	c := &Catalog{
		byFramework: make(map[Framework][]Requirement),
		byID:        make(map[Framework]map[string]Requirement),
		version:     "2026.1",
	}

	for _, entry := range entries {
		raw, err := dataFS.ReadFile("data/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", entry.Name(), err)
		}
		var file frameworkFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", entry.Name(), err)
		}
		fw := Framework(file.Framework)
		if fw == "" {
			return nil, fmt.Errorf("catalog: %s missing framework name", entry.Name())
		}

		idSet := make(map[string]Requirement, len(file.Requirements))
		for _, req := range file.Requirements {
			if req.ID == "" {
				return nil, fmt.Errorf("catalog: %s has requirement with empty id", entry.Name())
			}
			if len(req.Keywords) < 3 {
				return nil, fmt.Errorf("catalog: requirement %s has fewer than 3 keywords", req.ID)
			}
			req.Framework = fw
			idSet[req.ID] = req
		}
		reqs := make([]Requirement, 0, len(file.Requirements))
		for _, req := range file.Requirements {
			req.Framework = fw
			reqs = append(reqs, req)
		}
		sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })

		c.byFramework[fw] = reqs
		c.byID[fw] = idSet
	}

	for _, fw := range AllFrameworks {
		if _, ok := c.byFramework[fw]; !ok {
			return nil, fmt.Errorf("catalog: missing framework %s", fw)
		}
	}

	return c, nil
}

// Version reports the catalog's static edition tag.
func (c *Catalog) Version() string { return c.version }

// ListFrameworks returns the supported frameworks in stable order.
func (c *Catalog) ListFrameworks() []Framework {
	out := make([]Framework, len(AllFrameworks))
	copy(out, AllFrameworks)
	return out
}

// Requirements returns every requirement for a framework, a defensive copy
// so callers cannot mutate the shared catalog.
func (c *Catalog) Requirements(fw Framework) []Requirement {
	src := c.byFramework[fw]
	out := make([]Requirement, len(src))
	copy(out, src)
	return out
}

// Get looks up a single requirement by framework and id.
func (c *Catalog) Get(fw Framework, id string) (Requirement, bool) {
	req, ok := c.byID[fw][id]
	return req, ok
}

// Summaries builds the GET /frameworks response body.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(AllFrameworks))
	for _, fw := range AllFrameworks {
		reqs := c.byFramework[fw]
		mandatory := 0
		catSet := map[string]struct{}{}
		for _, r := range reqs {
			if r.IsMandatory {
				mandatory++
			}
			catSet[r.Category] = struct{}{}
		}
		cats := make([]string, 0, len(catSet))
		for cat := range catSet {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		out = append(out, Summary{
			Name:       string(fw),
			Total:      len(reqs),
			Mandatory:  mandatory,
			Categories: cats,
		})
	}
	return out
}
