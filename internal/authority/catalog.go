// Package authority is the catalog of coordinate reference systems and the
// coordinate operations known between them.
package authority

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

var (
	ErrUnknownCRS     = errors.New("unknown crs")
	ErrInvalidCatalog = errors.New("invalid catalog")
)

type Kind string

const (
	KindGeographic Kind = "geographic"
	KindProjected  Kind = "projected"
	KindGeocentric Kind = "geocentric"
)

// Helper is a definition taking longitude/latitude in degrees on the CRS
// base datum to the CRS coordinates.
type Helper struct {
	Definition string   `yaml:"definition"`
	Grids      []string `yaml:"grids,omitempty"`
}

type CRS struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Kind      Kind     `yaml:"kind"`
	FirstAxis string   `yaml:"first_axis"`
	Base      string   `yaml:"base,omitempty"`
	FromBase  []Helper `yaml:"from_base,omitempty"`
}

// BaseID is the geographic CRS the CRS is defined on; a geographic CRS
// without an explicit base is its own base.
func (c CRS) BaseID() string {
	if c.Base != "" {
		return c.Base
	}
	return c.ID
}

// LonFirst reports whether the first axis is longitude.
func (c CRS) LonFirst() bool {
	return c.FirstAxis == "Lon" || c.FirstAxis == "lon"
}

func (c CRS) Geographic() bool { return c.Kind == KindGeographic }

// Helpers returns the base-to-CRS definitions, synthesising the axis order
// handling for geographic CRSs that do not list any.
func (c CRS) Helpers() []Helper {
	if len(c.FromBase) > 0 {
		return c.FromBase
	}
	if c.Kind == KindGeographic {
		if c.LonFirst() {
			return []Helper{{Definition: "proj=noop"}}
		}
		return []Helper{{Definition: "proj=axisswap order=2,1"}}
	}
	return nil
}

type Area struct {
	Name  string  `yaml:"name"`
	West  float64 `yaml:"west"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	North float64 `yaml:"north"`
}

func (a *Area) BBox() model.BBox {
	if a == nil {
		return model.WorldBBox()
	}
	return model.BBox{West: a.West, South: a.South, East: a.East, North: a.North, Name: a.Name}
}

type Operation struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Source     string   `yaml:"source"`
	Target     string   `yaml:"target"`
	Definition string   `yaml:"definition"`
	Accuracy   *float64 `yaml:"accuracy,omitempty"`
	Area       *Area    `yaml:"area,omitempty"`
	Grids      []string `yaml:"grids,omitempty"`
	Ballpark   bool     `yaml:"ballpark,omitempty"`
}

// AccuracyOr returns the declared accuracy, -1 when unknown.
func (o Operation) AccuracyOr() float64 {
	if o.Accuracy == nil {
		return -1
	}
	return *o.Accuracy
}

type Catalog struct {
	CRS        []CRS       `yaml:"crs"`
	Operations []Operation `yaml:"operations"`

	crsByID map[string]int
}

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("authority: default catalog: %v", err))
	}
	return c
}

func Load(path string) (*Catalog, error) {
	f, err := os.Open(path) // #nosec G304 -- catalog path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.crsByID = make(map[string]int, len(c.CRS))
	for i, crs := range c.CRS {
		if crs.ID == "" {
			return fmt.Errorf("%w: crs #%d has no id", ErrInvalidCatalog, i)
		}
		key := strings.ToUpper(crs.ID)
		if _, dup := c.crsByID[key]; dup {
			return fmt.Errorf("%w: duplicate crs %s", ErrInvalidCatalog, crs.ID)
		}
		switch crs.Kind {
		case KindGeographic, KindProjected, KindGeocentric:
		default:
			return fmt.Errorf("%w: crs %s: unknown kind %q", ErrInvalidCatalog, crs.ID, crs.Kind)
		}
		if crs.Kind != KindGeographic && len(crs.FromBase) == 0 {
			return fmt.Errorf("%w: crs %s: from_base is required for %s crs", ErrInvalidCatalog, crs.ID, crs.Kind)
		}
		c.crsByID[key] = i
	}
	for _, crs := range c.CRS {
		if crs.Base != "" {
			if _, ok := c.crsByID[strings.ToUpper(crs.Base)]; !ok {
				return fmt.Errorf("%w: crs %s: unknown base %s", ErrInvalidCatalog, crs.ID, crs.Base)
			}
		}
	}
	seen := map[string]bool{}
	for i, op := range c.Operations {
		if op.ID == "" || op.Definition == "" {
			return fmt.Errorf("%w: operation #%d needs an id and a definition", ErrInvalidCatalog, i)
		}
		if seen[op.ID] {
			return fmt.Errorf("%w: duplicate operation %s", ErrInvalidCatalog, op.ID)
		}
		seen[op.ID] = true
		for _, id := range []string{op.Source, op.Target} {
			if _, ok := c.crsByID[strings.ToUpper(id)]; !ok {
				return fmt.Errorf("%w: operation %s: unknown crs %q", ErrInvalidCatalog, op.ID, id)
			}
		}
		if a := op.Area; a != nil {
			if a.South > a.North || a.South < -90 || a.North > 90 || a.West < -180 || a.East > 180 {
				return fmt.Errorf("%w: operation %s: bad area of use %v", ErrInvalidCatalog, op.ID, a.BBox())
			}
		}
	}
	return nil
}

// LookupCRS finds a CRS by id, case-insensitively.
func (c *Catalog) LookupCRS(id string) (CRS, error) {
	i, ok := c.crsByID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return CRS{}, fmt.Errorf("%w: %s", ErrUnknownCRS, id)
	}
	return c.CRS[i], nil
}

// Touching returns the ids of the operations whose source or target is
// one of ids.
func (c *Catalog) Touching(ids ...string) []string {
	want := map[string]bool{}
	for _, id := range ids {
		want[strings.ToUpper(id)] = true
	}
	var out []string
	for _, op := range c.Operations {
		if want[strings.ToUpper(op.Source)] || want[strings.ToUpper(op.Target)] {
			out = append(out, op.ID)
		}
	}
	return out
}
