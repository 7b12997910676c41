// Package palette resolves named color ramps for map categories. A bundled
// set of sequential ramps ships with the binary; callers can load additional
// ramps from a YAML file.
package palette

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Size limits for a resolved ramp, matching the category count limits.
const (
	MinSize = 3
	MaxSize = 11
)

//go:embed palettes.yaml
var bundled []byte

// Palette is one named color ramp at its full resolution.
type Palette struct {
	Name   string   `yaml:"name"`
	Colors []string `yaml:"colors"` // hex colors, ordered light to dark
}

// Set is a collection of palettes plus the reserved colors.
type Set struct {
	Palettes []Palette `yaml:"palettes"`
	NoData   string    `yaml:"no_data"` // fill for areas without data
	Hatch    string    `yaml:"hatch"`   // stroke for the significance overlay
}

// Default returns the bundled palette set.
func Default() *Set {
	s, err := parse(bundled)
	if err != nil {
		// The bundled file is compiled in; a parse failure is a build defect.
		panic(err)
	}
	return s
}

// LoadFile reads a palette set from a YAML file. Reserved colors missing
// from the file fall back to the bundled defaults.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "palette: read %s", path)
	}
	s, err := parse(data)
	if err != nil {
		return nil, err
	}

	def := Default()
	if s.NoData == "" {
		s.NoData = def.NoData
	}
	if s.Hatch == "" {
		s.Hatch = def.Hatch
	}
	return s, nil
}

func parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "palette: parse")
	}
	for _, p := range s.Palettes {
		if p.Name == "" {
			return nil, eris.New("palette: ramp with empty name")
		}
		if len(p.Colors) < MinSize {
			return nil, eris.Errorf("palette: ramp %q has %d colors, need at least %d",
				p.Name, len(p.Colors), MinSize)
		}
	}
	return &s, nil
}

// Lookup resolves a named ramp at the requested size by sampling evenly
// spaced colors from the full ramp.
func (s *Set) Lookup(name string, size int) ([]string, error) {
	if size < MinSize || size > MaxSize {
		return nil, eris.Errorf("palette: size must be in [%d,%d], got %d", MinSize, MaxSize, size)
	}

	for _, p := range s.Palettes {
		if p.Name != name {
			continue
		}
		if size > len(p.Colors) {
			return nil, eris.Errorf("palette: ramp %q supports at most %d colors, got %d",
				name, len(p.Colors), size)
		}
		out := make([]string, size)
		last := len(p.Colors) - 1
		for i := 0; i < size; i++ {
			out[i] = p.Colors[i*last/(size-1)]
		}
		return out, nil
	}
	return nil, eris.Errorf("palette: unknown ramp %q", name)
}

// Names lists the available ramps.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Palettes))
	for _, p := range s.Palettes {
		names = append(names, p.Name)
	}
	return names
}
