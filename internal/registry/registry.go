package registry

import (
	"fmt"

	"github.com/pokopt/fuer-assignment/internal/models"
)

// Kind describes one supported measurement type: its unit and the closed
// interval of plausible values.
type Kind struct {
	Name string  `json:"name"`
	Unit string  `json:"unit"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Validate checks a value against the kind's bounds. Both bounds are
// inclusive.
func (k Kind) Validate(value float64) error {
	if value < k.Min || value > k.Max {
		return &models.OutOfRangeError{Kind: k.Name, Value: value, Min: k.Min, Max: k.Max}
	}
	return nil
}

// defaultCatalog is every kind the service knows how to validate. Enabling
// a kind at startup selects from this set.
var defaultCatalog = map[string]Kind{
	"power":       {Name: "power", Unit: "W", Min: 0, Max: 10_000_000},
	"flow":        {Name: "flow", Unit: "L/min", Min: 0, Max: 100_000},
	"temperature": {Name: "temperature", Unit: "°C", Min: -273.15, Max: 1_000},
	"pressure":    {Name: "pressure", Unit: "kPa", Min: 0, Max: 100_000},
	"humidity":    {Name: "humidity", Unit: "%", Min: 0, Max: 100},
	"level":       {Name: "level", Unit: "m", Min: -100, Max: 10_000},
}

// Registry holds the measurement kind catalog and the subset enabled for
// this service instance. It is built once at startup and read-only while
// serving.
type Registry struct {
	catalog map[string]Kind
	byName  map[string]Kind
	enabled []Kind
}

// New builds a Registry over the default catalog with the given kinds
// enabled. An unknown name fails fast so a typo cannot reach serving.
func New(names []string) (*Registry, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one measurement kind must be enabled")
	}
	r := &Registry{
		catalog: make(map[string]Kind, len(defaultCatalog)),
		byName:  make(map[string]Kind, len(names)),
	}
	for name, kind := range defaultCatalog {
		r.catalog[name] = kind
	}
	for _, name := range names {
		if err := r.Enable(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a kind to the registry's catalog, making it available for
// enabling. Registering an existing name replaces its definition.
func (r *Registry) Register(kind Kind) error {
	if kind.Name == "" {
		return fmt.Errorf("kind name must not be empty")
	}
	if kind.Min > kind.Max {
		return fmt.Errorf("kind %q has min %g greater than max %g", kind.Name, kind.Min, kind.Max)
	}
	r.catalog[kind.Name] = kind
	return nil
}

// Enable marks a catalog kind as enabled for this run. Enabling a kind
// twice is a no-op; enabling a kind missing from the catalog is an error.
func (r *Registry) Enable(name string) error {
	kind, err := r.Lookup(name)
	if err != nil {
		return err
	}
	if _, dup := r.byName[name]; dup {
		return nil
	}
	r.byName[name] = kind
	r.enabled = append(r.enabled, kind)
	return nil
}

// Lookup returns the catalog definition for a kind name.
func (r *Registry) Lookup(name string) (Kind, error) {
	kind, ok := r.catalog[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", models.ErrUnknownKind, name)
	}
	return kind, nil
}

// Resolve returns the definition of an enabled kind. Kinds that exist in
// the catalog but were not enabled at startup resolve the same way as
// unknown ones: requests must not address them.
func (r *Registry) Resolve(name string) (Kind, error) {
	kind, ok := r.byName[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", models.ErrKindNotEnabled, name)
	}
	return kind, nil
}

// IsEnabled reports whether a kind was enabled for this run.
func (r *Registry) IsEnabled(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Enabled lists the enabled kinds in the order they were given.
func (r *Registry) Enabled() []Kind {
	out := make([]Kind, len(r.enabled))
	copy(out, r.enabled)
	return out
}
