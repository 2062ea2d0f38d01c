// Package catalog holds the restaurants and drop-off locations the engine knows about.
package catalog

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"huddle/config"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Restaurant is a known restaurant.
type Restaurant struct {
	Name     string
	Category string
	Aliases  []string
}

// Location is a known drop-off location.
type Location struct {
	Name     string
	Zone     string
	Point    orb.Point // Longitude, latitude.
	HasPoint bool
	Aliases  []string
}

// Catalog resolves user wording to canonical names.
type Catalog struct {
	restaurants []Restaurant
	locations   []Location
	timezone    *time.Location
	asapWindow  time.Duration

	restaurantTerms []term
	locationTerms   []term
}

type term struct {
	pattern *regexp.Regexp
	length  int
	index   int
}

// New builds the catalog from configuration.
func New(cfg *config.Config) (*Catalog, error) {
	tz := time.UTC
	if cfg.Catalog.Timezone != "" {
		loaded, err := time.LoadLocation(cfg.Catalog.Timezone)
		if err != nil {
			return nil, errors.Wrapf(err, "load catalog timezone %s", cfg.Catalog.Timezone)
		}
		tz = loaded
	}

	c := &Catalog{timezone: tz, asapWindow: cfg.Catalog.ASAPWindow}
	for _, r := range cfg.Catalog.Restaurants {
		c.restaurants = append(c.restaurants, Restaurant{Name: r.Name, Category: r.Category, Aliases: r.Aliases})
	}
	for _, l := range cfg.Catalog.Locations {
		loc := Location{Name: l.Name, Zone: l.Zone, Aliases: l.Aliases}
		if l.Latitude != 0 || l.Longitude != 0 {
			loc.Point = orb.Point{l.Longitude, l.Latitude}
			loc.HasPoint = true
		}
		c.locations = append(c.locations, loc)
	}

	for i, r := range c.restaurants {
		c.restaurantTerms = append(c.restaurantTerms, terms(i, r.Name, r.Aliases)...)
	}
	for i, l := range c.locations {
		c.locationTerms = append(c.locationTerms, terms(i, l.Name, l.Aliases)...)
	}
	sortTerms(c.restaurantTerms)
	sortTerms(c.locationTerms)

	return c, nil
}

func terms(index int, name string, aliases []string) []term {
	words := append([]string{name}, aliases...)
	result := make([]term, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(strings.ToLower(w))
		if w == "" {
			continue
		}
		result = append(result, term{
			pattern: regexp.MustCompile(`(^|[^a-z0-9])` + regexp.QuoteMeta(w) + `($|[^a-z0-9])`),
			length:  len(w),
			index:   index,
		})
	}

	return result
}

// Longer terms first so that "student center east" wins over "east".
func sortTerms(ts []term) {
	slices.SortStableFunc(ts, func(a, b term) int {
		return b.length - a.length
	})
}

// Timezone is the zone user-written times are interpreted in.
func (c *Catalog) Timezone() *time.Location {
	return c.timezone
}

// ASAPWindow is the window length for "now" requests.
func (c *Catalog) ASAPWindow() time.Duration {
	return c.asapWindow
}

// Restaurants lists the known restaurants.
func (c *Catalog) Restaurants() []Restaurant {
	return slices.Clone(c.restaurants)
}

// Locations lists the known locations.
func (c *Catalog) Locations() []Location {
	return slices.Clone(c.locations)
}

// Restaurant looks a restaurant up by name or alias.
func (c *Catalog) Restaurant(name string) (Restaurant, bool) {
	needle := strings.TrimSpace(name)
	for _, r := range c.restaurants {
		if strings.EqualFold(r.Name, needle) || containsFold(r.Aliases, needle) {
			return r, true
		}
	}

	return Restaurant{}, false
}

// Location looks a location up by name or alias.
func (c *Catalog) Location(name string) (Location, bool) {
	needle := strings.TrimSpace(name)
	for _, l := range c.locations {
		if strings.EqualFold(l.Name, needle) || containsFold(l.Aliases, needle) {
			return l, true
		}
	}

	return Location{}, false
}

// FindRestaurant returns the restaurant mentioned in free text.
func (c *Catalog) FindRestaurant(text string) (Restaurant, bool) {
	if i, ok := find(c.restaurantTerms, text); ok {
		return c.restaurants[i], true
	}

	return Restaurant{}, false
}

// FindLocation returns the location mentioned in free text.
func (c *Catalog) FindLocation(text string) (Location, bool) {
	if i, ok := find(c.locationTerms, text); ok {
		return c.locations[i], true
	}

	return Location{}, false
}

func find(ts []term, text string) (int, bool) {
	lowered := strings.ToLower(text)
	for _, t := range ts {
		if t.pattern.MatchString(lowered) {
			return t.index, true
		}
	}

	return 0, false
}

func containsFold(values []string, needle string) bool {
	return slices.ContainsFunc(values, func(v string) bool {
		return strings.EqualFold(v, needle)
	})
}
