package catalog

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var safeIdentifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ClientOptions are the event sources enabled for one client.
type ClientOptions struct {
	Impressions []string `yaml:"impressions" json:"impressions"`
	Conversions []string `yaml:"conversions" json:"conversions"`
}

// Catalog is the allow-list of clients and the trackers each may query.
// Only names that appear here are ever used to compose table names.
type Catalog struct {
	Clients map[string]ClientOptions `yaml:"clients" json:"clients"`
}

// Default returns the built-in client set.
func Default() *Catalog {
	return &Catalog{
		Clients: map[string]ClientOptions{
			"hoff": {
				Impressions: []string{string(TrackerAdriver), string(TrackerHybe)},
				Conversions: []string{string(TrackerAppsflyer)},
			},
			"rendezv": {
				Impressions: []string{string(TrackerAdriver)},
				Conversions: []string{string(TrackerAppsflyer)},
			},
		},
	}
}

// LoadFile reads a catalog from a YAML file and validates it.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	c := &Catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every client and tracker name. It runs at startup so a
// catalog that references an unknown tracker never reaches query building.
func (c *Catalog) Validate() error {
	if len(c.Clients) == 0 {
		return fmt.Errorf("catalog has no clients")
	}

	for t, cols := range impressionColumns {
		for _, name := range []string{string(t), cols.A, cols.B} {
			if !safeIdentifier.MatchString(name) {
				return fmt.Errorf("tracker %q: %w: %q", t, ErrUnsafeIdentifier, name)
			}
		}
	}

	for name, opts := range c.Clients {
		if !safeIdentifier.MatchString(name) {
			return fmt.Errorf("client %q: %w", name, ErrUnsafeIdentifier)
		}
		if len(opts.Impressions) == 0 || len(opts.Conversions) == 0 {
			return fmt.Errorf("client %q needs at least one impression and one conversion tracker", name)
		}
		for _, t := range opts.Impressions {
			if !IsImpressionTracker(t) {
				return fmt.Errorf("client %q impressions: %w: %q", name, ErrUnsupportedTracker, t)
			}
		}
		for _, t := range opts.Conversions {
			if !IsConversionTracker(t) {
				return fmt.Errorf("client %q conversions: %w: %q", name, ErrUnsupportedTracker, t)
			}
		}
	}
	return nil
}

// ClientNames returns the configured clients, sorted.
func (c *Catalog) ClientNames() []string {
	out := make([]string, 0, len(c.Clients))
	for name := range c.Clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ImpressionTable returns the impression table for client and tracker,
// failing unless both are allowed.
func (c *Catalog) ImpressionTable(client, tracker string) (string, error) {
	opts, ok := c.Clients[client]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownClient, client)
	}
	if !IsImpressionTracker(tracker) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTracker, tracker)
	}
	if !contains(opts.Impressions, tracker) {
		return "", fmt.Errorf("%w: %q for %q", ErrTrackerNotAvailable, tracker, client)
	}
	return TableName(client, tracker), nil
}

// ConversionTable returns the conversion table for client and tracker,
// failing unless both are allowed.
func (c *Catalog) ConversionTable(client, tracker string) (string, error) {
	opts, ok := c.Clients[client]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownClient, client)
	}
	if !IsConversionTracker(tracker) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTracker, tracker)
	}
	if !contains(opts.Conversions, tracker) {
		return "", fmt.Errorf("%w: %q for %q", ErrTrackerNotAvailable, tracker, client)
	}
	return TableName(client, tracker), nil
}

// TableName composes `{client}_{tracker}`. Callers must have validated both.
func TableName(client, tracker string) string {
	return client + "_" + tracker
}

// IsSafeIdentifier reports whether name may be spliced into query text.
func IsSafeIdentifier(name string) bool {
	return safeIdentifier.MatchString(name)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
