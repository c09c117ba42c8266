// Package tenant owns the durable tenant credentials and the session
// lifecycle: deciding whether a boot call is a no-op, a first
// initialization, or a tenant change that forces the vendor runtime to be
// reconfigured or the process restarted.
package tenant

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bubblbridge/internal/sdk"
)

// Config is the durable tenant identity in its parsed form.
type Config struct {
	APIKey      string
	Environment sdk.Environment
}

// BootConfig is the runtime-only derivation of a boot call: tenant identity
// plus per-session options. Two boots are a true no-op only when all four
// fields are equal.
type BootConfig struct {
	APIKey           string
	Environment      sdk.Environment
	SegmentationTags []string
	GeoPollInterval  time.Duration // 0 = vendor default
}

// BootOptions are the caller-supplied knobs accepted alongside apiKey and
// environment.
type BootOptions struct {
	SegmentationTags  []string
	GeoPollIntervalMs int64
	DefaultDistance   int
}

// ErrInvalidAPIKey rejects boots and tenant writes with an empty key.
var ErrInvalidAPIKey = fmt.Errorf("apiKey must be a non-empty string")

// PersistError marks a storage write that did not complete. The lifecycle
// never proceeds past an unsaved tenant.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "tenant persist failed: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

// NormalizeBootConfig resolves raw call arguments into a canonical
// BootConfig: trimmed key, parsed environment (unparseable defaults to
// STAGING), tags trimmed/deduplicated/sorted, negative poll intervals
// dropped. It does not validate the key; Boot does.
func NormalizeBootConfig(apiKey, environment string, opts BootOptions) BootConfig {
	cfg := BootConfig{
		APIKey:           strings.TrimSpace(apiKey),
		Environment:      sdk.ParseEnvironment(environment),
		SegmentationTags: normalizeTags(opts.SegmentationTags),
	}
	if opts.GeoPollIntervalMs > 0 {
		cfg.GeoPollInterval = time.Duration(opts.GeoPollIntervalMs) * time.Millisecond
	}
	return cfg
}

// normalizeTags trims, drops empties, deduplicates, and sorts. Sorting makes
// tag-set equality a plain slice comparison.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Equal compares all four fields. Both original platform bridges compared
// different subsets; this canonical form means a changed tag set or poll
// interval is never silently ignored.
func (c BootConfig) Equal(o BootConfig) bool {
	if c.APIKey != o.APIKey || c.Environment != o.Environment || c.GeoPollInterval != o.GeoPollInterval {
		return false
	}
	if len(c.SegmentationTags) != len(o.SegmentationTags) {
		return false
	}
	for i := range c.SegmentationTags {
		if c.SegmentationTags[i] != o.SegmentationTags[i] {
			return false
		}
	}
	return true
}

// Tenant returns the durable subset of the boot config.
func (c BootConfig) Tenant() Config {
	return Config{APIKey: c.APIKey, Environment: c.Environment}
}

func (c BootConfig) sdkConfig(defaultDistance int) sdk.Config {
	return sdk.Config{
		APIKey:           c.APIKey,
		Environment:      c.Environment,
		SegmentationTags: c.SegmentationTags,
		GeoPollInterval:  c.GeoPollInterval,
		DefaultDistance:  defaultDistance,
	}
}
