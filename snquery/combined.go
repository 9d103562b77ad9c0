package snquery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/sndata/snquery/internal/unionfind"
)

// -----------------------------------------------------------------------------
// CombinedDataset
// -----------------------------------------------------------------------------

// CombinedDataset composes multiple releases into one logical dataset whose
// identifiers are fully qualified RawIDs. Raw identifiers from different
// constituents may be joined into groups that are declared to name the same
// physical object; retrieval then merges the members' data on read.
//
// The combined surface deliberately excludes reference-table access and the
// single-survey descriptive fields (survey name, ADS URL, and the rest):
// neither has a well-defined meaning across heterogeneous constituents.
//
// A CombinedDataset is not safe for concurrent use.
type CombinedDataset struct {
	order    []string
	releases map[string]DataRelease

	// groups partitions the raw identifier universe. Each raw id is a
	// singleton unless explicitly joined; separation dissolves a whole
	// class, never a single member.
	groups *unionfind.Set[RawID]
}

// NewCombinedDataset composes the given releases. Constituents are held by
// reference; their caches and on-disk state stay theirs.
func NewCombinedDataset(releases ...DataRelease) (*CombinedDataset, error) {
	if len(releases) == 0 {
		return nil, errors.New("snquery: combined dataset requires at least one release")
	}

	c := &CombinedDataset{
		releases: make(map[string]DataRelease, len(releases)),
		groups:   unionfind.New[RawID](),
	}
	for _, rel := range releases {
		key := rel.Meta().Key()
		if _, dup := c.releases[key]; dup {
			continue
		}
		c.order = append(c.order, key)
		c.releases[key] = rel
	}
	return c, nil
}

// Releases returns the constituent releases in composition order.
func (c *CombinedDataset) Releases() []DataRelease {
	out := make([]DataRelease, len(c.order))
	for i, key := range c.order {
		out[i] = c.releases[key]
	}
	return out
}

// DataTypes returns each constituent's data kind, in composition order.
func (c *CombinedDataset) DataTypes() []DataType {
	out := make([]DataType, len(c.order))
	for i, key := range c.order {
		out[i] = c.releases[key].Meta().DataType
	}
	return out
}

// -----------------------------------------------------------------------------
// Identifier resolution
// -----------------------------------------------------------------------------

// rawIDs enumerates every raw identifier across all constituents.
func (c *CombinedDataset) rawIDs() ([]RawID, error) {
	var all []RawID
	for _, key := range c.order {
		rel := c.releases[key]
		meta := rel.Meta()
		ids, err := rel.GetAvailableIDs()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			all = append(all, RawID{ObjID: id, Release: meta.Release, Survey: meta.SurveyAbbrev})
		}
	}
	slices.SortFunc(all, func(a, b RawID) int {
		if a.less(b) {
			return -1
		}
		if b.less(a) {
			return 1
		}
		return 0
	})
	return all, nil
}

// Resolve maps an identifier to its fully qualified form. A qualified id is
// validated against the constituent list; a bare id is matched against every
// constituent's available objects and must match exactly one, failing with
// ErrInvalidObjID when it matches none and ErrAmbiguousID when it matches
// several.
func (c *CombinedDataset) Resolve(id RawID) (RawID, error) {
	if !id.IsBare() {
		if _, ok := c.releases[id.Survey+":"+id.Release]; !ok {
			return RawID{}, fmt.Errorf("snquery: %s: no constituent %s:%s: %w", id, id.Survey, id.Release, ErrInvalidObjID)
		}
		return id, nil
	}

	var matches []RawID
	for _, key := range c.order {
		rel := c.releases[key]
		ids, err := rel.GetAvailableIDs()
		if err != nil {
			return RawID{}, err
		}
		if _, found := slices.BinarySearch(ids, id.ObjID); found {
			meta := rel.Meta()
			matches = append(matches, RawID{ObjID: id.ObjID, Release: meta.Release, Survey: meta.SurveyAbbrev})
		}
	}
	switch len(matches) {
	case 0:
		return RawID{}, fmt.Errorf("snquery: %q: %w", id.ObjID, ErrInvalidObjID)
	case 1:
		return matches[0], nil
	default:
		return RawID{}, fmt.Errorf("snquery: %q matches %d releases: %w", id.ObjID, len(matches), ErrAmbiguousID)
	}
}

// -----------------------------------------------------------------------------
// Identifier union
// -----------------------------------------------------------------------------

// JoinIDs declares that the given identifiers name the same physical object,
// merging their current classes into one. Joining is order-independent,
// idempotent, and transitive: JoinIDs(a, b) then JoinIDs(b, c) leaves the
// same class as JoinIDs(a, b, c). Bare object-id strings are accepted when
// unambiguous across the constituents.
func (c *CombinedDataset) JoinIDs(ids ...RawID) error {
	if len(ids) < 2 {
		return errors.New("snquery: ids can only be joined in sets of 2 or more")
	}
	resolved, err := c.resolveAll(ids)
	if err != nil {
		return err
	}
	c.groups.Union(resolved...)
	return nil
}

// SeparateIDs dissolves, for each given identifier, its entire current class
// back into singletons. Dissolution is total: every member of the class
// returns to its own singleton, not just the identifier passed in. This is
// the inverse of JoinIDs at class granularity; there is no partial undo.
func (c *CombinedDataset) SeparateIDs(ids ...RawID) error {
	if len(ids) == 0 {
		return errors.New("snquery: no ids to separate")
	}
	resolved, err := c.resolveAll(ids)
	if err != nil {
		return err
	}
	for _, id := range resolved {
		c.groups.Dissolve(id)
	}
	return nil
}

func (c *CombinedDataset) resolveAll(ids []RawID) ([]RawID, error) {
	out := make([]RawID, len(ids))
	for i, id := range ids {
		resolved, err := c.Resolve(id)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

// GetJoinedIDs returns every multi-member class. Members within a class and
// the classes themselves are sorted for stable output.
func (c *CombinedDataset) GetJoinedIDs() [][]RawID {
	classes := c.groups.JoinedClasses()
	for _, class := range classes {
		sortRawIDs(class)
	}
	slices.SortFunc(classes, func(a, b []RawID) int {
		if a[0].less(b[0]) {
			return -1
		}
		if b[0].less(a[0]) {
			return 1
		}
		return 0
	})
	return classes
}

// GetAvailableIDs returns one identifier per equivalence class: every
// unjoined raw id, plus the smallest member of each joined class as its
// representative. The result is sorted and stable across calls.
func (c *CombinedDataset) GetAvailableIDs() ([]RawID, error) {
	all, err := c.rawIDs()
	if err != nil {
		return nil, err
	}

	var out []RawID
	seen := make(map[RawID]bool)
	for _, id := range all {
		if !c.groups.Joined(id) {
			out = append(out, id)
			continue
		}
		class := c.groups.Class(id)
		sortRawIDs(class)
		rep := class[0]
		if !seen[rep] {
			seen[rep] = true
			out = append(out, rep)
		}
	}
	return out, nil
}

func sortRawIDs(ids []RawID) {
	slices.SortFunc(ids, func(a, b RawID) int {
		if a.less(b) {
			return -1
		}
		if b.less(a) {
			return 1
		}
		return 0
	})
}

// -----------------------------------------------------------------------------
// Data retrieval
// -----------------------------------------------------------------------------

// GetDataForID returns the observation table for an identifier's equivalence
// class: the single object's table for a singleton, or the vertical
// concatenation of every member's table for a joined class. Any member of a
// joined class retrieves the whole class.
func (c *CombinedDataset) GetDataForID(id RawID, opts DataOptions) (*Table, error) {
	resolved, err := c.Resolve(id)
	if err != nil {
		return nil, err
	}

	class := c.groups.Class(resolved)
	if len(class) == 1 {
		return c.fetchOne(resolved, opts)
	}
	sortRawIDs(class)
	return c.fetchClass(class, opts)
}

// fetchOne retrieves one member's table from its owning release.
func (c *CombinedDataset) fetchOne(id RawID, opts DataOptions) (*Table, error) {
	rel, ok := c.releases[id.Survey+":"+id.Release]
	if !ok {
		return nil, fmt.Errorf("snquery: %s: no constituent %s:%s: %w", id, id.Survey, id.Release, ErrInvalidObjID)
	}
	table, err := rel.GetDataForID(id.ObjID, DataOptions{Raw: opts.Raw})
	if err != nil {
		return nil, err
	}
	table.Meta[MetaObjID] = id
	return table, nil
}

// fetchClass retrieves and concatenates every member of a joined class, in
// class-member order. Scalar metadata is merged across members: overlapping
// keys must agree, and a disagreement fails with ErrMetadataConflict rather
// than silently keeping either value. Each member's full metadata is kept
// under the "sources" key.
func (c *CombinedDataset) fetchClass(class []RawID, opts DataOptions) (*Table, error) {
	tables := make([]*Table, len(class))
	sources := make(map[RawID]Metadata, len(class))
	merged := Metadata{}

	for i, member := range class {
		table, err := c.fetchOne(member, opts)
		if err != nil {
			return nil, err
		}
		tables[i] = table
		sources[member] = table.Meta

		for key, value := range table.Meta {
			if key == MetaObjID || value == nil {
				continue
			}
			existing, present := merged[key]
			if !present || existing == nil {
				merged[key] = value
				continue
			}
			if !reflect.DeepEqual(existing, value) {
				return nil, fmt.Errorf("snquery: join %v: key %q: %v vs %v (%s): %w",
					class, key, existing, value, member, ErrMetadataConflict)
			}
		}
	}

	out := Vstack(tables...)
	out.Meta = merged
	out.Meta[MetaObjID] = slices.Clone(class)
	out.Meta["sources"] = sources
	return out, nil
}

// IterData yields the table of every equivalence class, one per identifier
// from GetAvailableIDs, in that order. Filtering follows the same
// load-before-filter semantics as a single release.
func (c *CombinedDataset) IterData(opts DataOptions) iter.Seq2[*Table, error] {
	return func(yield func(*Table, error) bool) {
		ids, err := c.GetAvailableIDs()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, id := range ids {
			table, err := c.GetDataForID(id, opts)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if opts.Filter != nil && !opts.Filter(table) {
				continue
			}
			if !yield(table, nil) {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Fan-out operations
// -----------------------------------------------------------------------------

// DownloadModuleData downloads every constituent's data. Failures are
// aggregated: a failing constituent does not stop the others, and all
// constituent errors are joined into the returned error.
func (c *CombinedDataset) DownloadModuleData(ctx context.Context, opts DownloadOptions) ([]DownloadWarning, error) {
	var warnings []DownloadWarning
	var errs []error
	for _, key := range c.order {
		w, err := c.releases[key].DownloadModuleData(ctx, opts)
		warnings = append(warnings, w...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return warnings, errors.Join(errs...)
}

// DeleteModuleData deletes every constituent's local data, aggregating
// failures rather than stopping at the first.
func (c *CombinedDataset) DeleteModuleData() error {
	var errs []error
	for _, key := range c.order {
		if err := c.releases[key].DeleteModuleData(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Photometric fan-out
// -----------------------------------------------------------------------------

// photometric is the band surface a constituent exposes when it is a
// photometric release.
type photometric interface {
	BandNames() []string
	ZeroPointForBand(band string) (float64, error)
	RegisterFilters(force bool) error
}

// BandNames returns the union of every constituent's band names, sorted.
// It fails with ErrObservedDataType when any constituent is spectroscopic,
// since a combined band list would silently misrepresent such a dataset.
func (c *CombinedDataset) BandNames() ([]string, error) {
	set := make(map[string]bool)
	for _, key := range c.order {
		rel, ok := c.releases[key].(photometric)
		if !ok {
			return nil, fmt.Errorf("snquery: %s has no bandpasses: %w", key, ErrObservedDataType)
		}
		for _, band := range rel.BandNames() {
			set[band] = true
		}
	}
	bands := make([]string, 0, len(set))
	for band := range set {
		bands = append(bands, band)
	}
	slices.Sort(bands)
	return bands, nil
}

// ZeroPoint returns the zero point of each band from BandNames, resolved
// from whichever constituent publishes the band.
func (c *CombinedDataset) ZeroPoint() ([]float64, error) {
	bands, err := c.BandNames()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(bands))
	for i, band := range bands {
		zp, err := c.zeroPointForBand(band)
		if err != nil {
			return nil, err
		}
		out[i] = zp
	}
	return out, nil
}

func (c *CombinedDataset) zeroPointForBand(band string) (float64, error) {
	for _, key := range c.order {
		rel, ok := c.releases[key].(photometric)
		if !ok {
			continue
		}
		if zp, err := rel.ZeroPointForBand(band); err == nil {
			return zp, nil
		}
	}
	return 0, fmt.Errorf("snquery: no constituent publishes band %q", band)
}

// RegisterFilters registers every photometric constituent's bands with the
// fitting library's registry, aggregating failures.
func (c *CombinedDataset) RegisterFilters(force bool) error {
	var errs []error
	for _, key := range c.order {
		rel, ok := c.releases[key].(photometric)
		if !ok {
			continue
		}
		if err := rel.RegisterFilters(force); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
