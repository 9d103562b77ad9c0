package snquery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
)

// -----------------------------------------------------------------------------
// Release configuration
// -----------------------------------------------------------------------------

// releaseConfig holds the resolved configuration for a release.
type releaseConfig struct {
	store    CacheStore
	registry FilterRegistry
}

// Option configures release construction.
type Option func(*releaseConfig) error

// WithStore sets the local cache store backing the release.
// Default: NewFSStore(DefaultDataDir()).
func WithStore(s CacheStore) Option {
	return func(cfg *releaseConfig) error {
		if s == nil {
			return errors.New("snquery: nil cache store")
		}
		cfg.store = s
		return nil
	}
}

// WithFilterRegistry sets the band registry used by RegisterFilters.
// Default: DefaultRegistry, the process-wide registry.
func WithFilterRegistry(r FilterRegistry) Option {
	return func(cfg *releaseConfig) error {
		if r == nil {
			return errors.New("snquery: nil filter registry")
		}
		cfg.registry = r
		return nil
	}
}

func resolveConfig(opts []Option) (*releaseConfig, error) {
	cfg := &releaseConfig{registry: DefaultRegistry}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.store == nil {
		store, err := NewFSStore(DefaultDataDir())
		if err != nil {
			return nil, fmt.Errorf("snquery: default store: %w", err)
		}
		cfg.store = store
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// SpectroscopicRelease
// -----------------------------------------------------------------------------

// SpectroscopicRelease exposes the uniform operation surface over one
// spectroscopic data release. The survey-specific parser supplies only the
// four primitive operations; everything else (fail-fast existence checks,
// id ordering, reference-table caching, iteration, error translation) is
// supplied here, identically for every survey.
//
// A release is not safe for concurrent use; callers serialize access to one
// instance.
type SpectroscopicRelease struct {
	meta      ReleaseMeta
	parser    Parser
	resources []Resource
	store     CacheStore

	// tables memoizes LoadTable results. It grows lazily and is reset
	// only by DeleteModuleData.
	tables map[TableID]*Table
}

// NewSpectroscopicRelease creates the access surface for one spectroscopic
// data release. resources lists the release's remote files; it may be empty
// for releases without a supported remote source.
func NewSpectroscopicRelease(meta ReleaseMeta, parser Parser, resources []Resource, opts ...Option) (*SpectroscopicRelease, error) {
	if meta.SurveyAbbrev == "" || meta.Release == "" {
		return nil, errors.New("snquery: release metadata requires a survey abbreviation and release name")
	}
	if parser == nil {
		return nil, errors.New("snquery: nil parser")
	}
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	if meta.DataType == "" {
		meta.DataType = Spectroscopic
	}
	return &SpectroscopicRelease{
		meta:      meta,
		parser:    parser,
		resources: slices.Clone(resources),
		store:     cfg.store,
		tables:    make(map[TableID]*Table),
	}, nil
}

// Meta returns the release's descriptive metadata.
func (r *SpectroscopicRelease) Meta() ReleaseMeta {
	return r.meta
}

// dir resolves the release's cache directory without checking existence.
func (r *SpectroscopicRelease) dir() string {
	return r.store.Path(r.meta.SurveyAbbrev, r.meta.Release)
}

// requireData resolves the cache directory, failing with ErrNoDownloadedData
// when the store has nothing for this release.
func (r *SpectroscopicRelease) requireData() (string, error) {
	ok, err := r.store.Exists(r.meta.SurveyAbbrev, r.meta.Release)
	if err != nil {
		return "", fmt.Errorf("snquery: %s: %w", r.meta.Key(), err)
	}
	if !ok {
		return "", fmt.Errorf("snquery: %s: %w", r.meta.Key(), ErrNoDownloadedData)
	}
	return r.dir(), nil
}

// DataIsAvailable reports whether the release has data in the local cache.
func (r *SpectroscopicRelease) DataIsAvailable() bool {
	ok, err := r.store.Exists(r.meta.SurveyAbbrev, r.meta.Release)
	return err == nil && ok
}

// GetAvailableIDs returns the sorted, duplicate-free object identifiers of
// the release. It fails with ErrNoDownloadedData when no local data is
// present, never returning an empty list for absent data.
func (r *SpectroscopicRelease) GetAvailableIDs() ([]string, error) {
	dir, err := r.requireData()
	if err != nil {
		return nil, err
	}
	ids, err := r.parser.AvailableIDs(dir)
	if err != nil {
		return nil, fmt.Errorf("snquery: %s: list ids: %w", r.meta.Key(), err)
	}
	return sortedUniqueIDs(ids), nil
}

// GetDataForID returns one object's observation table, re-read from the
// local cache on every call. Only reference tables are cached; caching every
// object would be memory-unbounded across large surveys.
func (r *SpectroscopicRelease) GetDataForID(objID string, opts DataOptions) (*Table, error) {
	ids, err := r.GetAvailableIDs()
	if err != nil {
		return nil, err
	}
	if _, found := slices.BinarySearch(ids, objID); !found {
		return nil, fmt.Errorf("snquery: %s: %q: %w", r.meta.Key(), objID, ErrInvalidObjID)
	}

	table, err := r.parser.ObjectData(r.dir(), objID, !opts.Raw)
	if err != nil {
		return nil, fmt.Errorf("snquery: %s: load %q: %w", r.meta.Key(), objID, err)
	}
	if table.Meta == nil {
		table.Meta = Metadata{}
	}
	if _, ok := table.Meta[MetaObjID]; !ok {
		table.Meta[MetaObjID] = objID
	}
	return table, nil
}

// IterData yields each object's table in GetAvailableIDs order. The sequence
// is finite and restartable: ranging it again re-reads from the start. When
// opts.Filter is set, each record is still fully loaded before the predicate
// runs.
func (r *SpectroscopicRelease) IterData(opts DataOptions) iter.Seq2[*Table, error] {
	return iterData(r, opts)
}

// GetAvailableTables returns the ids of the reference tables published with
// the release: numbered tables first (ascending), then named summary tables
// (lexicographic).
func (r *SpectroscopicRelease) GetAvailableTables() ([]TableID, error) {
	dir, err := r.requireData()
	if err != nil {
		return nil, err
	}
	ids, err := r.parser.AvailableTables(dir)
	if err != nil {
		return nil, fmt.Errorf("snquery: %s: list tables: %w", r.meta.Key(), err)
	}
	SortTableIDs(ids)
	return ids, nil
}

// LoadTable returns a published reference table, memoized per table id for
// the lifetime of the release. The returned table is a copy; mutating it
// does not poison the cache.
func (r *SpectroscopicRelease) LoadTable(id TableID) (*Table, error) {
	if cached, ok := r.tables[id]; ok {
		return cached.Copy(), nil
	}

	available, err := r.GetAvailableTables()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(available, id) {
		return nil, fmt.Errorf("snquery: %s: table %s: %w", r.meta.Key(), id, ErrInvalidTableID)
	}

	table, err := r.parser.LoadTable(r.dir(), id)
	if err != nil {
		return nil, fmt.Errorf("snquery: %s: load table %s: %w", r.meta.Key(), id, err)
	}
	r.tables[id] = table
	return table.Copy(), nil
}

// DownloadModuleData fetches the release's remote resources into the local
// cache. Files already present are skipped unless opts.Force is set, so the
// call is safe to repeat. Unreachable resources are returned as warnings
// rather than stopping the download.
func (r *SpectroscopicRelease) DownloadModuleData(ctx context.Context, opts DownloadOptions) ([]DownloadWarning, error) {
	if len(r.resources) == 0 {
		return nil, fmt.Errorf("snquery: %s: release does not support remote downloads", r.meta.Key())
	}
	return r.store.Download(ctx, r.meta.SurveyAbbrev, r.meta.Release, r.resources, opts)
}

// DeleteModuleData removes all local data for the release and resets the
// reference-table cache.
func (r *SpectroscopicRelease) DeleteModuleData() error {
	if err := r.store.Delete(r.meta.SurveyAbbrev, r.meta.Release); err != nil {
		return fmt.Errorf("snquery: %s: delete: %w", r.meta.Key(), err)
	}
	r.tables = make(map[TableID]*Table)
	return nil
}

// iterData implements IterData for both release kinds and the combined
// dataset's constituents.
func iterData(r interface {
	GetAvailableIDs() ([]string, error)
	GetDataForID(string, DataOptions) (*Table, error)
}, opts DataOptions) iter.Seq2[*Table, error] {
	return func(yield func(*Table, error) bool) {
		ids, err := r.GetAvailableIDs()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, id := range ids {
			table, err := r.GetDataForID(id, opts)
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
// PhotometricRelease
// -----------------------------------------------------------------------------

// PhotometricRelease extends the spectroscopic surface with bandpass
// metadata and filter registration.
type PhotometricRelease struct {
	SpectroscopicRelease

	bands      []string
	zeroPoints []float64
	registry   FilterRegistry
}

// NewPhotometricRelease creates the access surface for one photometric data
// release. bands and zeroPoints run in parallel and use fully qualified band
// names ("csp_dr3_B" style).
func NewPhotometricRelease(meta ReleaseMeta, parser Parser, resources []Resource, bands []string, zeroPoints []float64, opts ...Option) (*PhotometricRelease, error) {
	if len(bands) != len(zeroPoints) {
		return nil, fmt.Errorf("snquery: %d band names with %d zero points", len(bands), len(zeroPoints))
	}
	meta.DataType = Photometric
	base, err := NewSpectroscopicRelease(meta, parser, resources, opts...)
	if err != nil {
		return nil, err
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	return &PhotometricRelease{
		SpectroscopicRelease: *base,
		bands:                slices.Clone(bands),
		zeroPoints:           slices.Clone(zeroPoints),
		registry:             cfg.registry,
	}, nil
}

// BandNames returns the release's fully qualified band names.
func (r *PhotometricRelease) BandNames() []string {
	return slices.Clone(r.bands)
}

// ZeroPoint returns the zero point of each band, in BandNames order.
func (r *PhotometricRelease) ZeroPoint() []float64 {
	return slices.Clone(r.zeroPoints)
}

// ZeroPointForBand returns the zero point of one band by its fully qualified
// name.
func (r *PhotometricRelease) ZeroPointForBand(band string) (float64, error) {
	i := slices.Index(r.bands, band)
	if i < 0 {
		return 0, fmt.Errorf("snquery: %s: unknown band %q", r.meta.Key(), band)
	}
	return r.zeroPoints[i], nil
}

// RegisterFilters registers each band's transmission curve with the fitting
// library's band registry. A band that is already registered is skipped
// unless force is set.
func (r *PhotometricRelease) RegisterFilters(force bool) error {
	dir, err := r.requireData()
	if err != nil {
		return err
	}
	provider, ok := r.parser.(BandProvider)
	if !ok {
		return fmt.Errorf("snquery: %s: release ships no transmission curves: %w", r.meta.Key(), ErrObservedDataType)
	}

	bands, err := provider.Bandpasses(dir)
	if err != nil {
		return fmt.Errorf("snquery: %s: read bandpasses: %w", r.meta.Key(), err)
	}
	for _, band := range bands {
		if !force && r.registry.Registered(band.Name) {
			continue
		}
		if err := r.registry.Register(band, force); err != nil {
			return fmt.Errorf("snquery: %s: register %q: %w", r.meta.Key(), band.Name, err)
		}
	}
	return nil
}

// IterData yields each object's table in GetAvailableIDs order.
func (r *PhotometricRelease) IterData(opts DataOptions) iter.Seq2[*Table, error] {
	return iterData(r, opts)
}
