// Package snquery provides uniform access to heterogeneous supernova survey
// data releases: discovery of downloaded data, retrieval of per-object
// observation tables, caching of published reference tables, and cross-survey
// identity joining.
//
// Snquery focuses on access structure: every survey-specific parser is
// exposed through the same release surface, and releases from different
// surveys can be composed into a CombinedDataset whose identifiers may be
// joined when they name the same physical object. It does not implement
// light-curve fitting or background processing.
package snquery

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// DataType distinguishes the two kinds of published release.
type DataType string

// Supported release kinds.
const (
	Photometric   DataType = "photometric"
	Spectroscopic DataType = "spectroscopic"
)

// Metadata holds scalar values attached to a table as a side-map rather than
// as columns (position, redshift, classification, and similar).
type Metadata map[string]any

// Well-known metadata keys shared across all survey parsers.
const (
	MetaObjID       = "obj_id"
	MetaRA          = "ra"
	MetaDec         = "dec"
	MetaRedshift    = "z"
	MetaRedshiftErr = "z_err"
)

// ReleaseMeta describes one (survey, data-release) pair. All fields are fixed
// at construction and never mutated afterwards.
type ReleaseMeta struct {
	// SurveyName is the survey's full name (e.g., "Carnegie Supernova Project").
	SurveyName string

	// SurveyAbbrev is the survey's short name (e.g., "CSP").
	SurveyAbbrev string

	// Release names the data release within the survey (e.g., "DR3").
	Release string

	// SurveyURL points at the release's landing page.
	SurveyURL string

	// DataType records whether the release is photometric or spectroscopic.
	DataType DataType

	// Publications lists the papers describing the release.
	Publications []string

	// ADSURL points at the primary publication's ADS entry.
	ADSURL string
}

// Key returns the canonical "ABBREV:Release" identifier for the release.
func (m ReleaseMeta) Key() string {
	return m.SurveyAbbrev + ":" + m.Release
}

// RawID fully qualifies one object within one release. A RawID with empty
// Release and Survey is "bare" and names an object by string alone; bare ids
// are only meaningful to a CombinedDataset, which resolves them against its
// constituents.
type RawID struct {
	ObjID   string
	Release string
	Survey  string
}

// Bare wraps a plain object-id string as an unqualified RawID.
func Bare(objID string) RawID {
	return RawID{ObjID: objID}
}

// IsBare reports whether the id carries no survey/release qualification.
func (id RawID) IsBare() bool {
	return id.Release == "" && id.Survey == ""
}

func (id RawID) String() string {
	if id.IsBare() {
		return id.ObjID
	}
	return fmt.Sprintf("(%s, %s, %s)", id.ObjID, id.Release, id.Survey)
}

// less orders RawIDs by object id, then release, then survey, matching the
// tuple ordering of the identifier literal form.
func (id RawID) less(other RawID) bool {
	if id.ObjID != other.ObjID {
		return id.ObjID < other.ObjID
	}
	if id.Release != other.Release {
		return id.Release < other.Release
	}
	return id.Survey < other.Survey
}

// -----------------------------------------------------------------------------
// Table identifiers
// -----------------------------------------------------------------------------

// TableID identifies a published reference table. Externally numbered tables
// (Vizier-style "table3.dat") carry integer ids; survey-defined summary
// tables carry names. The two id spaces are not comparable, so sorted
// enumerations place numbered ids first (ascending) followed by named ids
// (lexicographic).
type TableID struct {
	name     string
	number   int
	numbered bool
}

// NumberedTable returns the id of an externally numbered table.
func NumberedTable(n int) TableID {
	return TableID{number: n, numbered: true}
}

// NamedTable returns the id of a survey-defined summary table.
func NamedTable(name string) TableID {
	return TableID{name: name}
}

// Numbered reports whether the id is an integer table number.
func (id TableID) Numbered() bool { return id.numbered }

// Number returns the table number for numbered ids and zero otherwise.
func (id TableID) Number() int { return id.number }

// Name returns the table name for named ids and the empty string otherwise.
func (id TableID) Name() string { return id.name }

func (id TableID) String() string {
	if id.numbered {
		return strconv.Itoa(id.number)
	}
	return id.name
}

// SortTableIDs orders ids in place: numbered first ascending, then named
// lexicographic.
func SortTableIDs(ids []TableID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.numbered != b.numbered {
			return a.numbered
		}
		if a.numbered {
			return a.number < b.number
		}
		return a.name < b.name
	})
}

// -----------------------------------------------------------------------------
// Remote resources
// -----------------------------------------------------------------------------

// Resource is one remote file or archive belonging to a release.
//
// URLs may use the http, https, or s3 schemes; s3 URLs are fetched through
// the configured mirror client.
type Resource struct {
	// URL locates the remote file.
	URL string

	// Path is the destination relative to the release's cache directory.
	// For archives it is the directory the archive unpacks into.
	Path string

	// Archive marks the resource as a gzip tarball to be unpacked rather
	// than stored as a file.
	Archive bool

	// Unpacked is the path, relative to the release's cache directory,
	// that exists once the resource is in place. It decides whether a
	// repeat download can skip the resource and defaults to Path. Archives
	// that unpack into a shared directory must set it to a path the
	// archive itself creates.
	Unpacked string
}

// DownloadOptions configures DownloadModuleData.
type DownloadOptions struct {
	// Force re-downloads files that are already present locally.
	Force bool

	// Timeout bounds each individual file or archive request.
	// Zero means DefaultDownloadTimeout.
	Timeout time.Duration
}

// DefaultDownloadTimeout bounds a single file request when no timeout is set.
const DefaultDownloadTimeout = 15 * time.Second

// DownloadWarning records a remote resource that could not be retrieved
// during a multi-file download. A single unreachable mirror does not stop
// retrieval of the remaining files; the failure is reported as a warning
// instead.
type DownloadWarning struct {
	URL string
	Err error
}

func (w DownloadWarning) String() string {
	return fmt.Sprintf("could not fetch %s: %v", w.URL, w.Err)
}

// -----------------------------------------------------------------------------
// Data retrieval options
// -----------------------------------------------------------------------------

// DataOptions configures per-object data retrieval and iteration.
//
// The zero value requests the standardized output schema: times in Julian
// Date, survey-qualified band names, and flux columns suitable for
// light-curve fitting consumers.
type DataOptions struct {
	// Raw returns columns and units exactly as parsed from the survey's
	// files instead of the standardized schema.
	Raw bool

	// Filter, when non-nil, drops iterated records for which it returns
	// false. Every record is fully loaded from file before the predicate
	// runs; filtering is post-hoc and never reduces I/O. Ignored by
	// single-object retrieval.
	Filter func(*Table) bool
}

// -----------------------------------------------------------------------------
// Parser interface
// -----------------------------------------------------------------------------

// Parser supplies the four survey-specific primitives a release wraps. One
// parser exists per (survey, release) pair; everything else (caching,
// filtering, error translation, iteration) is supplied uniformly by the
// release surface.
//
// All primitives read from dir, the release's local cache directory, which
// the caller guarantees exists. Primitives never enumerate absent data as
// empty: the release surface fails fast before calling them.
type Parser interface {
	// AvailableIDs enumerates the object identifiers present in dir.
	// Order and duplicates are the caller's concern.
	AvailableIDs(dir string) ([]string, error)

	// ObjectData loads one object's observation table. When format is
	// true the table follows the standardized schema; otherwise columns
	// and units are survey-native.
	ObjectData(dir, objID string, format bool) (*Table, error)

	// AvailableTables enumerates the published reference tables in dir.
	AvailableTables(dir string) ([]TableID, error)

	// LoadTable reads one published reference table from dir.
	LoadTable(dir string, id TableID) (*Table, error)
}

// Bandpass is one photometric filter's transmission curve, sampled on a
// wavelength grid in Angstroms.
type Bandpass struct {
	Name         string
	Wavelength   []float64
	Transmission []float64
}

// BandProvider is the optional capability implemented by photometric parsers
// that ship filter transmission curves alongside their data.
type BandProvider interface {
	Bandpasses(dir string) ([]Bandpass, error)
}

// -----------------------------------------------------------------------------
// Collaborator contracts
// -----------------------------------------------------------------------------

// CacheStore is the per-release local cache a release delegates to for
// existence checks, path resolution, deletion, and downloads. The core never
// interprets raw bytes itself.
type CacheStore interface {
	// Exists reports whether the release has any data on disk.
	Exists(survey, release string) (bool, error)

	// Path resolves the release's cache directory. The directory may not
	// exist yet.
	Path(survey, release string) string

	// Delete removes all cached data for the release. Deleting an absent
	// release is not an error.
	Delete(survey, release string) error

	// Download fetches the given resources into the release directory.
	// A file already present is skipped unless opts.Force is set, so the
	// call is safe to repeat in automation. Per-resource network failures
	// are returned as warnings; the error covers local failures only.
	Download(ctx context.Context, survey, release string, resources []Resource, opts DownloadOptions) ([]DownloadWarning, error)
}

// FilterRegistry is the narrow port onto the external fitting library's
// process-wide band registry. The registry is not assumed resettable; tests
// inject their own implementation.
type FilterRegistry interface {
	// Registered reports whether a band name is already registered.
	Registered(name string) bool

	// Register adds a bandpass. Re-registering an existing band is an
	// error unless force is set.
	Register(band Bandpass, force bool) error
}

// -----------------------------------------------------------------------------
// Release interface
// -----------------------------------------------------------------------------

// DataRelease is the uniform operation surface shared by spectroscopic and
// photometric releases. CombinedDataset composes values of this type.
type DataRelease interface {
	// Meta returns the release's immutable descriptive metadata.
	Meta() ReleaseMeta

	// GetAvailableIDs returns the sorted, duplicate-free object ids of
	// the release. It fails with ErrNoDownloadedData when no local data
	// is present.
	GetAvailableIDs() ([]string, error)

	// GetDataForID returns one object's observation table. It fails with
	// ErrInvalidObjID when the id is not in GetAvailableIDs.
	GetDataForID(objID string, opts DataOptions) (*Table, error)

	// IterData yields every object's table in GetAvailableIDs order.
	// The sequence is finite and restartable.
	IterData(opts DataOptions) iter.Seq2[*Table, error]

	// GetAvailableTables returns the ids of the reference tables
	// published alongside the release, numbered tables first.
	GetAvailableTables() ([]TableID, error)

	// LoadTable returns a reference table by id. It fails with
	// ErrInvalidTableID when the id is not in GetAvailableTables.
	LoadTable(id TableID) (*Table, error)

	// DataIsAvailable reports whether the release has local data.
	DataIsAvailable() bool

	// DownloadModuleData fetches the release's remote resources.
	DownloadModuleData(ctx context.Context, opts DownloadOptions) ([]DownloadWarning, error)

	// DeleteModuleData removes the release's local data and resets the
	// reference-table cache.
	DeleteModuleData() error
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNoDownloadedData indicates a release has no data in the local
	// cache store. Raised eagerly rather than enumerating an empty set,
	// since absent data and genuinely zero objects must not be confused.
	ErrNoDownloadedData = errNoDownloadedData{}

	// ErrInvalidObjID indicates an object id unknown to the release it
	// was requested from.
	ErrInvalidObjID = errInvalidObjID{}

	// ErrInvalidTableID indicates a reference-table id unknown to the
	// release.
	ErrInvalidTableID = errInvalidTableID{}

	// ErrAmbiguousID indicates a bare identifier that resolves to raw
	// identifiers in more than one constituent of a combined dataset.
	ErrAmbiguousID = errAmbiguousID{}

	// ErrMetadataConflict indicates a joined group whose members disagree
	// on a scalar metadata value. Conflicts are surfaced, never silently
	// resolved.
	ErrMetadataConflict = errMetadataConflict{}

	// ErrObservedDataType indicates an operation that is not defined for
	// the kind of data in the release, such as band access on a
	// spectroscopic release.
	ErrObservedDataType = errObservedDataType{}
)

type errNoDownloadedData struct{}

func (errNoDownloadedData) Error() string { return "no data downloaded for this release" }

type errInvalidObjID struct{}

func (errInvalidObjID) Error() string { return "object id not available" }

type errInvalidTableID struct{}

func (errInvalidTableID) Error() string { return "no table matching the given id" }

type errAmbiguousID struct{}

func (errAmbiguousID) Error() string { return "object id matches more than one release" }

type errMetadataConflict struct{}

func (errMetadataConflict) Error() string { return "joined members disagree on metadata" }

type errObservedDataType struct{}

func (errObservedDataType) Error() string {
	return "action not valid for the type of data in this release"
}

// sortedUniqueIDs sorts ids and removes duplicates in place.
func sortedUniqueIDs(ids []string) []string {
	slices.Sort(ids)
	return slices.Compact(ids)
}

// normalizeName lowercases a survey or release name and replaces spaces, for
// use as a cache directory component.
func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
