package snquery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sndata/snquery/internal/fetch"
)

// -----------------------------------------------------------------------------
// Filesystem cache store
// -----------------------------------------------------------------------------

// FSStore implements CacheStore on the local filesystem. Each release lives
// under root in a directory derived from the lowercased survey abbreviation
// and release name, so the same layout is produced on every machine.
type FSStore struct {
	root   string
	client *fetch.Client
}

// NewFSStore creates a filesystem-backed cache store rooted at the given
// directory, creating it when absent.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("snquery: empty store root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("snquery: create store root: %w", err)
	}
	return &FSStore{root: root, client: fetch.NewClient()}, nil
}

// WithFetchClient replaces the download client, primarily to route s3 URLs
// through a configured mirror or to stub transport in tests.
func (s *FSStore) WithFetchClient(c *fetch.Client) *FSStore {
	s.client = c
	return s
}

// Root returns the store's root directory.
func (s *FSStore) Root() string {
	return s.root
}

// Path resolves the cache directory of a release. The directory may not
// exist yet.
func (s *FSStore) Path(survey, release string) string {
	return filepath.Join(s.root, normalizeName(survey), normalizeName(release))
}

// Exists reports whether the release has a cache directory on disk.
func (s *FSStore) Exists(survey, release string) (bool, error) {
	info, err := os.Stat(s.Path(survey, release))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Delete removes the release's cache directory. Deleting an absent release
// is not an error.
func (s *FSStore) Delete(survey, release string) error {
	return os.RemoveAll(s.Path(survey, release))
}

// Download fetches resources into the release's cache directory. A file that
// already exists locally is skipped unless opts.Force is set. Per-resource
// network failures are collected as warnings; only local filesystem failures
// abort the batch. Fetched files are recorded in a JSONL manifest beside the
// data for provenance.
func (s *FSStore) Download(ctx context.Context, survey, release string, resources []Resource, opts DownloadOptions) ([]DownloadWarning, error) {
	dir := s.Path(survey, release)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snquery: create release dir: %w", err)
	}

	jobs := make([]fetch.Job, len(resources))
	for i, res := range resources {
		jobs[i] = fetch.Job{
			URL:     res.URL,
			Dest:    filepath.Join(dir, filepath.FromSlash(res.Path)),
			Archive: res.Archive,
		}
		if res.Unpacked != "" {
			jobs[i].Skip = filepath.Join(dir, filepath.FromSlash(res.Unpacked))
		}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultDownloadTimeout
	}
	entries, fetchWarnings, err := s.client.Do(ctx, jobs, opts.Force, timeout)
	if err != nil {
		return nil, fmt.Errorf("snquery: download %s %s: %w", survey, release, err)
	}

	if len(entries) > 0 {
		if err := fetch.AppendManifest(filepath.Join(dir, fetch.ManifestName), entries); err != nil {
			return nil, fmt.Errorf("snquery: write manifest: %w", err)
		}
	}

	warnings := make([]DownloadWarning, len(fetchWarnings))
	for i, w := range fetchWarnings {
		warnings[i] = DownloadWarning{URL: w.URL, Err: w.Err}
	}
	return warnings, nil
}
