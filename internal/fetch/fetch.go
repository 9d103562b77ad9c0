// Package fetch downloads remote survey files and archives into a local
// directory. It implements the partial-failure policy of the data access
// layer: one unreachable resource is reported as a warning while the rest of
// the batch continues, since retrying a whole batch is cheap and expected in
// automated pipelines.
package fetch

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ManifestName is the provenance manifest file kept beside downloaded data.
const ManifestName = ".manifest.jsonl"

// Job is one remote file or archive to fetch.
type Job struct {
	// URL locates the remote file. Supported schemes: http, https, s3.
	URL string

	// Dest is the absolute local destination; for archives, the directory
	// the archive unpacks into.
	Dest string

	// Archive marks the payload as a gzip tarball to unpack under Dest.
	Archive bool

	// Skip, when non-empty, is the local path whose existence marks the
	// job as already done. It defaults to Dest. Archives unpacking into a
	// shared directory need a distinct marker, since Dest may exist before
	// anything was fetched.
	Skip string
}

// Warning records a resource that could not be retrieved. Warnings are
// reported, not returned as failures.
type Warning struct {
	URL string
	Err error
}

// Entry records one completed fetch for the provenance manifest.
type Entry struct {
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	Bytes     int64     `json:"bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BlobOpener opens objects addressed by s3 URLs. The s3 mirror adapter
// implements it; tests may stub it.
type BlobOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Client fetches jobs over HTTP and, when configured, S3.
type Client struct {
	// HTTP performs http and https requests. Per-job timeouts are applied
	// through the request context, not the client.
	HTTP *http.Client

	// S3 opens s3 URLs. When nil, s3 jobs are reported as warnings.
	S3 BlobOpener
}

// NewClient creates a client with a default HTTP transport and no S3 mirror.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{}}
}

// WithS3 routes s3 URLs through the given opener.
func (c *Client) WithS3(opener BlobOpener) *Client {
	c.S3 = opener
	return c
}

// Do fetches every job in order. A job whose destination already exists is
// skipped unless force is set, making repeated calls cheap. Network failures
// become warnings; local filesystem failures abort and are returned as the
// error.
func (c *Client) Do(ctx context.Context, jobs []Job, force bool, timeout time.Duration) ([]Entry, []Warning, error) {
	var entries []Entry
	var warnings []Warning

	for _, job := range jobs {
		if !force && destExists(job) {
			continue
		}

		entry, err := c.fetchOne(ctx, job, timeout)
		if err != nil {
			var local *localError
			if errors.As(err, &local) {
				return entries, warnings, local.err
			}
			warnings = append(warnings, Warning{URL: job.URL, Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, warnings, nil
}

// localError marks a failure of the local filesystem rather than the remote
// resource. Local failures abort the batch.
type localError struct {
	err error
}

func (e *localError) Error() string { return e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

func destExists(job Job) bool {
	marker := job.Skip
	if marker == "" {
		marker = job.Dest
	}
	_, err := os.Stat(marker)
	return err == nil
}

func (c *Client) fetchOne(ctx context.Context, job Job, timeout time.Duration) (Entry, error) {
	body, err := c.open(ctx, job.URL, timeout)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = body.Close() }()

	var n int64
	if job.Archive {
		n, err = untar(body, job.Dest)
	} else {
		n, err = writeFile(body, job.Dest)
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{URL: job.URL, Path: job.Dest, Bytes: n, FetchedAt: time.Now().UTC()}, nil
}

func (c *Client) open(ctx context.Context, rawURL string, timeout time.Duration) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		reqCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			if cancel != nil {
				cancel()
			}
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil

	case "s3":
		if c.S3 == nil {
			return nil, errors.New("no s3 mirror configured")
		}
		key := strings.TrimPrefix(u.Path, "/")
		return c.S3.Open(ctx, u.Host, key)

	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

// cancelReadCloser releases the request's timeout context when the body is
// closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if c.cancel != nil {
		c.cancel()
	}
	return err
}

// writeFile streams the body to dest, creating parent directories.
func writeFile(r io.Reader, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, &localError{err}
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, &localError{err}
	}
	n, err := io.Copy(f, r)
	closeErr := f.Close()
	if err != nil {
		// A short read is a remote failure; drop the partial file so a
		// retry is not skipped as already-present.
		_ = os.Remove(dest)
		return 0, err
	}
	if closeErr != nil {
		return 0, &localError{closeErr}
	}
	return n, nil
}

// untar unpacks a gzip tarball under destDir, rejecting entries that would
// escape it.
func untar(r io.Reader, destDir string) (int64, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer func() { _ = gz.Close() }()

	var total int64
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		dest, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return total, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return total, &localError{err}
			}
		case tar.TypeReg:
			n, err := writeFile(tr, dest)
			if err != nil {
				return total, err
			}
			total += n
		default:
			// Links and special files are not part of any supported
			// release archive.
		}
	}
}

// safeJoin joins name under root and rejects path traversal.
func safeJoin(root, name string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(name))
	if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return dest, nil
}
