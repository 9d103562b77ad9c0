package fetch

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// makeTarGz builds a gzip tarball in memory from name -> content pairs.
func makeTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDo_FetchesFileAndRecordsEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "data", "f.dat")
	jobs := []Job{{URL: server.URL + "/f.dat", Dest: dest}}

	entries, warnings, err := NewClient().Do(context.Background(), jobs, false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(entries) != 1 || entries[0].Bytes != int64(len("payload")) {
		t.Fatalf("entries: %+v", entries)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("got %q", got)
	}
}

func TestDo_UnreachableResourceBecomesWarning(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "f.dat")
	jobs := []Job{{URL: server.URL + "/gone.dat", Dest: dest}}

	entries, warnings, err := NewClient().Do(context.Background(), jobs, false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("unexpected entries: %v", entries)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no file should exist for a failed fetch")
	}
}

func TestDo_SkipsExistingDest(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "f.dat")
	if err := os.WriteFile(dest, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	jobs := []Job{{URL: server.URL + "/f.dat", Dest: dest}}
	if _, _, err := NewClient().Do(context.Background(), jobs, false, time.Minute); err != nil {
		t.Fatal(err)
	}
	if hits != 0 {
		t.Error("existing destination should be skipped")
	}

	if _, _, err := NewClient().Do(context.Background(), jobs, true, time.Minute); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Error("force should re-fetch")
	}
}

func TestDo_SkipMarkerOverridesDest(t *testing.T) {
	hits := 0
	payload := makeTarGz(t, map[string]string{"DR3/SN2004ef_snpy.txt": "data"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	// Dest is the (existing) release dir; only the Skip marker decides.
	dir := t.TempDir()
	jobs := []Job{{URL: server.URL + "/a.tgz", Dest: dir, Archive: true, Skip: filepath.Join(dir, "DR3")}}

	for range 2 {
		if _, _, err := NewClient().Do(context.Background(), jobs, false, time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	if hits != 1 {
		t.Fatalf("expected exactly one fetch, got %d", hits)
	}
	if _, err := os.Stat(filepath.Join(dir, "DR3", "SN2004ef_snpy.txt")); err != nil {
		t.Fatalf("archive member missing: %v", err)
	}
}

func TestDo_UnpacksArchive(t *testing.T) {
	payload := makeTarGz(t, map[string]string{
		"tables/ReadMe":     "readme",
		"tables/table2.dat": "row",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	jobs := []Job{{URL: server.URL + "/t.tgz", Dest: dir, Archive: true, Skip: filepath.Join(dir, "tables")}}
	entries, warnings, err := NewClient().Do(context.Background(), jobs, false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: %v", entries)
	}

	got, err := os.ReadFile(filepath.Join(dir, "tables", "table2.dat"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "row" {
		t.Errorf("got %q", got)
	}
}

func TestUntar_RejectsPathTraversal(t *testing.T) {
	payload := makeTarGz(t, map[string]string{"../escape.txt": "bad"})
	_, err := untar(bytes.NewReader(payload), t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("expected traversal rejection, got: %v", err)
	}
}

// stubOpener serves canned s3 objects.
type stubOpener struct {
	objects map[string]string
}

func (s *stubOpener) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	content, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func TestDo_S3SchemeUsesOpener(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "f.dat")
	client := NewClient().WithS3(&stubOpener{objects: map[string]string{
		"mirror-bucket/csp/dr3/f.dat": "mirrored",
	}})

	jobs := []Job{{URL: "s3://mirror-bucket/csp/dr3/f.dat", Dest: dest}}
	_, warnings, err := client.Do(context.Background(), jobs, false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "mirrored" {
		t.Errorf("got %q", got)
	}
}

func TestDo_S3WithoutOpenerWarns(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "f.dat")
	jobs := []Job{{URL: "s3://bucket/key", Dest: dest}}

	_, warnings, err := NewClient().Do(context.Background(), jobs, false, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected warning for unconfigured s3, got %v", warnings)
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestName)

	first := []Entry{{URL: "https://example.com/a", Path: "/x/a", Bytes: 3, FetchedAt: time.Now().UTC()}}
	if err := AppendManifest(path, first); err != nil {
		t.Fatal(err)
	}
	second := []Entry{{URL: "https://example.com/b", Path: "/x/b", Bytes: 5, FetchedAt: time.Now().UTC()}}
	if err := AppendManifest(path, second); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].URL != "https://example.com/a" || entries[1].URL != "https://example.com/b" {
		t.Errorf("entries out of order: %+v", entries)
	}
}

func TestReadManifest_MissingFileIsEmpty(t *testing.T) {
	entries, err := ReadManifest(filepath.Join(t.TempDir(), ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("expected nil, got %v", entries)
	}
}
