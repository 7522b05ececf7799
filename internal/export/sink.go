package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/roach88/ledgerattach/internal/schema"
	"github.com/roach88/ledgerattach/internal/store"
)

// Sink is a destination for a dump.
type Sink interface {
	Open(ctx context.Context) (Writer, error)
	String() string
}

// Writer receives dump bytes. Nothing is visible at the destination until
// Commit returns nil; Abort discards everything written.
type Writer interface {
	io.Writer
	Commit() error
	Abort()
}

// NewSink resolves a destination. gs://bucket/object writes to Cloud
// Storage; anything else is a local file path.
func NewSink(dest string) (Sink, error) {
	if dest == "" {
		return nil, fmt.Errorf("export: empty destination")
	}
	if strings.HasPrefix(dest, "gs://") {
		bucket, object, err := ParseGCSURI(dest)
		if err != nil {
			return nil, err
		}
		return &GCSSink{Bucket: bucket, Object: object}, nil
	}
	return &FileSink{Path: dest}, nil
}

// ToSink dumps the side-schema into sink.
func ToSink(ctx context.Context, s *store.Store, d schema.Dialect, sink Sink) (*Summary, error) {
	w, err := sink.Open(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := Write(ctx, s, d, w)
	if err != nil {
		w.Abort()
		return nil, err
	}
	if err := w.Commit(); err != nil {
		return nil, err
	}
	return sum, nil
}

// FileSink writes through a temp file in the target directory that is
// renamed into place on Commit.
type FileSink struct {
	Path string
}

func (f *FileSink) String() string { return f.Path }

func (f *FileSink) Open(context.Context) (Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	return &fileWriter{File: tmp, path: f.Path}, nil
}

type fileWriter struct {
	*os.File
	path string
}

// exportFileMode replaces the owner-only mode os.CreateTemp uses.
const exportFileMode = 0o644

func (w *fileWriter) Commit() error {
	if err := w.File.Chmod(exportFileMode); err != nil {
		w.Abort()
		return fmt.Errorf("chmod %s: %w", w.path, err)
	}
	if err := w.File.Close(); err != nil {
		os.Remove(w.Name())
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	if err := os.Rename(w.Name(), w.path); err != nil {
		os.Remove(w.Name())
		return fmt.Errorf("rename into %s: %w", w.path, err)
	}
	return nil
}

func (w *fileWriter) Abort() {
	w.File.Close()
	os.Remove(w.Name())
}

// GCSSink uploads to a Cloud Storage object.
// It assumes Application Default Credentials are configured.
type GCSSink struct {
	Bucket string
	Object string

	// Client is used when set. Otherwise Open creates one that lives as
	// long as the writer.
	Client *storage.Client
}

func (g *GCSSink) String() string { return "gs://" + g.Bucket + "/" + g.Object }

func (g *GCSSink) Open(ctx context.Context) (Writer, error) {
	client := g.Client
	owned := false
	if client == nil {
		c, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		client, owned = c, true
	}

	// Cancelling the writer's context is the only way to abandon an upload.
	ctx, cancel := context.WithCancel(ctx)
	w := client.Bucket(g.Bucket).Object(g.Object).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	return &gcsWriter{w: w, cancel: cancel, client: client, owned: owned}, nil
}

type gcsWriter struct {
	w      *storage.Writer
	cancel context.CancelFunc
	client *storage.Client
	owned  bool
}

func (g *gcsWriter) Write(p []byte) (int, error) {
	return g.w.Write(p)
}

func (g *gcsWriter) Commit() error {
	defer g.release()
	if err := g.w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (g *gcsWriter) Abort() {
	g.cancel()
	_ = g.w.Close()
	g.release()
}

func (g *gcsWriter) release() {
	g.cancel()
	if g.owned {
		g.client.Close()
	}
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
