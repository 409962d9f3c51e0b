// Package gcs reads archived job history artifacts from a Google Cloud
// Storage bucket. Deployments that ship their history server's done
// directory to a bucket crawl it with this source.
package gcs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// Config captures the parameters required to read from GCS.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Source lists *.jhist objects under a bucket prefix.
type Source struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed source.
func New(client *storage.Client, cfg Config) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Source{client: client, cfg: cfg}, nil
}

// List iterates the prefix and returns artifacts updated at or after
// since, oldest first, with configuration siblings attached. Object
// names are used as artifact paths.
func (s *Source) List(ctx context.Context, since int64) ([]history.Artifact, error) {
	var artifacts []history.Artifact
	confs := make(map[string]string)

	it := s.client.Bucket(s.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: s.cfg.Prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate bucket %s: %w", s.cfg.Bucket, err)
		}
		jobID := history.JobIDFromPath(attrs.Name)
		if jobID == "" {
			continue
		}
		if strings.HasSuffix(attrs.Name, "_conf.xml") {
			confs[jobID] = attrs.Name
			continue
		}
		if !strings.HasSuffix(attrs.Name, ".jhist") {
			continue
		}
		modTime := attrs.Updated.UnixMilli()
		if modTime < since {
			continue
		}
		artifacts = append(artifacts, history.Artifact{
			JobID:   jobID,
			Path:    attrs.Name,
			ModTime: modTime,
		})
	}

	for i := range artifacts {
		artifacts[i].ConfPath = confs[artifacts[i].JobID]
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime < artifacts[j].ModTime
	})
	return artifacts, nil
}

// Fetch downloads one object.
func (s *Source) Fetch(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.client.Bucket(s.cfg.Bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", path, err)
	}
	defer reader.Close() //nolint:errcheck // read path, close error is not actionable

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	return data, nil
}

// Refresh is a no-op: the storage client is stateless HTTP and has no
// handle to re-establish.
func (s *Source) Refresh(context.Context) error { return nil }

// Close closes the storage client.
func (s *Source) Close() error {
	return s.client.Close()
}
