// Package local reads job history artifacts from a local directory
// tree. It serves development and tests; production deployments use the
// hdfs or gcs source.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// Config captures the parameters for the local source.
type Config struct {
	// Root is the directory scanned for history files.
	Root string `mapstructure:"root" yaml:"root"`
}

// Source lists *.jhist files under a root directory.
type Source struct {
	root string
}

// New validates the root directory and returns a Source.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.Root)
	}
	return &Source{root: cfg.Root}, nil
}

// List walks the tree and returns history artifacts modified at or
// after since, oldest first. A job's configuration sibling
// (<jobID>_conf.xml) is attached when present.
func (s *Source) List(ctx context.Context, since int64) ([]history.Artifact, error) {
	var artifacts []history.Artifact
	confs := make(map[string]string)

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		jobID := history.JobIDFromPath(p)
		if jobID == "" {
			return nil
		}
		if strings.HasSuffix(p, "_conf.xml") {
			confs[jobID] = p
			return nil
		}
		if !strings.HasSuffix(p, ".jhist") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		modTime := info.ModTime().UnixMilli()
		if modTime < since {
			return nil
		}
		artifacts = append(artifacts, history.Artifact{
			JobID:   jobID,
			Path:    p,
			ModTime: modTime,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}

	for i := range artifacts {
		artifacts[i].ConfPath = confs[artifacts[i].JobID]
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime < artifacts[j].ModTime
	})
	return artifacts, nil
}

// Fetch reads one file.
func (s *Source) Fetch(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Refresh re-checks the root directory.
func (s *Source) Refresh(context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("stat root directory: %w", err)
	}
	return nil
}

// Close satisfies history.Source.
func (s *Source) Close() error { return nil }
