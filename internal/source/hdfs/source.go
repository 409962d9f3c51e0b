// Package hdfs reads job history artifacts from the Hadoop history
// server's done directory on HDFS.
package hdfs

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/colinmarc/hdfs/v2"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// Config captures the parameters for the HDFS source.
type Config struct {
	// Addresses lists the namenode addresses (host:port).
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	// User is the HDFS user the client connects as.
	User string `mapstructure:"user" yaml:"user"`
	// DoneDir is the history server's done directory, e.g.
	// /mr-history/done.
	DoneDir string `mapstructure:"done_dir" yaml:"done_dir"`
}

// Source walks the done directory for *.jhist files. The client handle
// is replaced wholesale on Refresh, which is how the crawl driver
// recovers from stale-connection failures.
type Source struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	client *hdfs.Client
}

// New dials HDFS and returns a Source.
func New(cfg Config, logger *zap.Logger) (*Source, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("hdfs addresses are required")
	}
	if cfg.DoneDir == "" {
		return nil, fmt.Errorf("hdfs done dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{cfg: cfg, logger: logger}
	if err := s.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) getClient() *hdfs.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Refresh dials a fresh client and closes the previous one.
func (s *Source) Refresh(context.Context) error {
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: s.cfg.Addresses,
		User:      s.cfg.User,
	})
	if err != nil {
		return fmt.Errorf("dial hdfs: %w", err)
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()

	if old != nil {
		if closeErr := old.Close(); closeErr != nil {
			s.logger.Warn("close stale hdfs client", zap.Error(closeErr))
		}
	}
	return nil
}

// List walks the done directory and returns artifacts modified at or
// after since, oldest first, with configuration siblings attached.
func (s *Source) List(ctx context.Context, since int64) ([]history.Artifact, error) {
	client := s.getClient()
	if client == nil {
		return nil, fmt.Errorf("hdfs client is not connected")
	}

	var artifacts []history.Artifact
	confs := make(map[string]string)

	err := client.Walk(s.cfg.DoneDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		jobID := history.JobIDFromPath(name)
		if jobID == "" {
			return nil
		}
		if strings.HasSuffix(name, "_conf.xml") {
			confs[jobID] = p
			return nil
		}
		if !strings.HasSuffix(name, ".jhist") {
			return nil
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
		return nil, fmt.Errorf("walk %s: %w", s.cfg.DoneDir, err)
	}

	for i := range artifacts {
		artifacts[i].ConfPath = confs[artifacts[i].JobID]
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime < artifacts[j].ModTime
	})
	return artifacts, nil
}

// Fetch reads one file from HDFS.
func (s *Source) Fetch(_ context.Context, path string) ([]byte, error) {
	client := s.getClient()
	if client == nil {
		return nil, fmt.Errorf("hdfs client is not connected")
	}
	data, err := client.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Close closes the client handle.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
