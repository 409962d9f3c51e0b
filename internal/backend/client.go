// Package backend talks to the monitoring service's REST API: watermark
// entity writes and application lifecycle operations.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/history"
	"github.com/clustermon/jobhistory-crawler/internal/lifecycle"
)

// watermarkService is the backend service the low-water mark entity is
// written to.
const watermarkService = "JobProcessTimeStampService"

// Config carries the backend connection settings.
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	BasePath           string
	ReadTimeoutSeconds int
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = "/rest"
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 60
	}
	return c
}

// Client is one dialed backend connection. Connections are cheap and
// short-lived: the reconciler dials per cycle and closes when done.
type Client interface {
	Create(ctx context.Context, entities []history.WatermarkEntity) error
	SubmitOperation(ctx context.Context, op lifecycle.Operation) error
	Close() error
}

// Factory dials backend clients.
type Factory interface {
	Dial(ctx context.Context) (Client, error)
}

// RestFactory builds REST clients from a fixed configuration.
type RestFactory struct {
	cfg    Config
	logger *zap.Logger
}

// NewFactory returns a Factory for the given backend.
func NewFactory(cfg Config, logger *zap.Logger) *RestFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestFactory{cfg: cfg.withDefaults(), logger: logger}
}

// Dial returns a ready client. HTTP needs no handshake, so this never
// blocks; failures surface on the first request.
func (f *RestFactory) Dial(context.Context) (Client, error) {
	if f.cfg.Host == "" {
		return nil, fmt.Errorf("backend host is required")
	}
	return newRestClient(f.cfg, f.logger), nil
}

type restClient struct {
	http   *resty.Client
	logger *zap.Logger
}

func newRestClient(cfg Config, logger *zap.Logger) *restClient {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s:%d%s", cfg.Host, cfg.Port, cfg.BasePath)).
		SetTimeout(time.Duration(cfg.ReadTimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}
	return &restClient{http: client, logger: logger}
}

// Create writes watermark entities to the entity service.
func (c *restClient) Create(ctx context.Context, entities []history.WatermarkEntity) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("serviceName", watermarkService).
		SetBody(entities).
		Post("/entities")
	if err != nil {
		return fmt.Errorf("create entities: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("create entities: backend returned %s", resp.Status())
	}
	c.logger.Debug("created watermark entities", zap.Int("count", len(entities)))
	return nil
}

var operationPaths = map[string]string{
	"INSTALL":      "/apps/install",
	"UNINSTALL":    "/apps/uninstall",
	"START":        "/apps/start",
	"STOP":         "/apps/stop",
	"CHECK_STATUS": "/apps/status",
}

// SubmitOperation posts one lifecycle operation to the admin endpoint.
func (c *restClient) SubmitOperation(ctx context.Context, op lifecycle.Operation) error {
	path, ok := operationPaths[op.Type()]
	if !ok {
		return fmt.Errorf("unknown operation type %q", op.Type())
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(op).
		Post(path)
	if err != nil {
		return fmt.Errorf("submit %s: %w", op.Type(), err)
	}
	if resp.IsError() {
		return fmt.Errorf("submit %s: backend returned %s", op.Type(), resp.Status())
	}
	return nil
}

// Close releases pooled connections.
func (c *restClient) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}
