package lark

import (
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string        // empty means Feishu (open.feishu.cn)
	Timeout   time.Duration // per request
	IDType    string        // open_id, union_id or user_id; the id space actors live in
}

// SDKClient wraps the Lark SDK client
type SDKClient struct {
	client *lark.Client
	idType string
	logger *zap.Logger
}

// NewSDKClient creates a new Lark SDK client
func NewSDKClient(cfg Config, logger *zap.Logger) *SDKClient {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.Timeout))
	}

	idType := cfg.IDType
	if idType == "" {
		idType = "open_id"
	}
	logger.Info("Lark client configured", zap.String("app_id", cfg.AppID), zap.String("id_type", idType))

	return &SDKClient{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		idType: idType,
		logger: logger,
	}
}

// GetClient returns the underlying Lark SDK client
func (c *SDKClient) GetClient() *lark.Client {
	return c.client
}

// IDType is the user id type every request uses
func (c *SDKClient) IDType() string {
	return c.idType
}
