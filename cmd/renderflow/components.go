package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/artifact"
	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/generate"
	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/llm"
	"github.com/BaSui01/renderflow/refine"
	"github.com/BaSui01/renderflow/workspace"
)

// recorder 汇总各组件需要的指标接口，*metrics.Collector 实现它
type recorder interface {
	generate.Recorder
	refine.Recorder
	workspace.Recorder
}

// components 是 serve 与本地 generate/refine 共用的运行时组件
type components struct {
	workspace workspace.Store
	artifacts *artifact.Store
	provider  *imaging.FalClient
	chat      *llm.ChatClient
	pipeline  *generate.Pipeline
	refiner   *refine.Service
}

// newComponents 按配置装配工作区存储、产物存储、图像服务和提示词优化。
// rec 可以为 nil。
func newComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, rec recorder) (*components, error) {
	store, err := workspace.Open(ctx, cfg.Workspace, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace store: %w", err)
	}

	var storeOpts []artifact.StoreOption
	if s3cfg := s3Config(cfg.Output.S3); s3cfg.Enabled() {
		mirror, err := artifact.NewS3Mirror(ctx, s3cfg, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to init s3 mirror: %w", err)
		}
		storeOpts = append(storeOpts, artifact.WithMirror(mirror))
		logger.Info("artifact mirror enabled", zap.String("bucket", s3cfg.Bucket))
	}
	artifacts := artifact.NewStore(cfg.Output.Dir, logger, storeOpts...)

	provider := imaging.NewFalClient(imaging.FalConfig{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.Timeout,
	}, nil, logger)
	if !provider.Configured() {
		logger.Warn("fal.ai API key not configured, generation requests will fail")
	}

	chat := llm.NewChatClient(llm.ChatConfig{
		APIKey:  cfg.Chat.APIKey,
		BaseURL: cfg.Chat.BaseURL,
		Timeout: cfg.Chat.Timeout,
	}, nil, logger)

	c := &components{
		workspace: store,
		artifacts: artifacts,
		provider:  provider,
		chat:      chat,
	}
	refineCfg := refine.Config{
		DefaultModel:               cfg.Chat.DefaultModel,
		DefaultMaxCompletionTokens: cfg.Chat.DefaultMaxCompletionTokens,
	}
	if rec != nil {
		c.workspace = workspace.Instrument(store, cfg.Workspace.Driver, rec)
		c.pipeline = generate.NewPipeline(provider, artifacts, logger, generate.WithRecorder(rec))
		c.refiner = refine.NewService(chat, refineCfg, rec, logger)
	} else {
		c.pipeline = generate.NewPipeline(provider, artifacts, logger)
		c.refiner = refine.NewService(chat, refineCfg, nil, logger)
	}
	return c, nil
}

// Close 关闭工作区存储
func (c *components) Close() error {
	return c.workspace.Close()
}

func s3Config(c config.S3Config) artifact.S3Config {
	return artifact.S3Config{
		Bucket:       c.Bucket,
		Prefix:       c.Prefix,
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		UsePathStyle: c.UsePathStyle,
	}
}
