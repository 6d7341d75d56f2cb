// Package app builds the service graph from a Config. Both binaries use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/certificate-processor/config"
	"github.com/feichai0017/certificate-processor/internal/agent"
	"github.com/feichai0017/certificate-processor/internal/agent/acquire"
	"github.com/feichai0017/certificate-processor/internal/agent/oracle"
	"github.com/feichai0017/certificate-processor/internal/agent/parser"
	"github.com/feichai0017/certificate-processor/internal/service/document"
	"github.com/feichai0017/certificate-processor/internal/service/persistence"
	"github.com/feichai0017/certificate-processor/internal/service/pipeline"
	"github.com/feichai0017/certificate-processor/internal/service/profile"
	"github.com/feichai0017/certificate-processor/internal/service/roadmap"
	"github.com/feichai0017/certificate-processor/pkg/docstore"
	"github.com/feichai0017/certificate-processor/pkg/docstore/mongo"
	"github.com/feichai0017/certificate-processor/pkg/kvstore"
	"github.com/feichai0017/certificate-processor/pkg/kvstore/file"
	"github.com/feichai0017/certificate-processor/pkg/kvstore/redisstore"
	"github.com/feichai0017/certificate-processor/pkg/logger"
	"github.com/feichai0017/certificate-processor/pkg/queue"
	"github.com/feichai0017/certificate-processor/pkg/storage"
)

// App holds everything a binary needs. Documents and Queue are nil when no
// archive bucket is configured.
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Pipeline  *pipeline.Orchestrator
	Gateway   *persistence.Gateway
	Documents *document.DocumentService
	Queue     *queue.AsynqQueue

	closers []func(context.Context) error
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LogConfig) (logger.Logger, error) {
	return logger.NewLogger(
		logger.WithLevel(cfg.Level),
		logger.WithEncoding(cfg.Encoding),
		logger.WithOutputPaths(cfg.OutputPaths),
	)
}

func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}
	if err := a.build(ctx); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	var rdb *redis.Client
	if cfg.Store.Backend == config.StoreBackendRedis || cfg.Archive.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.onClose(func(context.Context) error { return rdb.Close() })
	}

	stores, err := openStores(cfg.Store, rdb)
	if err != nil {
		return err
	}

	var mirror docstore.Store = docstore.Nop{}
	if cfg.Mongo.URI != "" {
		m, err := mongo.Connect(ctx, mongo.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Mongo.Timeout,
		})
		if err != nil {
			// the mirror is best-effort, so a missing mongo never blocks startup
			log.Warn("Document store unavailable, mirroring disabled", logger.Error(err))
		} else {
			mirror = m
		}
	}

	a.Gateway = persistence.NewGateway(stores, mirror, log)
	a.onClose(a.Gateway.Close)

	extractor, err := agent.NewProcessorFactory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create text extractor: %w", err)
	}
	a.onClose(func(context.Context) error { return extractor.Close() })

	o, err := oracle.New(ctx, cfg.Oracle, log)
	if err != nil {
		return fmt.Errorf("failed to create oracle: %w", err)
	}
	a.onClose(func(context.Context) error { return o.Close() })

	acquirer := acquire.NewAcquirer(acquire.Config{
		TempDir:      cfg.Acquire.TempDir,
		FetchTimeout: cfg.Acquire.FetchTimeout,
		MaxFileSize:  cfg.Acquire.MaxFileSize,
		MaxPages:     cfg.OCR.MaxPages,
	}, &http.Client{}, log)

	a.Pipeline = pipeline.NewOrchestrator(pipeline.Deps{
		Acquirer:  acquirer,
		Extractor: extractor,
		Parser:    parser.NewCertificateParser(o, log),
		Skills:    parser.NewSkillExtractor(o, log),
		Merger:    profile.NewMerger(a.Gateway, log),
		Roadmaps:  roadmap.NewGenerator(),
		Store:     a.Gateway,
	}, log)

	if !cfg.Archive.Enabled() {
		log.Info("No archive bucket configured, asynchronous submission disabled")
		return nil
	}

	archive, err := storage.New(ctx, cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("failed to create archive storage: %w", err)
	}

	a.Queue = queue.NewAsynqQueue(queue.Config{
		RedisAddr:     cfg.Redis.Addr,
		RedisDB:       cfg.Redis.DB,
		RedisPassword: cfg.Redis.Password,
		TaskTimeout:   cfg.OCR.Timeout + 2*cfg.Oracle.Timeout + cfg.Acquire.FetchTimeout,
	}, rdb)
	a.onClose(func(context.Context) error { return a.Queue.Close() })

	svcCfg := document.DefaultServiceConfig()
	svcCfg.MaxFileSize = cfg.Acquire.MaxFileSize
	svcCfg.RetentionPeriod = cfg.Archive.Retention
	a.Documents = document.NewService(a.Pipeline, a.Queue, archive, log, svcCfg)

	return nil
}

// DocumentProcessor returns the async service as an interface value that is
// nil when async submission is disabled.
func (a *App) DocumentProcessor() document.DocumentProcessor {
	if a.Documents == nil {
		return nil
	}
	return a.Documents
}

func openStores(cfg config.StoreConfig, rdb *redis.Client) (persistence.Stores, error) {
	open := func(ns string) (kvstore.Store, error) {
		if cfg.Backend == config.StoreBackendRedis {
			return redisstore.New(rdb, cfg.KeyPrefix+":"+ns), nil
		}
		return file.New(filepath.Join(cfg.Dir, ns+".json"))
	}

	var (
		s   persistence.Stores
		err error
	)
	if s.DetailedData, err = open(persistence.NamespaceDetailedData); err != nil {
		return s, fmt.Errorf("failed to open detailed data store: %w", err)
	}
	if s.Skills, err = open(persistence.NamespaceSkills); err != nil {
		return s, fmt.Errorf("failed to open skill store: %w", err)
	}
	if s.Roadmaps, err = open(persistence.NamespaceRoadmaps); err != nil {
		return s, fmt.Errorf("failed to open roadmap store: %w", err)
	}
	return s, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
