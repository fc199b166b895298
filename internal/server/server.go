package server

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/kbase/kbsolrutil/internal/config"
	"github.com/kbase/kbsolrutil/pkg/database"
	"github.com/kbase/kbsolrutil/pkg/indexer"
	"github.com/kbase/kbsolrutil/pkg/kbsolrutil"
	"github.com/kbase/kbsolrutil/pkg/listing"
	"github.com/kbase/kbsolrutil/pkg/report"
	"github.com/kbase/kbsolrutil/pkg/search"
	"github.com/kbase/kbsolrutil/pkg/search/adapters/bleve"
	"github.com/kbase/kbsolrutil/pkg/search/adapters/solr"
	"github.com/kbase/kbsolrutil/pkg/search/cache"
	"github.com/kbase/kbsolrutil/pkg/source"
	"github.com/kbase/kbsolrutil/pkg/source/adapters/local"
	"github.com/kbase/kbsolrutil/pkg/source/adapters/s3"
)

// Server holds the components built from a configuration.
type Server struct {
	// Engine is the search engine, wrapped in the query cache when one is
	// configured.
	Engine search.Engine

	// Registry holds the configured cores.
	Registry *search.Registry

	// ObjectStore is where source objects are read from.
	ObjectStore source.ObjectStore

	// ReportSink receives run and listing reports. It is nil when no
	// report block is configured.
	ReportSink report.Sink

	// DB is the report database, if configured.
	DB *gorm.DB

	// Service exposes the public operations.
	Service *kbsolrutil.Service

	Logger hclog.Logger

	closers []func() error
}

// New builds every component named by cfg. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, logger hclog.Logger) (_ *Server, err error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{Logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.Registry, err = search.NewRegistry(cfg.RegisteredCores()...); err != nil {
		return nil, fmt.Errorf("error building core registry: %w", err)
	}
	if err = s.initEngine(ctx, cfg); err != nil {
		return nil, err
	}
	if err = s.initObjectStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err = s.initReportSink(ctx, cfg); err != nil {
		return nil, err
	}

	submitCfg, err := cfg.SubmitConfig()
	if err != nil {
		return nil, err
	}
	dedupCfg, err := cfg.DedupConfig()
	if err != nil {
		return nil, err
	}

	orchestrator, err := indexer.NewOrchestrator(
		indexer.WithLogger(logger),
		indexer.WithObjectStore(s.ObjectStore),
		indexer.WithEngine(s.Engine),
		indexer.WithRegistry(s.Registry),
		indexer.WithReportSink(s.ReportSink),
		indexer.WithMaxParallelFetches(cfg.Indexer.MaxParallelFetches),
		indexer.WithFetchTimeout(cfg.FetchTimeout()),
		indexer.WithReportTimeout(cfg.ReportTimeout()),
		indexer.WithSubmitConfig(submitCfg),
		indexer.WithDedupConfig(dedupCfg),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating orchestrator: %w", err)
	}

	listingCfg := *cfg.Listing
	listingCfg.ReportTimeout = cfg.ReportTimeout()
	reader := listing.NewReader(s.Engine, s.Registry, s.ReportSink, listingCfg, logger)

	s.Service = kbsolrutil.NewService(orchestrator, reader, logger)
	return s, nil
}

func (s *Server) initEngine(ctx context.Context, cfg *config.Config) error {
	var engine search.Engine
	switch cfg.Search.Provider {
	case "bleve":
		a, err := bleve.NewAdapter(cfg.Search.Bleve, s.Registry.Cores(), s.Logger)
		if err != nil {
			return fmt.Errorf("error initializing bleve: %w", err)
		}
		engine = a
	case "solr":
		a, err := solr.NewAdapter(cfg.Search.Solr, s.Logger)
		if err != nil {
			return fmt.Errorf("error initializing solr: %w", err)
		}
		engine = a
	default:
		return fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
	}
	s.closers = append(s.closers, engine.Close)

	if cfg.Cache != nil && cfg.Cache.Redis != nil {
		store, err := cache.NewRedisStore(ctx, cfg.Cache.Redis, s.Logger)
		if err != nil {
			return fmt.Errorf("error initializing query cache: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		engine = cache.New(engine, store, s.Logger)
	}

	s.Engine = engine
	s.Logger.Info("search engine initialized", "provider", cfg.Search.Provider, "cores", len(s.Registry.Cores()))
	return nil
}

func (s *Server) initObjectStore(ctx context.Context, cfg *config.Config) error {
	var err error
	switch cfg.ObjectStore.Provider {
	case "local":
		s.ObjectStore, err = local.NewStore(cfg.ObjectStore.Local.Root, s.Logger)
	case "s3":
		s.ObjectStore, err = s3.NewStore(ctx, cfg.ObjectStore.S3, s.Logger)
	default:
		err = fmt.Errorf("unknown provider %q", cfg.ObjectStore.Provider)
	}
	if err != nil {
		return fmt.Errorf("error initializing object store: %w", err)
	}
	return nil
}

func (s *Server) initReportSink(ctx context.Context, cfg *config.Config) error {
	var sinks report.MultiSink

	if dbCfg := cfg.Report.Database; dbCfg != nil {
		db, err := database.Connect(*dbCfg, s.Logger)
		if err != nil {
			return fmt.Errorf("error connecting to report database: %w", err)
		}
		s.DB = db
		s.closers = append(s.closers, func() error {
			if stats, err := database.Stats(db); err == nil {
				s.Logger.Debug("closing report database",
					"open", stats.OpenConnections, "wait_count", stats.WaitCount)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})

		store, err := report.NewStore(db, s.Logger)
		if err != nil {
			return err
		}
		if _, err := store.Prune(ctx, cfg.ReportRetention()); err != nil {
			s.Logger.Warn("error pruning old reports", "error", err)
		}
		sinks = append(sinks, store)
	}

	if kCfg := cfg.Report.Kafka; kCfg != nil {
		sink, err := report.NewKafkaSink(*kCfg, s.Logger)
		if err != nil {
			return fmt.Errorf("error creating kafka report sink: %w", err)
		}
		s.closers = append(s.closers, func() error {
			sink.Close()
			return nil
		})
		sinks = append(sinks, sink)
	}

	switch len(sinks) {
	case 0:
	case 1:
		s.ReportSink = sinks[0]
	default:
		s.ReportSink = sinks
	}
	return nil
}

// Close releases everything New opened, in reverse order.
func (s *Server) Close() error {
	var result error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result
}
