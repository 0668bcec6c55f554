package main

import (
	"context"
	"fmt"

	"github.com/gapscan/gapscan/internal/analyzers"
	"github.com/gapscan/gapscan/internal/cache"
	"github.com/gapscan/gapscan/internal/extraction"
	"github.com/gapscan/gapscan/internal/feedback"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/llm"
	"github.com/gapscan/gapscan/internal/orchestrator"
	"github.com/gapscan/gapscan/internal/priority"
	"github.com/gapscan/gapscan/internal/questions"
	"github.com/gapscan/gapscan/internal/storage"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// services bundles everything a command needs, with a single Close.
type services struct {
	service *orchestrator.Service
	store   storage.Store

	redis    *cache.Client
	exporter *graph.Neo4jExporter
}

func (s *services) Close(ctx context.Context) {
	s.service.Shutdown()
	if s.exporter != nil {
		s.exporter.Close(ctx)
	}
	if s.redis != nil {
		s.redis.Close()
	}
	s.store.Close()
}

// buildServices wires the pipeline from configuration. source may be nil
// for commands that never start a run.
func buildServices(ctx context.Context, source orchestrator.DocumentSource) (*services, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	if !client.IsEnabled() {
		logger.Warn("No LLM provider configured; extraction is unavailable and questions use templates only")
	}

	matcher := textmatch.NewMatcher()
	pool := extraction.NewPool(extraction.NewLLMExtractor(client), cfg.Extraction.Workers)
	assembler := graph.NewAssembler(matcher, cfg.Analysis.ResolutionThreshold)
	engine := analyzers.NewEngine(cfg.Analysis, matcher)
	generator := questions.NewGenerator(client, matcher, cfg.Analysis.QuestionDedupThreshold)
	priorityEngine := priority.NewEngine(cfg.Priority, cfg.Feedback)
	feedbackEngine := feedback.NewEngine(store, cfg.Feedback)

	s := &services{store: store}

	var exporter orchestrator.Exporter
	if cfg.Neo4j.Enabled {
		neo, err := graph.NewNeo4jExporter(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			logger.WithError(err).Warn("Neo4j export disabled")
		} else {
			s.exporter = neo
			exporter = neo
		}
	}

	var locker orchestrator.Locker = orchestrator.NewMemoryLocker()
	if cfg.Mode == "server" && cfg.Redis.Addr != "" {
		redisClient, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, falling back to in-process locking")
		} else {
			s.redis = redisClient
			locker = orchestrator.NewRedisLocker(redisClient)
		}
	}

	orch := orchestrator.New(source, pool, assembler, engine, generator, priorityEngine, feedbackEngine, store, exporter)
	s.service = orchestrator.NewService(orch, store, locker, orchestrator.NewQueue(4), s.redis, feedbackEngine)
	return s, nil
}
