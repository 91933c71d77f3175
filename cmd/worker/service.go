package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type triggerRunner interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	Triggers triggerRunner
}

// Service checks the worker dependencies and then runs the trigger consumer.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	triggers triggerRunner
}

type dependency struct {
	name string
	ping func(context.Context) error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Triggers == nil {
		return nil, errors.New("trigger consumer is required")
	}
	return &Service{
		logg: params.Logger,
		deps: []dependency{
			{name: "database", ping: params.DB.Ping},
			{name: "redis", ping: params.Redis.Ping},
			{name: "pubsub", ping: params.PubSub.Ping},
		},
		triggers: params.Triggers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until the consumer stops. A canceled context is a clean shutdown.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	err := s.triggers.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		s.logg.Info(ctx, "trigger consumer stopped")
		return ctx.Err()
	}
	s.logg.Error(ctx, "trigger consumer stopped unexpectedly", err)
	return err
}
