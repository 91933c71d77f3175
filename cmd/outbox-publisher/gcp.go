package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// gcpPublisherFactory caches one publisher per topic so messages batch client-side.
func gcpPublisherFactory(client pubSubClient) publisherFactory {
	cache := map[string]publisher{}
	return func(topic string) publisher {
		if p, ok := cache[topic]; ok {
			return p
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		p := &gcpPublisher{raw: raw}
		cache[topic] = p
		return p
	}
}

type gcpPublisher struct {
	raw *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpPublishResult{raw: p.raw.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	raw *gcppubsub.PublishResult
}

func (r gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.raw == nil {
		return "", errors.New("publish result is nil")
	}
	return r.raw.Get(ctx)
}
