package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

// Role selects which resources a process needs to exist before it starts.
type Role int

const (
	// RolePublisher requires every topic the process publishes to.
	RolePublisher Role = iota + 1
	// RoleSubscriber requires the trigger subscription.
	RoleSubscriber
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

var errNotInitialized = errors.New("pubsub client not initialized")

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
	topics    []string
}

// NewClient opens a Pub/Sub v2 client and fails fast when the role's resources are missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: projectID,
		cfg:       cfg,
		role:      role,
		topics:    []string{cfg.DomainTopic},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      projectID,
			"role":         role.String(),
			"topic":        cfg.DomainTopic,
			"subscription": cfg.TriggerSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// RequireTopics adds topics to the publisher's readiness set and checks them now.
func (c *Client) RequireTopics(ctx context.Context, topics ...string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range topics {
		if err := c.checkTopic(ctx, topic); err != nil {
			return err
		}
		if !contains(c.topics, topic) {
			c.topics = append(c.topics, topic)
		}
	}
	return nil
}

// Ping verifies the role's topics or subscription still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	switch c.role {
	case RolePublisher:
		for _, topic := range c.topics {
			if err := c.checkTopic(ctx, topic); err != nil {
				return err
			}
		}
		return nil
	case RoleSubscriber:
		return c.checkSubscription(ctx, c.cfg.TriggerSubscription)
	default:
		return fmt.Errorf("unknown pubsub role %d", c.role)
	}
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	return c.check(ctx, kindTopic, name, func(ctx context.Context, full string) error {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		return err
	})
}

func (c *Client) checkSubscription(ctx context.Context, name string) error {
	return c.check(ctx, kindSubscription, name, func(ctx context.Context, full string) error {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
		return err
	})
}

func (c *Client) check(ctx context.Context, kind, name string, get func(context.Context, string) error) error {
	full := resourceName(c.projectID, kind, name)
	if full == "" {
		return fmt.Errorf("pubsub %s name is required", strings.TrimSuffix(kind, "s"))
	}
	// v2 surfaces gRPC status errors.
	if err := get(ctx, full); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(kind, "s"), name)
		}
		return fmt.Errorf("checking %s %q: %w", strings.TrimSuffix(kind, "s"), name, err)
	}
	return nil
}

// TriggerSubscription returns the subscriber the trigger worker receives from.
func (c *Client) TriggerSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindSubscription, c.cfg.TriggerSubscription)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns a publisher handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindTopic, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID into projects/<project>/<kind>/<id>. Full resource
// names of the same kind pass through unchanged.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
