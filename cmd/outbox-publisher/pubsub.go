package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisherFunc returns the publisher for a topic, or nil when the topic
// cannot be published to.
type publisherFunc func(topic string) topicPublisher

type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

// publishResult is satisfied by *gcppubsub.PublishResult.
type publishResult interface {
	Get(context.Context) (serverID string, err error)
}

// clientPublishers resolves topics through the shared client, which caches one
// publisher per topic.
func clientPublishers(client pubSubClient) publisherFunc {
	return func(topic string) topicPublisher {
		if p := client.Publisher(topic); p != nil {
			return pubsubTopic{p}
		}
		return nil
	}
}

type pubsubTopic struct {
	*gcppubsub.Publisher
}

func (t pubsubTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.Publisher.Publish(ctx, msg)
}
