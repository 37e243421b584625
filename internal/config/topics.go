package config

const (
	// TopicPublishTaskPrefix prefixes the per target type delivery topics.
	TopicPublishTaskPrefix = "publish.task."

	// TopicPublishResult is the NSQ topic adapters report delivery outcomes on.
	TopicPublishResult = "publish.result"

	// ChannelBackend is the channel the backend consumes results on.
	ChannelBackend = "backend"
)

// PublishTopic returns the delivery topic for a target type, e.g. "publish.task.webhook".
func PublishTopic(targetType string) string {
	return TopicPublishTaskPrefix + targetType
}
