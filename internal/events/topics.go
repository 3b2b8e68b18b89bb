package events

// Topic constants for domain events emitted by the ordering core.
const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status_changed"
	TopicOrderCancelled       = "order.cancelled"
	TopicOrderPaymentRecorded = "order.payment_recorded"
	TopicRewardProcessed      = "reward.processed"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderStatusChanged,
		TopicOrderCancelled,
		TopicOrderPaymentRecorded,
		TopicRewardProcessed,
	}
}
