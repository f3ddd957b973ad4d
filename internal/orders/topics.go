package orders

const (
	TopicOrderCreated        = "order.created"
	TopicOrderStatusChanged  = "order.status.changed"
	TopicEntitlementsGranted = "library.entitlements.granted"
)

// Partition key = order_id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
