package redisx

import (
	"fmt"
	"time"
)

const (
	// Cache status order: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Cached library listing: library:list:{user_id} -> JSON []Entitlement
	KeyLibraryList = "library:list:%s"

	// Listing version, bumped on every change: library:ver:{user_id}
	KeyLibraryVersion = "library:ver:%s"

	// Pub/sub channel telling clients that a user's library changed: library:{user_id}
	ChannelLibrary = "library:%s"
)

var (
	TTLStatusCache  = 5 * time.Minute
	TTLLibraryCache = 5 * time.Minute
	TTLDedup        = 48 * time.Hour

	TTLLibraryVersion = 24 * time.Hour
)

func LibraryChannel(userID string) string { return fmt.Sprintf(ChannelLibrary, userID) }

func LibraryListKey(userID string) string { return fmt.Sprintf(KeyLibraryList, userID) }

func LibraryVersionKey(userID string) string { return fmt.Sprintf(KeyLibraryVersion, userID) }

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
