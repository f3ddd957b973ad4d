package kafka

import (
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Router sends each message to the producer registered for its x-event-type
// header. Messages of unregistered types are dropped with a warning.
type Router struct {
	routes map[string]*Producer
	log    *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{routes: map[string]*Producer{}, log: log}
}

func (r *Router) Route(eventType string, p *Producer) *Router {
	r.routes[eventType] = p
	return r
}

func (r *Router) Publish(key, value []byte, headers ...kafka.Header) {
	et := headerValue(headers, "x-event-type")
	p, ok := r.routes[et]
	if !ok {
		r.log.Warn("no topic for event type", zap.String("event_type", et), zap.ByteString("key", key))
		return
	}
	p.Publish(key, value, headers...)
}

func headerValue(hs []kafka.Header, key string) string {
	for _, h := range hs {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
