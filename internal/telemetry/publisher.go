package telemetry

import (
	"go.uber.org/zap"
)

// EventTypeGPS is the type discriminator of position push frames.
const EventTypeGPS = "GPS"

// Recipients resolves a device group set to entitled live connections.
// Implemented by access.Resolver.
type Recipients interface {
	RecipientsFor(deviceGroups []int64) ([]string, error)
}

// Broadcaster delivers a serialized event to a connection set. Implemented
// by wsserver.Server.
type Broadcaster interface {
	Broadcast(v any, recipients []string)
}

// Publisher glues dispatch output to the push channel: resolve the
// authorized recipient set, then broadcast. It keeps no state of its own.
type Publisher struct {
	resolver Recipients
	registry Broadcaster
}

func NewPublisher(resolver Recipients, registry Broadcaster) *Publisher {
	return &Publisher{resolver: resolver, registry: registry}
}

func (p *Publisher) Publish(ev BroadcastEvent) {
	recipients, err := p.resolver.RecipientsFor(ev.DeviceGroups)
	if err != nil {
		zap.L().Error("failed to resolve broadcast recipients",
			zap.String("type", ev.Type),
			zap.String("imei", ev.Data.IMEI),
			zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}
	p.registry.Broadcast(ev, recipients)
}
