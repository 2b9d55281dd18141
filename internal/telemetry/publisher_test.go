package telemetry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	recipients []string
	err        error
	got        [][]int64
}

func (f *fakeResolver) RecipientsFor(deviceGroups []int64) ([]string, error) {
	f.got = append(f.got, deviceGroups)
	return f.recipients, f.err
}

type fakeBroadcaster struct {
	payloads   []any
	recipients [][]string
}

func (f *fakeBroadcaster) Broadcast(v any, recipients []string) {
	f.payloads = append(f.payloads, v)
	f.recipients = append(f.recipients, recipients)
}

func TestPublishDeliversToResolvedSet(t *testing.T) {
	resolver := &fakeResolver{recipients: []string{"c1", "c2"}}
	registry := &fakeBroadcaster{}
	p := NewPublisher(resolver, registry)

	ev := BroadcastEvent{
		Type:         EventTypeGPS,
		Data:         GPSPayload{IMEI: "123456789012345", Longitude: 2.35, Latitude: 48.85, Time: 1700000000},
		DeviceGroups: []int64{4},
	}
	p.Publish(ev)

	require.Len(t, resolver.got, 1)
	assert.Equal(t, []int64{4}, resolver.got[0])
	require.Len(t, registry.recipients, 1)
	assert.Equal(t, []string{"c1", "c2"}, registry.recipients[0])
}

func TestPublishSkipsWhenNoRecipients(t *testing.T) {
	registry := &fakeBroadcaster{}
	p := NewPublisher(&fakeResolver{}, registry)
	p.Publish(BroadcastEvent{Type: EventTypeGPS, DeviceGroups: []int64{1}})
	assert.Empty(t, registry.payloads)
}

func TestPublishSwallowsResolverError(t *testing.T) {
	registry := &fakeBroadcaster{}
	p := NewPublisher(&fakeResolver{err: errors.New("db down")}, registry)
	p.Publish(BroadcastEvent{Type: EventTypeGPS, DeviceGroups: []int64{1}})
	assert.Empty(t, registry.payloads)
}

// The wire shape must match what dashboards expect; DeviceGroups never leaks.
func TestBroadcastEventWireShape(t *testing.T) {
	ev := BroadcastEvent{
		Type:         EventTypeGPS,
		Data:         GPSPayload{IMEI: "123456789012345", Longitude: 2.35, Latitude: 48.85, Time: 1700000000},
		DeviceGroups: []int64{1, 2},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"GPS","data":{"imei":"123456789012345","longitude":2.35,"latitude":48.85,"time":1700000000}}`,
		string(raw))
}
