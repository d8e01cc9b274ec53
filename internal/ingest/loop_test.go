package ingest

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
)

// fakeBroadcaster records every broadcast call.
type fakeBroadcaster struct {
	payloads []map[string]any
	tags     [][]string
}

func (f *fakeBroadcaster) Broadcast(payload any, tags []string) {
	f.payloads = append(f.payloads, payload.(map[string]any))
	f.tags = append(f.tags, tags)
}

// fakeAcknowledger counts acks and rejects.
type fakeAcknowledger struct {
	acks    int
	rejects int
}

func (f *fakeAcknowledger) Ack(uint64, bool) error        { f.acks++; return nil }
func (f *fakeAcknowledger) Nack(uint64, bool, bool) error { f.rejects++; return nil }
func (f *fakeAcknowledger) Reject(uint64, bool) error     { f.rejects++; return nil }

type nilAuthorRepo struct{}

func (nilAuthorRepo) AuthorForIntelligence(context.Context, string) (*enrich.AuthorRecord, error) {
	return nil, nil
}

type nilChainRepo struct{}

func (nilChainRepo) ChainsBySlugs(context.Context, []string) ([]enrich.ChainRecord, error) {
	return nil, nil
}

type staticAgentSource struct {
	agents []enrich.Agent
}

func (s *staticAgentSource) Agents(context.Context) ([]enrich.Agent, error) {
	return s.agents, nil
}

func newTestLoop(agents []enrich.Agent) (*Loop, *fakeBroadcaster) {
	enricher := enrich.NewEnricher(nilAuthorRepo{}, nilChainRepo{}, &staticAgentSource{agents: agents}, nil)
	broadcaster := &fakeBroadcaster{}
	return NewLoop(enricher, broadcaster), broadcaster
}

func delivery(ack *fakeAcknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: []byte(body)}
}

func TestLoop_BroadcastsValuableTaggedMessage(t *testing.T) {
	loop, broadcaster := newTestLoop([]enrich.Agent{
		{Name: "Alpha Scout", Avatar: "a.png", TagSlug: "alpha_scout"},
	})
	ack := &fakeAcknowledger{}

	loop.Handle(context.Background(), delivery(ack, `{
		"id": "intel-1",
		"is_valuable": true,
		"agent_tag": "alpha_scout"
	}`))

	require.Len(t, broadcaster.payloads, 1)
	assert.Equal(t, []string{"alpha_scout"}, broadcaster.tags[0])

	agent := broadcaster.payloads[0]["ai_agent"].(map[string]any)
	assert.Equal(t, "Alpha Scout", agent["name"])
	assert.Equal(t, 1, ack.acks)
}

func TestLoop_FiltersNonValuableMessages(t *testing.T) {
	loop, broadcaster := newTestLoop(nil)
	ack := &fakeAcknowledger{}

	loop.Handle(context.Background(), delivery(ack, `{"id": "intel-1", "is_valuable": false}`))
	loop.Handle(context.Background(), delivery(ack, `{"id": "intel-2"}`))

	assert.Empty(t, broadcaster.payloads)
	assert.Equal(t, 2, ack.acks, "filtered messages are still acked")
}

func TestLoop_UntaggedMessageBroadcastsWithNoTags(t *testing.T) {
	loop, broadcaster := newTestLoop(nil)
	ack := &fakeAcknowledger{}

	loop.Handle(context.Background(), delivery(ack, `{"id": "intel-1", "is_valuable": true}`))

	// The engine drops untagged broadcasts; the loop never invents an
	// all-connections fallback.
	require.Len(t, broadcaster.tags, 1)
	assert.Empty(t, broadcaster.tags[0])
	assert.Equal(t, 1, ack.acks)
}

func TestLoop_MalformedMessageIsAckedAndDropped(t *testing.T) {
	loop, broadcaster := newTestLoop(nil)
	ack := &fakeAcknowledger{}

	loop.Handle(context.Background(), delivery(ack, `{{ not json`))

	assert.Empty(t, broadcaster.payloads)
	assert.Equal(t, 1, ack.acks, "poison messages must not be redelivered")
	assert.Zero(t, ack.rejects)
}

func TestLoop_UnknownAgentTagStillRoutes(t *testing.T) {
	loop, broadcaster := newTestLoop(nil)
	ack := &fakeAcknowledger{}

	loop.Handle(context.Background(), delivery(ack, `{
		"id": "intel-1",
		"is_valuable": true,
		"agent_tag": "nobody_home"
	}`))

	require.Len(t, broadcaster.tags, 1)
	assert.Equal(t, []string{"nobody_home"}, broadcaster.tags[0])
	assert.NotContains(t, broadcaster.payloads[0], "ai_agent")
}

func TestLoop_StripsInternalFieldsBeforeBroadcast(t *testing.T) {
	loop, broadcaster := newTestLoop(nil)
	ack := &fakeAcknowledger{}

	loop.Handle(context.Background(), delivery(ack, `{
		"id": "intel-1",
		"is_valuable": true,
		"agent_tag": "alpha_scout",
		"source_id": "internal-7",
		"abstract": "internal summary"
	}`))

	require.Len(t, broadcaster.payloads, 1)
	assert.NotContains(t, broadcaster.payloads[0], "source_id")
	assert.NotContains(t, broadcaster.payloads[0], "abstract")
}
