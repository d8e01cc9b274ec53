package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorRepo struct {
	record  *AuthorRecord
	err     error
	lookups int
}

func (f *fakeAuthorRepo) AuthorForIntelligence(context.Context, string) (*AuthorRecord, error) {
	f.lookups++
	return f.record, f.err
}

type fakeChainRepo struct {
	records []ChainRecord
	err     error
}

func (f *fakeChainRepo) ChainsBySlugs(context.Context, []string) ([]ChainRecord, error) {
	return f.records, f.err
}

type fakeAgentSource struct {
	agents []Agent
	err    error
}

func (f *fakeAgentSource) Agents(context.Context) ([]Agent, error) {
	return f.agents, f.err
}

type memoryAuthorCache struct {
	mu      sync.Mutex
	entries map[string]map[string]any
}

func newMemoryAuthorCache() *memoryAuthorCache {
	return &memoryAuthorCache{entries: make(map[string]map[string]any)}
}

func (c *memoryAuthorCache) Get(_ context.Context, id string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[id]
	return info, ok
}

func (c *memoryAuthorCache) Set(_ context.Context, id string, info map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = info
}

func twitterAuthor() *AuthorRecord {
	return &AuthorRecord{
		AccountID:  "acct-1",
		ScreenName: "whale_watcher",
		Name:       "Whale Watcher",
		Avatar:     "https://example.com/avatar.png",
		MasterType: "(twitter, verified)",
	}
}

func TestAuthorInfo_BuildsBlockWithPrompt(t *testing.T) {
	e := NewEnricher(&fakeAuthorRepo{record: twitterAuthor()}, &fakeChainRepo{}, nil, nil)

	payload := map[string]any{"id": "intel-1", "type": "twitter", "subtype": "tweet"}
	info := e.AuthorInfo(context.Background(), payload)

	platform := info["platform"].(map[string]any)
	assert.Equal(t, "acct-1", platform["id"])
	assert.Equal(t, "twitter", platform["name"])
	assert.Equal(t, "whale_watcher", info["slug"])
	assert.Equal(t, "Whale Watcher's new tweet on X has sparked investment opportunities.", info["prompt"])
}

func TestAuthorInfo_UnknownSubtypeUsesDefaultPrompt(t *testing.T) {
	e := NewEnricher(&fakeAuthorRepo{record: twitterAuthor()}, &fakeChainRepo{}, nil, nil)

	payload := map[string]any{"id": "intel-1", "type": "twitter", "subtype": "space"}
	info := e.AuthorInfo(context.Background(), payload)
	assert.Equal(t, "Whale Watcher's new release on X has sparked investment opportunities.", info["prompt"])
}

func TestAuthorInfo_DefaultsOnFailure(t *testing.T) {
	t.Run("lookup error", func(t *testing.T) {
		e := NewEnricher(&fakeAuthorRepo{err: errors.New("db down")}, &fakeChainRepo{}, nil, nil)
		info := e.AuthorInfo(context.Background(), map[string]any{"id": "intel-1"})
		assert.Equal(t, DefaultAuthorInfo(), info)
	})

	t.Run("no author entity", func(t *testing.T) {
		e := NewEnricher(&fakeAuthorRepo{}, &fakeChainRepo{}, nil, nil)
		info := e.AuthorInfo(context.Background(), map[string]any{"id": "intel-1"})
		assert.Equal(t, DefaultAuthorInfo(), info)
	})

	t.Run("missing intelligence id", func(t *testing.T) {
		repo := &fakeAuthorRepo{record: twitterAuthor()}
		e := NewEnricher(repo, &fakeChainRepo{}, nil, nil)
		info := e.AuthorInfo(context.Background(), map[string]any{})
		assert.Equal(t, DefaultAuthorInfo(), info)
		assert.Zero(t, repo.lookups)
	})
}

func TestAuthorInfo_ServesFromCache(t *testing.T) {
	repo := &fakeAuthorRepo{record: twitterAuthor()}
	cache := newMemoryAuthorCache()
	e := NewEnricher(repo, &fakeChainRepo{}, nil, cache)

	payload := map[string]any{"id": "intel-1", "type": "twitter", "subtype": "tweet"}
	first := e.AuthorInfo(context.Background(), payload)
	second := e.AuthorInfo(context.Background(), payload)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.lookups)
}

func TestMonitorTime(t *testing.T) {
	published := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	spider := published.Add(2500 * time.Millisecond)

	t.Run("RFC3339 strings", func(t *testing.T) {
		got := MonitorTime(spider.Format(time.RFC3339Nano), published.Format(time.RFC3339Nano))
		assert.Equal(t, int64(2500), got)
	})

	t.Run("time values", func(t *testing.T) {
		assert.Equal(t, int64(2500), MonitorTime(spider, published))
	})

	t.Run("unparseable input yields zero", func(t *testing.T) {
		assert.Zero(t, MonitorTime("not a time", published.Format(time.RFC3339)))
		assert.Zero(t, MonitorTime(spider.Format(time.RFC3339), nil))
		assert.Zero(t, MonitorTime(nil, nil))
		assert.Zero(t, MonitorTime(12345, 12345))
	})
}

func TestChainInfo(t *testing.T) {
	chains := &fakeChainRepo{records: []ChainRecord{
		{ID: "1", Slug: "ethereum", Name: "Ethereum", Symbol: "ETH"},
		{ID: "2", Slug: "solana", Name: "Solana", Symbol: "SOL"},
	}}
	e := NewEnricher(&fakeAuthorRepo{}, chains, nil, nil)

	entities := []any{
		map[string]any{"network": "ethereum"},
		map[string]any{"network": "solana"},
		map[string]any{"network": "ethereum"}, // duplicate slug
		map[string]any{},                      // no network
	}

	mapping := e.ChainInfo(context.Background(), entities)
	require.Len(t, mapping, 2)
	assert.Equal(t, "Ethereum", mapping["ethereum"].Name)
	assert.Equal(t, "SOL", mapping["solana"].Symbol)
}

func TestChainInfo_EmptyOnFailure(t *testing.T) {
	e := NewEnricher(&fakeAuthorRepo{}, &fakeChainRepo{err: errors.New("db down")}, nil, nil)
	mapping := e.ChainInfo(context.Background(), []any{map[string]any{"network": "ethereum"}})
	assert.Empty(t, mapping)

	assert.Empty(t, e.ChainInfo(context.Background(), nil))
}

func TestAgentDecoration(t *testing.T) {
	agents := &fakeAgentSource{agents: []Agent{
		{Name: "Alpha Scout", Avatar: "https://example.com/alpha.png", TagSlug: "alpha_scout"},
	}}
	e := NewEnricher(&fakeAuthorRepo{}, &fakeChainRepo{}, agents, nil)

	decoration, ok := e.AgentDecoration(context.Background(), "alpha_scout")
	require.True(t, ok)
	assert.Equal(t, "Alpha Scout", decoration["name"])

	_, ok = e.AgentDecoration(context.Background(), "unknown_tag")
	assert.False(t, ok)

	_, ok = e.AgentDecoration(context.Background(), "")
	assert.False(t, ok)
}

func TestAgentDecoration_LookupFailure(t *testing.T) {
	e := NewEnricher(&fakeAuthorRepo{}, &fakeChainRepo{}, &fakeAgentSource{err: errors.New("db down")}, nil)
	_, ok := e.AgentDecoration(context.Background(), "alpha_scout")
	assert.False(t, ok)
}

func TestNormalizeEntities(t *testing.T) {
	chains := map[string]ChainRecord{
		"ethereum": {ID: "1", Slug: "ethereum", Name: "Ethereum"},
	}
	entities := []any{
		map[string]any{
			"id":              "ent-1",
			"entityId":        "token-1",
			"name":            "PepeCoin",
			"symbol":          "PEPE",
			"network":         "ethereum",
			"price_usd":       "0.0000012",
			"market_cap":      "",
			"contractAddress": "0xabc",
		},
		"not an object",
	}

	normalized := NormalizeEntities(entities, chains)
	require.Len(t, normalized, 1)

	entity := normalized[0]
	assert.Equal(t, "ent-1", entity["id"])
	assert.Equal(t, "0xabc", entity["contract_address"])

	stats := entity["stats"].(map[string]any)
	assert.Equal(t, "0.0000012", stats["current_price_usd"])
	assert.Equal(t, "0", stats["current_market_cap"], "empty stats default to zero strings")
	assert.Equal(t, "0", stats["liquidity"])
	assert.Equal(t, "0", stats["highest_increase_rate"])

	chain := entity["chain"].(ChainRecord)
	assert.Equal(t, "Ethereum", chain.Name)
}

func TestEnrich_MergesAllLookupsAndStripsInternalFields(t *testing.T) {
	repo := &fakeAuthorRepo{record: twitterAuthor()}
	chains := &fakeChainRepo{records: []ChainRecord{{ID: "1", Slug: "ethereum", Name: "Ethereum"}}}
	e := NewEnricher(repo, chains, nil, nil)

	published := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	payload := map[string]any{
		"id":           "intel-1",
		"type":         "twitter",
		"subtype":      "tweet",
		"published_at": published.Format(time.RFC3339),
		"spider_time":  published.Add(time.Second).Format(time.RFC3339),
		"entities":     []any{map[string]any{"id": "ent-1", "network": "ethereum"}},
		"source_id":    "internal-7",
		"abstract":     "internal summary",
		"is_visible":   true,
		"is_deleted":   false,
	}

	e.Enrich(context.Background(), payload)

	for _, field := range []string{"source_id", "abstract", "is_visible", "is_deleted"} {
		assert.NotContains(t, payload, field)
	}
	assert.Equal(t, int64(1000), payload["monitor_time"])

	author := payload["author"].(map[string]any)
	assert.Equal(t, "whale_watcher", author["slug"])

	entities := payload["entities"].([]map[string]any)
	require.Len(t, entities, 1)
	assert.Equal(t, "Ethereum", entities[0]["chain"].(ChainRecord).Name)
}

func TestEnrich_LookupFailuresAreNonFatal(t *testing.T) {
	e := NewEnricher(
		&fakeAuthorRepo{err: errors.New("authors down")},
		&fakeChainRepo{err: errors.New("chains down")},
		nil, nil,
	)

	payload := map[string]any{
		"id":       "intel-1",
		"entities": []any{map[string]any{"id": "ent-1", "network": "ethereum"}},
	}

	e.Enrich(context.Background(), payload)

	assert.Equal(t, DefaultAuthorInfo(), payload["author"])
	assert.Equal(t, int64(0), payload["monitor_time"])
	entities := payload["entities"].([]map[string]any)
	require.Len(t, entities, 1)
	assert.Nil(t, entities[0]["chain"])
}
