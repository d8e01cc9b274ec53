// Package enrich augments raw ingested intelligence payloads with derived
// fields (author, monitor time, chain metadata) before broadcast. Every
// lookup is non-fatal: a failing collaborator yields a default value so the
// message is still delivered.
package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
)

// AuthorRecord is the account row backing an intelligence item's author.
type AuthorRecord struct {
	AccountID  string
	ScreenName string
	Name       string
	Avatar     string
	MasterType string
}

// AuthorRepo resolves the author account of an intelligence item.
// A nil record with nil error means the item has no author entity.
type AuthorRepo interface {
	AuthorForIntelligence(ctx context.Context, intelligenceID string) (*AuthorRecord, error)
}

// ChainRecord is one chain/network metadata row.
type ChainRecord struct {
	ID        string `json:"id"`
	NetworkID string `json:"network_id"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Slug      string `json:"slug"`
	Logo      string `json:"logo"`
}

// ChainRepo batch-resolves chain metadata by slug.
type ChainRepo interface {
	ChainsBySlugs(ctx context.Context, slugs []string) ([]ChainRecord, error)
}

// Agent is a displayable AI agent with its routing tag.
type Agent struct {
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	TagSlug string `json:"tag_slug"`
}

// AgentSource lists the known agents (typically cache-backed).
type AgentSource interface {
	Agents(ctx context.Context) ([]Agent, error)
}

// AuthorCache holds computed author-info blocks keyed by intelligence id.
type AuthorCache interface {
	Get(ctx context.Context, intelligenceID string) (map[string]any, bool)
	Set(ctx context.Context, intelligenceID string, info map[string]any)
}

const platformLogoURL = "https://upload.wikimedia.org/wikipedia/commons/thumb/b/b7/X_logo.jpg/960px-X_logo.jpg?20230724061250"

// twitterActionPrompts maps a twitter intelligence subtype to the phrase
// appended after the account name in the author prompt.
var twitterActionPrompts = map[string]string{
	"tweet":   "'s new tweet on X has sparked investment opportunities.",
	"retweet": "'s retweet on X has sparked investment opportunities.",
	"quote":   "'s quote on X has sparked investment opportunities.",
	"reply":   "'s reply on X has sparked investment opportunities.",
}

const defaultTwitterPrompt = "'s new release on X has sparked investment opportunities."

// Enricher merges author, monitor-time, and chain lookups into an
// intelligence payload and decorates it with agent display info.
type Enricher struct {
	authors     AuthorRepo
	chains      ChainRepo
	agents      AgentSource
	authorCache AuthorCache
}

// NewEnricher creates an enricher. authorCache may be nil to disable
// author-info caching.
func NewEnricher(authors AuthorRepo, chains ChainRepo, agents AgentSource, authorCache AuthorCache) *Enricher {
	return &Enricher{
		authors:     authors,
		chains:      chains,
		agents:      agents,
		authorCache: authorCache,
	}
}

// internalFields never leave the backend: they are stripped from the
// payload before broadcast.
var internalFields = []string{"source_id", "abstract", "is_visible", "is_deleted"}

// Enrich strips internal fields and merges the three derived lookups into
// the payload. The lookups run concurrently and are merged once all
// complete; each substitutes a default on failure.
func (e *Enricher) Enrich(ctx context.Context, payload map[string]any) {
	for _, field := range internalFields {
		delete(payload, field)
	}

	var (
		wg          sync.WaitGroup
		author      map[string]any
		monitorTime int64
		chains      map[string]ChainRecord
	)

	entities, _ := payload["entities"].([]any)

	wg.Add(3)
	go func() {
		defer wg.Done()
		author = e.AuthorInfo(ctx, payload)
	}()
	go func() {
		defer wg.Done()
		monitorTime = MonitorTime(payload["spider_time"], payload["published_at"])
	}()
	go func() {
		defer wg.Done()
		chains = e.ChainInfo(ctx, entities)
	}()
	wg.Wait()

	payload["author"] = author
	payload["monitor_time"] = monitorTime
	payload["entities"] = NormalizeEntities(entities, chains)
}

// DefaultAuthorInfo is the author block substituted when no author entity
// can be resolved.
func DefaultAuthorInfo() map[string]any {
	return map[string]any{
		"platform": map[string]any{"id": nil, "name": nil, "logo": nil},
		"slug":     nil,
		"avatar":   nil,
		"prompt":   nil,
	}
}

// AuthorInfo resolves the author block for an intelligence payload, serving
// from cache when possible.
func (e *Enricher) AuthorInfo(ctx context.Context, payload map[string]any) map[string]any {
	intelligenceID, _ := payload["id"].(string)
	if intelligenceID == "" {
		return DefaultAuthorInfo()
	}

	if e.authorCache != nil {
		if cached, ok := e.authorCache.Get(ctx, intelligenceID); ok {
			return cached
		}
	}

	record, err := e.authors.AuthorForIntelligence(ctx, intelligenceID)
	if err != nil {
		slog.Error("Author lookup failed", "intelligence_id", intelligenceID, "error", err)
		metrics.IngestEnrichmentFailuresTotal.WithLabelValues("author").Inc()
		return DefaultAuthorInfo()
	}
	if record == nil {
		return DefaultAuthorInfo()
	}

	platformName := platformNameFromMasterType(record.MasterType)
	info := map[string]any{
		"platform": map[string]any{
			"id":   record.AccountID,
			"name": platformName,
			"logo": platformLogoURL,
		},
		"slug":   record.ScreenName,
		"avatar": record.Avatar,
		"prompt": nil,
	}

	if itemType, _ := payload["type"].(string); itemType == "twitter" {
		subtype, _ := payload["subtype"].(string)
		prompt, ok := twitterActionPrompts[subtype]
		if !ok {
			prompt = defaultTwitterPrompt
		}
		info["prompt"] = record.Name + prompt
	}

	if e.authorCache != nil {
		e.authorCache.Set(ctx, intelligenceID, info)
	}
	return info
}

// platformNameFromMasterType extracts the platform from a master-type label
// like "(twitter, verified)". Empty input defaults to twitter.
func platformNameFromMasterType(masterType string) string {
	masterType = trimSpace(masterType)
	if masterType == "" {
		return "twitter"
	}
	if i := indexByte(masterType, ','); i > 0 {
		masterType = masterType[:i]
	}
	if len(masterType) > 1 && masterType[0] == '(' {
		masterType = masterType[1:]
	}
	return masterType
}

// MonitorTime returns the milliseconds between publication and spider
// pickup. Both arguments may be RFC 3339 strings or time.Time values; any
// other shape yields zero.
func MonitorTime(createdAt, publishedAt any) int64 {
	switch created := createdAt.(type) {
	case string:
		published, ok := publishedAt.(string)
		if !ok {
			return 0
		}
		createdTime, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return 0
		}
		publishedTime, err := time.Parse(time.RFC3339, published)
		if err != nil {
			return 0
		}
		return createdTime.UnixMilli() - publishedTime.UnixMilli()
	case time.Time:
		publishedTime, ok := publishedAt.(time.Time)
		if !ok {
			return 0
		}
		return created.Sub(publishedTime).Milliseconds()
	default:
		return 0
	}
}

// ChainInfo batch-resolves chain metadata for every entity network slug on
// the payload, keyed by slug.
func (e *Enricher) ChainInfo(ctx context.Context, entities []any) map[string]ChainRecord {
	slugs := make([]string, 0, len(entities))
	seen := make(map[string]struct{})
	for _, raw := range entities {
		entity, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		slug, _ := entity["network"].(string)
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}
	if len(slugs) == 0 {
		return map[string]ChainRecord{}
	}

	records, err := e.chains.ChainsBySlugs(ctx, slugs)
	if err != nil {
		slog.Error("Chain lookup failed", "slugs", slugs, "error", err)
		metrics.IngestEnrichmentFailuresTotal.WithLabelValues("chain").Inc()
		return map[string]ChainRecord{}
	}

	mapping := make(map[string]ChainRecord, len(records))
	for _, record := range records {
		mapping[record.Slug] = record
	}
	return mapping
}

// AgentDecoration looks up display info for the agent behind a routing tag
// slug. The second return is false when no agent matches or the lookup
// fails.
func (e *Enricher) AgentDecoration(ctx context.Context, tagSlug string) (map[string]any, bool) {
	if e.agents == nil || tagSlug == "" {
		return nil, false
	}
	agents, err := e.agents.Agents(ctx)
	if err != nil {
		slog.Error("Agent list lookup failed", "error", err)
		metrics.IngestEnrichmentFailuresTotal.WithLabelValues("agent").Inc()
		return nil, false
	}
	for _, agent := range agents {
		if agent.TagSlug == tagSlug {
			return map[string]any{"name": agent.Name, "avatar": agent.Avatar}, true
		}
	}
	return nil, false
}

// NormalizeEntities reshapes the raw entity objects carried by a payload
// into the broadcast schema, attaching resolved chain metadata and
// zero-defaulted stats.
func NormalizeEntities(entities []any, chains map[string]ChainRecord) []map[string]any {
	normalized := make([]map[string]any, 0, len(entities))
	for _, raw := range entities {
		entity, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		slug, _ := entity["network"].(string)
		var chain any
		if record, ok := chains[slug]; ok {
			chain = record
		}

		isNative, _ := entity["is_native"].(bool)
		normalized = append(normalized, map[string]any{
			"id":               stringOrNil(entity["id"]),
			"entity_id":        stringOrNil(entity["entityId"]),
			"name":             entity["name"],
			"symbol":           entity["symbol"],
			"standard":         entity["standard"],
			"decimals":         entity["decimals"],
			"contract_address": entity["contractAddress"],
			"logo":             entity["logo"],
			"stats": map[string]any{
				"warning_price_usd":     numericOrZero(entity["price_usd"]),
				"warning_market_cap":    numericOrZero(entity["market_cap"]),
				"current_price_usd":     numericOrZero(entity["price_usd"]),
				"current_market_cap":    numericOrZero(entity["market_cap"]),
				"liquidity":             numericOrZero(entity["liquidity"]),
				"volume_24h":            numericOrZero(entity["volume_24h"]),
				"highest_increase_rate": "0",
			},
			"chain":      chain,
			"is_native":  isNative,
			"created_at": entity["createdAt"],
			"updated_at": entity["updatedAt"],
		})
	}
	return normalized
}

func stringOrNil(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return s
	}
	return v
}

// numericOrZero passes through non-empty values and substitutes the string
// "0" for nil or empty stats, matching the broadcast schema.
func numericOrZero(v any) any {
	switch value := v.(type) {
	case nil:
		return "0"
	case string:
		if value == "" {
			return "0"
		}
		return value
	default:
		return value
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
