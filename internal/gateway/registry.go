package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/AIGun-Labs/aigun-backend/internal/errors"
)

// TagStore resolves a subscription-set id to its member tags. Implementations
// return a not-found structured error for unknown ids.
type TagStore interface {
	GetTags(ctx context.Context, subID uuid.UUID) ([]string, error)
}

// Registry indexes which connections care about which tags. Two structures
// answer the fan-out lookup in two hops: tagSets maps a tag to the
// subscription-set ids containing it, members maps a set id to its joined
// sessions. Both live under one RWMutex so TargetsForTags sees a consistent
// snapshot.
//
// Tag lists are resolved from the external store lazily on first reference
// and never refreshed in-process; Evict exists for operators who edited a
// set's tags and do not want to restart. Tags whose last referencing set id
// disappears stay indexed — a small leak bounded by distinct tag cardinality.
type Registry struct {
	store TagStore

	mu       sync.RWMutex
	tagSets  map[string]map[uuid.UUID]struct{}
	members  map[uuid.UUID]map[*Session]struct{}
	resolved map[uuid.UUID][]string
}

// NewRegistry creates a registry backed by the given tag store.
func NewRegistry(store TagStore) *Registry {
	return &Registry{
		store:    store,
		tagSets:  make(map[string]map[uuid.UUID]struct{}),
		members:  make(map[uuid.UUID]map[*Session]struct{}),
		resolved: make(map[uuid.UUID][]string),
	}
}

// ResolveTags returns the tag list for a subscription-set id. Cache hits
// return immediately; a miss performs one blocking store lookup (no lock
// held) and publishes the result into both index structures under a single
// write lock, keeping them mutually consistent.
func (r *Registry) ResolveTags(ctx context.Context, subID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	tags, ok := r.resolved[subID]
	r.mu.RUnlock()
	if ok {
		return tags, nil
	}

	tags, err := r.store.GetTags(ctx, subID)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, apperrors.NotFoundError("subscription set does not exist").WithContext("subscription_set_id", subID.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.resolved[subID]; ok {
		return cached, nil
	}
	r.resolved[subID] = tags
	for _, tag := range tags {
		set, ok := r.tagSets[tag]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			r.tagSets[tag] = set
		}
		set[subID] = struct{}{}
	}
	return tags, nil
}

// Join adds the session to the subscription set's connection index,
// resolving the set's tags first if they are not yet cached.
func (r *Registry) Join(ctx context.Context, subID uuid.UUID, s *Session) error {
	if _, err := r.ResolveTags(ctx, subID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[subID]
	if !ok {
		set = make(map[*Session]struct{})
		r.members[subID] = set
	}
	set[s] = struct{}{}
	return nil
}

// LeaveAll removes the session from each listed subscription set. Idempotent:
// unknown ids and absent memberships are ignored.
func (r *Registry) LeaveAll(s *Session, subIDs []uuid.UUID) {
	if len(subIDs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, subID := range subIDs {
		if set, ok := r.members[subID]; ok {
			delete(set, s)
		}
	}
}

// DropAll batch-removes each session from every subscription set it joined.
// One lock acquisition covers the whole batch; the broadcast engine uses
// this to amortize cleanup of dead connections discovered during fan-out.
func (r *Registry) DropAll(sessions []*Session) {
	if len(sessions) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sessions {
		for _, subID := range s.SubscriptionIDs() {
			if set, ok := r.members[subID]; ok {
				delete(set, s)
			}
		}
	}
}

// TargetsForTags unions, for every tag, every subscription-set id indexed
// under it, then unions every session joined to those sets. The whole
// two-hop resolution runs under one read lock so a session mid-removal is
// either fully present or fully absent.
func (r *Registry) TargetsForTags(tags []string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subIDs := make(map[uuid.UUID]struct{})
	for _, tag := range tags {
		for subID := range r.tagSets[tag] {
			subIDs[subID] = struct{}{}
		}
	}

	seen := make(map[*Session]struct{})
	var targets []*Session
	for subID := range subIDs {
		for s := range r.members[subID] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			targets = append(targets, s)
		}
	}
	return targets
}

// Evict drops the cached tag list and tag index entries for a subscription
// set so the next Join re-resolves it from the store. Joined connections are
// untouched; they stop matching until the set is referenced again.
func (r *Registry) Evict(subID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tag := range r.resolved[subID] {
		if set, ok := r.tagSets[tag]; ok {
			delete(set, subID)
		}
	}
	delete(r.resolved, subID)
}

// MemberCount returns the number of sessions joined to a subscription set.
func (r *Registry) MemberCount(subID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[subID])
}

// Known reports whether a subscription set's tags are cached.
func (r *Registry) Known(subID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolved[subID]
	return ok
}
