package api

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const defaultResultTTL = time.Hour

// ResultStore keeps finished collect results for later retrieval. Entries
// expire after the store's TTL.
type ResultStore struct {
	results *ttlcache.Cache[string, CollectResponse]
}

func NewResultStore(ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &ResultStore{
		results: ttlcache.New[string, CollectResponse](
			ttlcache.WithTTL[string, CollectResponse](ttl),
			ttlcache.WithDisableTouchOnHit[string, CollectResponse](),
		),
	}
}

func (s *ResultStore) Put(resp CollectResponse) {
	s.results.Set(resp.ID, resp, ttlcache.DefaultTTL)
}

func (s *ResultStore) Get(id string) (CollectResponse, bool) {
	item := s.results.Get(id)
	if item == nil {
		return CollectResponse{}, false
	}
	return item.Value(), true
}

func (s *ResultStore) Delete(id string) bool {
	if !s.results.Has(id) {
		return false
	}
	s.results.Delete(id)
	return true
}

func (s *ResultStore) Len() int {
	return s.results.Len()
}
