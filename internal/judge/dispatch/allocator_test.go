package dispatch

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"vjudge/internal/common/cache"
	"vjudge/internal/judge/model"
)

type fakeServerStore struct {
	mu      sync.Mutex
	servers []model.JudgeServer
}

func (f *fakeServerStore) ClaimLocked(_ context.Context, urls []string, isRemote bool) (*model.JudgeServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed := make(map[string]bool, len(urls))
	for _, u := range urls {
		allowed[u] = true
	}
	idx := make([]int, 0, len(f.servers))
	for i := range f.servers {
		if allowed[f.servers[i].URL] && f.servers[i].IsRemote == isRemote {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		return f.servers[idx[a]].TaskNumber < f.servers[idx[b]].TaskNumber
	})
	for _, i := range idx {
		if f.servers[i].HasCapacity() {
			f.servers[i].TaskNumber++
			s := f.servers[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeServerStore) Release(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.servers {
		if f.servers[i].URL == url && f.servers[i].TaskNumber > 0 {
			f.servers[i].TaskNumber--
		}
	}
	return nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts []model.RemoteAccount
}

func (f *fakeAccountStore) ListAvailable(_ context.Context, oj string) ([]model.RemoteAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RemoteAccount
	for _, a := range f.accounts {
		if a.Oj == oj && a.Status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountStore) TryClaim(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.accounts {
		if f.accounts[i].ID == id && f.accounts[i].Status {
			f.accounts[i].Status = false
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountStore) Release(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			f.accounts[i].Status = true
		}
	}
	return nil
}

func newTestHealth(t *testing.T, urls ...string) *HealthSource {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := NewHealthSource(cache.NewRedisCacheWithClient(client))
	for _, u := range urls {
		if err := h.Register(context.Background(), u); err != nil {
			t.Fatalf("register %s: %v", u, err)
		}
	}
	return h
}

func TestChooseJudgeServerPrefersLeastLoaded(t *testing.T) {
	store := &fakeServerStore{servers: []model.JudgeServer{
		{ID: 1, URL: "http://j1:8080", TaskNumber: 3, MaxTaskNumber: 5},
		{ID: 2, URL: "http://j2:8080", TaskNumber: 1, MaxTaskNumber: 5},
	}}
	alloc := NewAllocator(newTestHealth(t, "http://j1:8080", "http://j2:8080"), store, nil)

	server, err := alloc.ChooseJudgeServer(context.Background(), false)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if server == nil || server.URL != "http://j2:8080" {
		t.Fatalf("expected least loaded server j2, got %+v", server)
	}
	if server.TaskNumber != 2 {
		t.Fatalf("expected claimed load 2, got %d", server.TaskNumber)
	}
}

func TestChooseJudgeServerSkipsUnhealthy(t *testing.T) {
	store := &fakeServerStore{servers: []model.JudgeServer{
		{ID: 1, URL: "http://j1:8080", TaskNumber: 0, MaxTaskNumber: 5},
		{ID: 2, URL: "http://j2:8080", TaskNumber: 4, MaxTaskNumber: 5},
	}}
	// Only j2 has a heartbeat.
	alloc := NewAllocator(newTestHealth(t, "http://j2:8080"), store, nil)

	server, err := alloc.ChooseJudgeServer(context.Background(), false)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if server == nil || server.URL != "http://j2:8080" {
		t.Fatalf("expected healthy server j2, got %+v", server)
	}
}

func TestChooseJudgeServerExhausted(t *testing.T) {
	store := &fakeServerStore{servers: []model.JudgeServer{
		{ID: 1, URL: "http://j1:8080", TaskNumber: 5, MaxTaskNumber: 5},
	}}
	alloc := NewAllocator(newTestHealth(t, "http://j1:8080"), store, nil)

	server, err := alloc.ChooseJudgeServer(context.Background(), false)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if server != nil {
		t.Fatalf("expected nil server when all at capacity, got %+v", server)
	}
}

func TestChooseJudgeServerConcurrentClaimsRespectCapacity(t *testing.T) {
	const capacity = 5
	store := &fakeServerStore{servers: []model.JudgeServer{
		{ID: 1, URL: "http://j1:8080", TaskNumber: 0, MaxTaskNumber: capacity},
	}}
	alloc := NewAllocator(newTestHealth(t, "http://j1:8080"), store, nil)

	const claimers = 20
	var wg sync.WaitGroup
	results := make(chan *model.JudgeServer, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := alloc.ChooseJudgeServer(context.Background(), false)
			if err != nil {
				t.Errorf("choose: %v", err)
				return
			}
			results <- s
		}()
	}
	wg.Wait()
	close(results)

	claimed := 0
	for s := range results {
		if s != nil {
			claimed++
		}
	}
	if claimed != capacity {
		t.Fatalf("expected exactly %d successful claims, got %d", capacity, claimed)
	}
	if got := store.servers[0].TaskNumber; got != capacity {
		t.Fatalf("expected final load %d, got %d", capacity, got)
	}
}

func TestReleaseJudgeServerRestoresCapacity(t *testing.T) {
	store := &fakeServerStore{servers: []model.JudgeServer{
		{ID: 1, URL: "http://j1:8080", TaskNumber: 1, MaxTaskNumber: 1},
	}}
	alloc := NewAllocator(newTestHealth(t, "http://j1:8080"), store, nil)
	ctx := context.Background()

	if err := alloc.ReleaseJudgeServer(ctx, "http://j1:8080"); err != nil {
		t.Fatalf("release: %v", err)
	}
	server, err := alloc.ChooseJudgeServer(ctx, false)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if server == nil {
		t.Fatal("expected claim to succeed after release")
	}
}

func TestChooseRemoteAccountNormalizesGym(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []model.RemoteAccount{
		{ID: 1, Oj: model.RemoteOjCodeforces, Username: "cf_bot", Status: true},
	}}
	alloc := NewAllocator(nil, nil, accounts)

	acc, err := alloc.ChooseRemoteAccount(context.Background(), model.RemoteOjGym)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if acc == nil || acc.Username != "cf_bot" {
		t.Fatalf("expected CF account for GYM submission, got %+v", acc)
	}
}

func TestChooseRemoteAccountConcurrentClaims(t *testing.T) {
	accounts := &fakeAccountStore{accounts: []model.RemoteAccount{
		{ID: 1, Oj: model.RemoteOjHdu, Status: true},
		{ID: 2, Oj: model.RemoteOjHdu, Status: true},
	}}
	alloc := NewAllocator(nil, nil, accounts)

	const claimers = 10
	var wg sync.WaitGroup
	results := make(chan *model.RemoteAccount, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, err := alloc.ChooseRemoteAccount(context.Background(), model.RemoteOjHdu)
			if err != nil {
				t.Errorf("choose: %v", err)
				return
			}
			results <- acc
		}()
	}
	wg.Wait()
	close(results)

	claimed := map[int64]bool{}
	for acc := range results {
		if acc == nil {
			continue
		}
		if claimed[acc.ID] {
			t.Fatalf("account %d claimed twice", acc.ID)
		}
		claimed[acc.ID] = true
	}
	if len(claimed) != 2 {
		t.Fatalf("expected both accounts claimed exactly once, got %d", len(claimed))
	}
}

func TestHealthSourceExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := NewHealthSource(cache.NewRedisCacheWithClient(client))
	ctx := context.Background()

	if err := h.Register(ctx, "http://j1:8080"); err != nil {
		t.Fatalf("register: %v", err)
	}
	urls, err := h.Healthy(ctx)
	if err != nil {
		t.Fatalf("healthy: %v", err)
	}
	if len(urls) != 1 || urls[0] != "http://j1:8080" {
		t.Fatalf("expected one healthy server, got %v", urls)
	}

	mr.FastForward(HeartbeatTTL + time.Second)

	urls, err = h.Healthy(ctx)
	if err != nil {
		t.Fatalf("healthy after expiry: %v", err)
	}
	if len(urls) != 0 {
		t.Fatalf("expected no healthy servers after TTL, got %v", urls)
	}
}
