package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	cache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/types"
)

/*
Demo of the query cache:
1. Deduplicated fetching (many goroutines, one producer call)
2. Tag-based invalidation with event delivery
3. Batch mutation with one aggregated event
4. TTL expiry
*/

// loadConfig builds the cache configuration from config.yaml / env,
// falling back to sensible demo defaults.
func loadConfig() cache.Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("QUERYCACHE")
	v.AutomaticEnv()

	v.SetDefault("cache.shards", 8)
	v.SetDefault("cache.event_buffer", 128)
	v.SetDefault("cache.default_query_ttl", "30s")
	v.SetDefault("cache.default_infinite_query_ttl", "5m")
	v.SetDefault("cache.enable_periodic_ttl_refresh", true)
	v.SetDefault("cache.refresh_interval", "10s")
	v.SetDefault("cache.enable_logging", true)

	// A missing config file just means defaults + env.
	_ = v.ReadInConfig()

	return cache.Config{
		Shards:                   v.GetInt("cache.shards"),
		EventBuffer:              v.GetInt("cache.event_buffer"),
		DefaultQueryTTL:          v.GetDuration("cache.default_query_ttl"),
		DefaultInfiniteQueryTTL:  v.GetDuration("cache.default_infinite_query_ttl"),
		EnablePeriodicTTLRefresh: v.GetBool("cache.enable_periodic_ttl_refresh"),
		RefreshInterval:          v.GetDuration("cache.refresh_interval"),
		EnableLogging:            v.GetBool("cache.enable_logging"),
	}
}

func main() {
	ctx := context.Background()

	cfg := loadConfig()
	cfg.Logger = zap.Must(zap.NewDevelopment())
	cfg.OnSuccess = func(r types.Result) {
		fmt.Printf("HOOK   → %s completed: %s\n", r.Kind, r.Key)
	}

	c := cache.New(cfg)
	defer c.Close()

	unsubInv := c.SubscribeInvalidation(func(ev types.InvalidationEvent) {
		fmt.Printf("EVENT  → invalidated %v (tags=%v pattern=%q)\n", ev.Keys, ev.Tags, ev.Pattern)
	})
	defer unsubInv()

	unsubMut := c.SubscribeMutation(func(ev types.MutationEvent) {
		fmt.Printf("EVENT  → mutated %v\n", ev.Keys)
	})
	defer unsubMut()

	//
	// ================= DEDUPLICATED FETCH =================
	//

	var producerCalls atomic.Int64
	loadUser := func(ctx context.Context) (any, error) {
		producerCalls.Add(1)
		time.Sleep(50 * time.Millisecond) // pretend this is a network call
		return map[string]string{"id": "1", "name": "Ada"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Fetch(ctx, "user_1", loadUser, "user")
			if err != nil {
				fmt.Println("fetch failed:", err)
				return
			}
			_ = v
		}()
	}
	wg.Wait()
	fmt.Printf("RESULT → 10 concurrent fetches, %d producer call(s)\n", producerCalls.Load())

	//
	// ================= TAG INVALIDATION =================
	//

	c.Put("user_2", map[string]string{"id": "2", "name": "Grace"}, "user")
	c.Put("settings", map[string]bool{"dark": true})

	removed := c.InvalidateByTags([]string{"user"}, true)
	fmt.Printf("RESULT → tag \"user\" invalidated %v; settings survive: %v\n", removed, c.Has("settings"))

	//
	// ================= BATCH MUTATION =================
	//

	c.UpdateBatch(
		[]string{"feed_page_1", "feed_page_2"},
		map[string]any{"feed_page_1": []int{1, 2}, "feed_page_2": []int{3, 4}},
		true,
	)

	//
	// ================= TTL =================
	//

	c.PutWithTTL("flash", "gone soon", 100*time.Millisecond)
	fmt.Printf("RESULT → flash ttl: %v\n", c.TTL("flash"))
	time.Sleep(150 * time.Millisecond)
	fmt.Printf("RESULT → flash ttl after expiry: %v\n", c.TTL("flash"))

	// Let the bus goroutines print their deliveries before exiting.
	time.Sleep(100 * time.Millisecond)
}
