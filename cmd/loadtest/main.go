// Command loadtest drives facet requests at a coordinator or shard node and
// reports throughput, latency percentiles and how often responses were
// cached, refined or partial.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -fields color,size -concurrency 20 -rps 500
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/proto"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Queries     []url.URL
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	refined       atomic.Int64
	partial       atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

// RecordRequest counts one finished request. resp is nil unless the body
// decoded as a facet response.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, resp *proto.FacetCountResponse, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if resp != nil {
		if resp.CacheHit {
			s.cacheHits.Add(1)
		}
		if resp.Refined {
			s.refined.Add(1)
		}
		if len(resp.FailedShards) > 0 {
			s.partial.Add(1)
		}
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the coordinator or shard node")
	fields := flag.String("fields", "color", "comma-separated facet fields to request")
	filters := flag.String("fq", "", "comma-separated field:value filters mixed into the requests")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "overall request rate limit, 0 for unlimited")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Queries:     buildQueries(splitList(*fields), splitList(*filters)),
	}
	if len(cfg.Queries) == 0 {
		fmt.Fprintln(os.Stderr, "no fields to request")
		os.Exit(2)
	}

	fmt.Println("=== Facet Engine Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Requests:    %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// buildQueries crosses every field with a spread of sorts, limits and
// methods, and with each filter plus no filter at all.
func buildQueries(fields, filters []string) []url.URL {
	variants := []url.Values{
		{"limit": {"10"}},
		{"limit": {"3"}, "sort": {"count"}, "missing": {"true"}},
		{"limit": {"20"}, "sort": {"index"}, "mincount": {"1"}},
		{"limit": {"10"}, "offset": {"5"}},
		{"limit": {"10"}, "method": {"enum"}},
	}
	fqs := append([]string{""}, filters...)

	var out []url.URL
	for _, field := range fields {
		for _, v := range variants {
			for _, fq := range fqs {
				q := url.Values{}
				for k, vals := range v {
					q[k] = vals
				}
				if fq != "" {
					q.Set("fq", fq)
				}
				out = append(out, url.URL{
					Path:     "/api/v1/facet/" + url.PathEscape(field),
					RawQuery: q.Encode(),
				})
			}
		}
	}
	return out
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS/10)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				q := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				status, resp, err := doFacet(ctx, client, cfg.BaseURL+q.String())
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, resp, err)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func doFacet(ctx context.Context, client *http.Client, rawURL string) (int, *proto.FacetCountResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}
	var body proto.FacetCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, &body, nil
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}
	if success > 0 {
		fmt.Printf("Cache Hits:      %.2f%%\n", pct(stats.cacheHits.Load(), success))
		fmt.Printf("Refined:         %.2f%%\n", pct(stats.refined.Load(), success))
		fmt.Printf("Partial:         %.2f%%\n", pct(stats.partial.Load(), success))
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func pct(n, of int64) float64 {
	return float64(n) / float64(of) * 100
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
