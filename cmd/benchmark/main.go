// Benchmark tool for load-testing Deal Brain with listing data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/listings.csv -url http://localhost:8080 -ruleset rs-default
//
// This tool:
//   1. Reads listing rows from a CSV export
//   2. Sends each listing to POST /evaluate
//   3. Reports throughput, latency percentiles and adjustment statistics
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ListingRow is one row from the listings CSV export.
type ListingRow struct {
	ID            string
	Title         string
	ListPrice     float64
	DeviceType    string
	Condition     string
	RAMGb         float64
	StorageGb     float64
	CPUMarkSingle float64
	CPUMarkMulti  float64
}

// EvaluateRequest mirrors the Deal Brain API request format.
type EvaluateRequest struct {
	RulesetID  string                    `json:"rulesetId"`
	ListingID  string                    `json:"listingId"`
	BasePrice  float64                   `json:"basePrice"`
	Listing    map[string]any            `json:"listing"`
	Components map[string]map[string]any `json:"components,omitempty"`
}

// EvaluateResponse mirrors the Deal Brain API response format.
type EvaluateResponse struct {
	ValuationID   string  `json:"valuationId"`
	BasePrice     float64 `json:"basePrice"`
	AdjustedPrice float64 `json:"adjustedPrice"`
	Delta         float64 `json:"delta"`
	Metadata      struct {
		RulesMatched int  `json:"rulesMatched"`
		CacheHit     bool `json:"cacheHit"`
	} `json:"metadata"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalMatched   int64
	CacheHits      int64

	mu        sync.Mutex
	latencies []time.Duration
	deltaSum  float64
}

func (m *Metrics) record(latency time.Duration, delta float64) {
	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.deltaSum += delta
	m.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "Path to listings CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Deal Brain base URL")
	rulesetID := flag.String("ruleset", "", "Ruleset ID to evaluate against")
	limit := flag.Int("limit", 10000, "Maximum listings to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each listing result")
	flag.Parse()

	if *csvPath == "" || *rulesetID == "" {
		fmt.Println("Usage: benchmark -csv /path/to/listings.csv -ruleset rs-default [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("=== Deal Brain Benchmark ===")
	fmt.Printf("CSV File:  %s\n", *csvPath)
	fmt.Printf("URL:       %s\n", *baseURL)
	fmt.Printf("Ruleset:   %s\n", *rulesetID)
	fmt.Printf("Workers:   %d\n", *workers)
	fmt.Printf("Limit:     %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Deal Brain not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run cmd/dealbrain/main.go")
		os.Exit(1)
	}
	fmt.Println("server is healthy")

	listings, err := readListingsCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %d listings\n\n", len(listings))

	start := time.Now()
	metrics := runBenchmark(listings, *baseURL, *rulesetID, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readListingsCSV(path string, limit int) ([]ListingRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	get := func(record []string, col string) string {
		idx, ok := colIndex[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}
	getFloat := func(record []string, col string) float64 {
		v, _ := strconv.ParseFloat(get(record, col), 64)
		return v
	}

	var listings []ListingRow
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		row++

		id := get(record, "id")
		if id == "" {
			id = fmt.Sprintf("bench-%d", row)
		}

		listings = append(listings, ListingRow{
			ID:            id,
			Title:         get(record, "title"),
			ListPrice:     getFloat(record, "list_price"),
			DeviceType:    get(record, "device_type"),
			Condition:     get(record, "condition"),
			RAMGb:         getFloat(record, "ram_gb"),
			StorageGb:     getFloat(record, "storage_gb"),
			CPUMarkSingle: getFloat(record, "cpu_mark_single"),
			CPUMarkMulti:  getFloat(record, "cpu_mark_multi"),
		})

		if limit > 0 && len(listings) >= limit {
			break
		}
	}

	return listings, nil
}

func runBenchmark(listings []ListingRow, baseURL, rulesetID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan ListingRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for l := range work {
				start := time.Now()
				result, err := evaluateListing(client, baseURL, rulesetID, l)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", l.ID, err)
					}
					continue
				}

				atomic.AddInt64(&metrics.TotalMatched, int64(result.Metadata.RulesMatched))
				if result.Metadata.CacheHit {
					atomic.AddInt64(&metrics.CacheHits, 1)
				}
				metrics.record(elapsed, result.Delta)

				if verbose {
					title := l.Title
					if len(title) > 30 {
						title = title[:30]
					}
					fmt.Printf("%-30s | base $%9.2f | adjusted $%9.2f | delta %+9.2f | rules %d\n",
						title, result.BasePrice, result.AdjustedPrice, result.Delta, result.Metadata.RulesMatched)
				}
			}
		}()
	}

	for _, l := range listings {
		work <- l
	}
	close(work)

	wg.Wait()
	return metrics
}

func evaluateListing(client *http.Client, baseURL, rulesetID string, l ListingRow) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		RulesetID: rulesetID,
		ListingID: l.ID,
		BasePrice: l.ListPrice,
		Listing: map[string]any{
			"title":       l.Title,
			"device_type": l.DeviceType,
			"condition":   l.Condition,
			"ram_gb":      l.RAMGb,
			"storage_gb":  l.StorageGb,
		},
		Components: map[string]map[string]any{
			"cpu": {
				"cpu_mark_single": l.CPUMarkSingle,
				"cpu_mark_multi":  l.CPUMarkMulti,
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=== RESULTS ===")
	fmt.Printf("Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("Errors:           %d\n", m.TotalErrors)
	fmt.Printf("Cache Hits:       %d\n", m.CacheHits)

	ok := m.TotalProcessed - m.TotalErrors
	if ok > 0 {
		fmt.Printf("Rules Matched:    %.2f avg per listing\n", float64(m.TotalMatched)/float64(ok))
		fmt.Printf("Avg Delta:        $%.2f\n", m.deltaSum/float64(ok))
	}

	fmt.Printf("\nTotal Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("Throughput:       %.2f listings/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if len(sorted) > 0 {
		fmt.Println("\nLatency:")
		fmt.Printf("  p50:  %v\n", percentile(sorted, 0.50).Round(time.Microsecond))
		fmt.Printf("  p95:  %v\n", percentile(sorted, 0.95).Round(time.Microsecond))
		fmt.Printf("  p99:  %v\n", percentile(sorted, 0.99).Round(time.Microsecond))
		fmt.Printf("  max:  %v\n", sorted[len(sorted)-1].Round(time.Microsecond))
	}
	fmt.Println()
}
