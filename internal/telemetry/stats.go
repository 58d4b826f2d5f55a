// Package telemetry keeps in-process search statistics for the status
// report. Nothing leaves the machine and nothing is persisted.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a search latency histogram bucket.
type LatencyBucket string

const (
	BucketUnder50ms  LatencyBucket = "lt_50ms"
	BucketUnder200ms LatencyBucket = "lt_200ms"
	BucketUnder1s    LatencyBucket = "lt_1s"
	BucketSlow       LatencyBucket = "gte_1s"
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < 50*time.Millisecond:
		return BucketUnder50ms
	case d < 200*time.Millisecond:
		return BucketUnder200ms
	case d < time.Second:
		return BucketUnder1s
	default:
		return BucketSlow
	}
}

// Event is one finished search.
type Event struct {
	Query   string
	Results int
	Latency time.Duration
	Failed  bool
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the statistics.
type Snapshot struct {
	Searches      int64                   `json:"searches"`
	ZeroResults   int64                   `json:"zero_results"`
	Failed        int64                   `json:"failed"`
	Latency       map[LatencyBucket]int64 `json:"latency,omitempty"`
	MedianLatency time.Duration           `json:"median_latency"`
	TopTerms      []TermCount             `json:"top_terms,omitempty"`
	Since         time.Time               `json:"since"`
}

// ZeroResultPercentage is the share of successful searches that found
// nothing, 0-100.
func (s Snapshot) ZeroResultPercentage() float64 {
	ok := s.Searches - s.Failed
	if ok <= 0 {
		return 0
	}
	return float64(s.ZeroResults) / float64(ok) * 100
}

// Config bounds the memory used by Stats.
type Config struct {
	// RecentLatencies is how many latencies feed the median.
	RecentLatencies int
	// MaxTerms bounds the term table; the least recently searched term is
	// evicted first.
	MaxTerms int
	// TopTerms is how many terms a snapshot reports.
	TopTerms int
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{RecentLatencies: 256, MaxTerms: 1000, TopTerms: 5}
}

// Stats accumulates search statistics. It is safe for concurrent use.
type Stats struct {
	cfg Config

	mu      sync.Mutex
	total   int64
	zero    int64
	failed  int64
	buckets map[LatencyBucket]int64
	recent  *Ring[time.Duration]
	terms   *lru.Cache[string, int64]
	since   time.Time
}

// New creates empty statistics. Zero config fields take defaults.
func New(cfg Config) *Stats {
	d := DefaultConfig()
	if cfg.RecentLatencies <= 0 {
		cfg.RecentLatencies = d.RecentLatencies
	}
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = d.MaxTerms
	}
	if cfg.TopTerms <= 0 {
		cfg.TopTerms = d.TopTerms
	}
	// Size is positive, so New cannot fail.
	terms, _ := lru.New[string, int64](cfg.MaxTerms)
	return &Stats{
		cfg:     cfg,
		buckets: make(map[LatencyBucket]int64),
		recent:  NewRing[time.Duration](cfg.RecentLatencies),
		terms:   terms,
		since:   time.Now(),
	}
}

// Record adds one search. Blank queries are ignored.
func (s *Stats) Record(e Event) {
	terms := ExtractTerms(e.Query)
	if len(terms) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if e.Failed {
		s.failed++
		return
	}
	if e.Results == 0 {
		s.zero++
	}
	s.buckets[LatencyToBucket(e.Latency)]++
	s.recent.Add(e.Latency)
	for _, t := range terms {
		n, _ := s.terms.Get(t)
		s.terms.Add(t, n+1)
	}
}

// Snapshot copies the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Searches:    s.total,
		ZeroResults: s.zero,
		Failed:      s.failed,
		Since:       s.since,
	}
	if len(s.buckets) > 0 {
		snap.Latency = make(map[LatencyBucket]int64, len(s.buckets))
		for b, n := range s.buckets {
			snap.Latency[b] = n
		}
	}
	snap.MedianLatency = median(s.recent.Items())
	snap.TopTerms = s.topTerms()
	return snap
}

func (s *Stats) topTerms() []TermCount {
	keys := s.terms.Keys()
	if len(keys) == 0 {
		return nil
	}
	counts := make([]TermCount, 0, len(keys))
	for _, k := range keys {
		if n, ok := s.terms.Peek(k); ok {
			counts = append(counts, TermCount{Term: k, Count: n})
		}
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Term < counts[j].Term
	})
	if len(counts) > s.cfg.TopTerms {
		counts = counts[:s.cfg.TopTerms]
	}
	return counts
}

func median(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	mid := len(ds) / 2
	if len(ds)%2 == 1 {
		return ds[mid]
	}
	return (ds[mid-1] + ds[mid]) / 2
}

// ExtractTerms lowercases query, strips surrounding punctuation from each
// word and drops words shorter than two runes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(w)) >= 2 {
			terms = append(terms, w)
		}
	}
	return terms
}
