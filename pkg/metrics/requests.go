package metrics

import (
	"sort"
	"sync"
	"time"
)

// RequestsItem is one request counter row as reported to the hub.
// Response times are binned to the nearest 10ms below, sizes to the
// nearest whole KB below.
type RequestsItem struct {
	Consumer        string        `json:"consumer,omitempty"`
	Method          string        `json:"method"`
	Path            string        `json:"path"`
	StatusCode      int           `json:"status_code"`
	RequestCount    int64         `json:"request_count"`
	RequestSizeSum  int64         `json:"request_size_sum"`
	ResponseSizeSum int64         `json:"response_size_sum"`
	ResponseTimes   map[int]int64 `json:"response_times"`
	RequestSizes    map[int]int64 `json:"request_sizes"`
	ResponseSizes   map[int]int64 `json:"response_sizes"`
}

// RequestCounter accumulates per-key request counts, size sums and
// compact histograms. Safe for concurrent use.
type RequestCounter struct {
	mu               sync.Mutex
	counts           map[RequestKey]int64
	requestSizeSums  map[RequestKey]int64
	responseSizeSums map[RequestKey]int64
	responseTimes    map[RequestKey]map[int]int64
	requestSizes     map[RequestKey]map[int]int64
	responseSizes    map[RequestKey]map[int]int64
}

func NewRequestCounter() *RequestCounter {
	return &RequestCounter{
		counts:           make(map[RequestKey]int64),
		requestSizeSums:  make(map[RequestKey]int64),
		responseSizeSums: make(map[RequestKey]int64),
		responseTimes:    make(map[RequestKey]map[int]int64),
		requestSizes:     make(map[RequestKey]map[int]int64),
		responseSizes:    make(map[RequestKey]map[int]int64),
	}
}

// Add records one request/response observation. A negative request or
// response size means the size is unknown and is not counted.
func (c *RequestCounter) Add(key RequestKey, responseTime time.Duration, requestSize, responseSize int64) {
	responseTimeBin := responseTimeBinMs(responseTime)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[key]++
	incBin(c.responseTimes, key, responseTimeBin)
	if requestSize >= 0 {
		c.requestSizeSums[key] += requestSize
		incBin(c.requestSizes, key, sizeBinKB(requestSize))
	}
	if responseSize >= 0 {
		c.responseSizeSums[key] += responseSize
		incBin(c.responseSizes, key, sizeBinKB(responseSize))
	}
}

// GetAndReset drains all rows and resets the counter to its zero state.
func (c *RequestCounter) GetAndReset() []RequestsItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]RequestsItem, 0, len(c.counts))
	for key, count := range c.counts {
		items = append(items, RequestsItem{
			Consumer:        key.Consumer,
			Method:          key.Method,
			Path:            key.Path,
			StatusCode:      key.StatusCode,
			RequestCount:    count,
			RequestSizeSum:  c.requestSizeSums[key],
			ResponseSizeSum: c.responseSizeSums[key],
			ResponseTimes:   nonNilBins(c.responseTimes[key]),
			RequestSizes:    nonNilBins(c.requestSizes[key]),
			ResponseSizes:   nonNilBins(c.responseSizes[key]),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Path != items[j].Path {
			return items[i].Path < items[j].Path
		}
		if items[i].Method != items[j].Method {
			return items[i].Method < items[j].Method
		}
		return items[i].StatusCode < items[j].StatusCode
	})

	c.counts = make(map[RequestKey]int64)
	c.requestSizeSums = make(map[RequestKey]int64)
	c.responseSizeSums = make(map[RequestKey]int64)
	c.responseTimes = make(map[RequestKey]map[int]int64)
	c.requestSizes = make(map[RequestKey]map[int]int64)
	c.responseSizes = make(map[RequestKey]map[int]int64)
	return items
}

// responseTimeBinMs floors a duration to the nearest 10ms bin, expressed
// in milliseconds.
func responseTimeBinMs(d time.Duration) int {
	ms := int(d.Milliseconds())
	return ms / 10 * 10
}

// sizeBinKB floors a byte count to the nearest whole KB.
func sizeBinKB(size int64) int {
	return int(size / 1000)
}

func incBin(table map[RequestKey]map[int]int64, key RequestKey, bin int) {
	bins, ok := table[key]
	if !ok {
		bins = make(map[int]int64)
		table[key] = bins
	}
	bins[bin]++
}

func nonNilBins(bins map[int]int64) map[int]int64 {
	if bins == nil {
		return map[int]int64{}
	}
	return bins
}
