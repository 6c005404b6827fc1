package crawler

import (
	"sync"

	"github.com/MrDaPoyo/indieseas/internal/metrics"
)

// Frontier is the in-memory crawl queue. URLs are popped in FIFO order.
// The dedup set only ever grows: a URL accepted once is never accepted
// again for the lifetime of the process, even after it is crawled.
type Frontier struct {
	mu           sync.Mutex
	queue        []string
	queued       map[string]struct{}
	inFlight     map[string]struct{}
	domainCounts map[string]int
	folderCounts map[string]int

	domainCap int
	folderCap int
	highWater int
}

// NewFrontier builds an empty frontier with the given per-domain and
// per-subfolder acceptance caps and queue high-water mark.
func NewFrontier(domainCap, folderCap, highWater int) *Frontier {
	return &Frontier{
		queued:       make(map[string]struct{}),
		inFlight:     make(map[string]struct{}),
		domainCounts: make(map[string]int),
		folderCounts: make(map[string]int),
		domainCap:    domainCap,
		folderCap:    folderCap,
		highWater:    highWater,
	}
}

// Enqueue normalizes a URL and appends it to the queue if it passes the
// denylist, the dedup set, and the per-domain / per-subfolder caps. It
// reports whether the URL was accepted.
func (f *Frontier) Enqueue(rawURL string) bool {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if Denied(normalized) {
		return false
	}

	key := DedupKey(normalized)
	domain := DomainOf(normalized)
	folder := FolderOf(normalized)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.queued[key]; ok {
		return false
	}
	if f.domainCounts[domain] >= f.domainCap {
		return false
	}
	if f.folderCounts[folder] >= f.folderCap {
		return false
	}

	f.queued[key] = struct{}{}
	f.domainCounts[domain]++
	f.folderCounts[folder]++
	f.queue = append(f.queue, normalized)

	// Under memory pressure the newest entries are shed; the head of the
	// queue (the oldest discoveries) survives.
	if f.highWater > 0 && len(f.queue) > f.highWater {
		f.queue = f.queue[:f.highWater]
	}
	metrics.SetFrontierDepth(len(f.queue))
	return true
}

// Next pops the oldest queued URL and marks it in flight. It returns
// false when the queue is empty.
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return "", false
	}
	u := f.queue[0]
	f.queue = f.queue[1:]
	f.inFlight[u] = struct{}{}
	metrics.SetFrontierDepth(len(f.queue))
	return u, true
}

// Done clears the in-flight mark for a URL handed out by Next.
func (f *Frontier) Done(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, url)
}

// Idle reports whether the queue is empty and no worker holds a URL.
func (f *Frontier) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) == 0 && len(f.inFlight) == 0
}

// Depth returns the number of queued URLs.
func (f *Frontier) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
