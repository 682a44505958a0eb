package crawler

import (
	"container/heap"

	"github.com/ternarybob/percipio/internal/models"
)

// frontierEntry is one URL awaiting a visit. urlHash doubles as the page
// identifier and the within-depth ordering key, so traversal order is a
// pure function of the seed and the link graph.
type frontierEntry struct {
	url     string
	urlHash string
	depth   int
}

// frontier is a breadth-first queue ordered by (depth, urlHash). Every URL
// enters at most once per job; the visited set persists across pops.
type frontier struct {
	entries entryHeap
	visited map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{visited: make(map[string]struct{})}
}

// push admits a canonical URL at the given depth. Returns false when the
// URL was already admitted during this job.
func (f *frontier) push(url string, depth int) bool {
	urlHash := models.NewPageID(url)
	if _, seen := f.visited[urlHash]; seen {
		return false
	}
	f.visited[urlHash] = struct{}{}
	heap.Push(&f.entries, frontierEntry{url: url, urlHash: urlHash, depth: depth})
	return true
}

func (f *frontier) pop() frontierEntry {
	return heap.Pop(&f.entries).(frontierEntry)
}

// markVisited records a URL as seen without queueing it. Redirect targets
// are marked this way so a later link to the final URL is not refetched.
func (f *frontier) markVisited(url string) {
	f.visited[models.NewPageID(url)] = struct{}{}
}

func (f *frontier) len() int {
	return f.entries.Len()
}

type entryHeap []frontierEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].depth != h[j].depth {
		return h[i].depth < h[j].depth
	}
	return h[i].urlHash < h[j].urlHash
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(frontierEntry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
