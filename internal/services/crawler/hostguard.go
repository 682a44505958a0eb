package crawler

// hostGuard tracks consecutive failures per host within one job. A host
// that fails limit times in a row is blacklisted for the remainder of the
// job; any success resets its counter.
type hostGuard struct {
	limit  int
	counts map[string]int
	denied map[string]struct{}
}

func newHostGuard(limit int) *hostGuard {
	if limit <= 0 {
		limit = 20
	}
	return &hostGuard{
		limit:  limit,
		counts: make(map[string]int),
		denied: make(map[string]struct{}),
	}
}

func (g *hostGuard) blocked(host string) bool {
	_, ok := g.denied[host]
	return ok
}

// recordFailure bumps the consecutive counter and reports whether the host
// just crossed the blacklist limit.
func (g *hostGuard) recordFailure(host string) bool {
	g.counts[host]++
	if g.counts[host] >= g.limit {
		if _, already := g.denied[host]; !already {
			g.denied[host] = struct{}{}
			return true
		}
	}
	return false
}

func (g *hostGuard) recordSuccess(host string) {
	g.counts[host] = 0
}
