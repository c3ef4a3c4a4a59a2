package orchestrator

import (
	"hash/fnv"
	"sync"
)

// stripedLocks serializes per-session work without a global lock: sessions
// hash onto a fixed set of mutexes, so distinct sessions almost always
// proceed in parallel while one session's messages are strictly ordered.
type stripedLocks struct {
	stripes []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	if n <= 0 {
		n = 64
	}
	return &stripedLocks{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLocks) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	mu.Lock()
	return mu
}
