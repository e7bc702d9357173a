package rpc

import "sync"

const (
	defaultStreamMaxGlobal    = 128
	defaultStreamMaxPerClient = 8
)

// StreamLimits caps concurrent /rpc/stream subscriptions. Zero values take
// the defaults.
type StreamLimits struct {
	MaxGlobal    int
	MaxPerClient int
}

type rpcStreamLimiter struct {
	maxGlobal    int
	maxPerClient int

	mu       sync.Mutex
	global   int
	byClient map[string]int
}

func newRPCStreamLimiter(cfg StreamLimits) *rpcStreamLimiter {
	if cfg.MaxGlobal <= 0 {
		cfg.MaxGlobal = defaultStreamMaxGlobal
	}
	if cfg.MaxPerClient <= 0 {
		cfg.MaxPerClient = defaultStreamMaxPerClient
	}
	return &rpcStreamLimiter{
		maxGlobal:    cfg.MaxGlobal,
		maxPerClient: cfg.MaxPerClient,
		byClient:     make(map[string]int),
	}
}

// acquire reserves a slot for clientKey. The returned release must be
// called exactly once when the stream ends.
func (l *rpcStreamLimiter) acquire(clientKey string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global >= l.maxGlobal || l.byClient[clientKey] >= l.maxPerClient {
		return nil, false
	}
	l.global++
	l.byClient[clientKey]++
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.global--
			if next := l.byClient[clientKey] - 1; next > 0 {
				l.byClient[clientKey] = next
			} else {
				delete(l.byClient, clientKey)
			}
		})
	}, true
}

func (l *rpcStreamLimiter) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global
}
