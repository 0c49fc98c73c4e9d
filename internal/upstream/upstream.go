package upstream

import (
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// Upstream represents one guarded dependency: a named target URL with an
// HTTP reverse proxy and response time monitoring. Its circuit id is its
// name, so every guard process proxying the same upstream shares one
// circuit.
type Upstream struct {
	name             string
	url              *url.URL
	proxy            *httputil.ReverseProxy
	mutex            sync.Mutex
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

const ewmaAlpha = 0.2

// New creates an Upstream proxying to the given URL.
func New(name string, u *url.URL) *Upstream {
	return &Upstream{
		name:  name,
		url:   u,
		proxy: httputil.NewSingleHostReverseProxy(u),
	}
}

// Name returns the upstream name, which doubles as its circuit id.
func (u *Upstream) Name() string {
	return u.name
}

// URL returns the upstream target URL.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// ReverseProxy returns the HTTP reverse proxy for this upstream.
func (u *Upstream) ReverseProxy() *httputil.ReverseProxy {
	return u.proxy
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (u *Upstream) RecordResponse(duration time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		u.ewmaResponseTime = duration
		u.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	u.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(u.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response
// time. Returns 0 if no responses have been recorded yet.
func (u *Upstream) EWMATime() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		return 0
	}

	return u.ewmaResponseTime
}
