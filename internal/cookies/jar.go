// Package cookies is a typed store over the browser cookies the marketing
// site and the lead forms share.
package cookies

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

// Jar is where cookie values are read from and written to.
type Jar interface {
	Get(name string) (string, bool)
	Set(c *http.Cookie)
}

// MemoryJar is a Jar seeded from a request's cookies that records every
// write so it can be replayed onto a response.
type MemoryJar struct {
	mu      sync.Mutex
	values  map[string]string
	written map[string]*http.Cookie
	order   []string
}

// NewMemoryJar returns a jar holding the given cookies.
func NewMemoryJar(seed ...*http.Cookie) *MemoryJar {
	j := &MemoryJar{
		values:  make(map[string]string),
		written: make(map[string]*http.Cookie),
	}
	for _, c := range seed {
		j.values[c.Name] = c.Value
	}
	return j
}

// FromRequest seeds a jar with the request's cookies.
func FromRequest(r *http.Request) *MemoryJar {
	return NewMemoryJar(r.Cookies()...)
}

// Get returns the current raw value of a cookie.
func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.values[name]
	return v, ok
}

// Set stores a cookie. An expired cookie or negative MaxAge deletes it.
func (j *MemoryJar) Set(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(time.Now())) {
		delete(j.values, c.Name)
	} else {
		j.values[c.Name] = c.Value
	}
	if _, seen := j.written[c.Name]; !seen {
		j.order = append(j.order, c.Name)
	}
	cp := *c
	j.written[c.Name] = &cp
}

// Written returns the last write to each cookie, in first-write order.
func (j *MemoryJar) Written() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*http.Cookie, 0, len(j.order))
	for _, name := range j.order {
		out = append(out, j.written[name])
	}
	return out
}

// Flush writes every recorded cookie to w as a Set-Cookie header.
func (j *MemoryJar) Flush(w http.ResponseWriter) {
	for _, c := range j.Written() {
		http.SetCookie(w, c)
	}
}

// Names returns the names of the cookies currently held, sorted.
func (j *MemoryJar) Names() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.values))
	for k := range j.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
