package governor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// HealthCheckKey is the shared fingerprint for backend health probes.
const HealthCheckKey = "health-check"

// DefaultDedupePostPaths lists POST endpoints whose repeated calls are
// idempotent in effect.
var DefaultDedupePostPaths = []string{
	"/api/auth/register",
	"/api/auth/me",
	"/api/users/profile",
}

// Deduper collapses concurrent identical operations into one call.
type Deduper struct {
	PostPaths []string

	group    singleflight.Group
	inflight atomic.Int64
}

// NewDeduper builds a deduper with the given POST allow-list. A nil list
// selects DefaultDedupePostPaths.
func NewDeduper(postPaths []string) *Deduper {
	if postPaths == nil {
		postPaths = DefaultDedupePostPaths
	}
	return &Deduper{PostPaths: postPaths}
}

// ShouldDedupe reports whether req is eligible for in-flight sharing.
func (d *Deduper) ShouldDedupe(req *Request) bool {
	if d == nil || req == nil || req.Form != nil {
		return false
	}
	switch req.Method {
	case http.MethodGet:
		return true
	case http.MethodPost:
		for _, path := range d.PostPaths {
			if path != "" && strings.Contains(req.Path, path) {
				return true
			}
		}
	}
	return false
}

// Do runs fn once per key among concurrent callers. Each caller stops waiting
// when its own ctx ends; the shared call keeps running for the others.
func (d *Deduper) Do(ctx context.Context, key string, fn func() (any, error)) (any, error, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	ch := d.group.DoChan(key, func() (any, error) {
		d.inflight.Add(1)
		defer d.inflight.Add(-1)
		return fn()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	}
}

// InFlight reports how many shared calls are currently running.
func (d *Deduper) InFlight() int {
	if d == nil {
		return 0
	}
	return int(d.inflight.Load())
}

// Fingerprint identifies an operation by method, path, sorted query, selected
// headers and canonical body.
func Fingerprint(req *Request) (string, error) {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(':')
	b.WriteString(req.Path)
	if len(req.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(req.Query.Encode())
	}
	b.WriteByte(':')

	if len(req.Header) > 0 {
		// Header literals may use non-canonical keys, so values are read
		// from the map entries directly and merged under the canonical name.
		merged := make(map[string][]string, len(req.Header))
		for k, vs := range req.Header {
			ck := http.CanonicalHeaderKey(k)
			merged[ck] = append(merged[ck], vs...)
		}
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.Join(merged[k], ","))
			b.WriteByte(';')
		}
		b.WriteByte(':')
	}

	body, err := req.encodeBody()
	if err != nil {
		return "", err
	}
	b.Write(canonicalJSON(body))
	return b.String(), nil
}

func canonicalJSON(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return trimmed
	}
	out, err := json.Marshal(v)
	if err != nil {
		return trimmed
	}
	return out
}
