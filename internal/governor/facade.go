package governor

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Get issues a deduplicated GET.
func (g *Governor) Get(ctx context.Context, path string, query url.Values) (*Result, error) {
	return g.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post issues a POST with a JSON body.
func (g *Governor) Post(ctx context.Context, path string, body any) (*Result, error) {
	return g.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT with a JSON body.
func (g *Governor) Put(ctx context.Context, path string, body any) (*Result, error) {
	return g.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH with a JSON body.
func (g *Governor) Patch(ctx context.Context, path string, body any) (*Result, error) {
	return g.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete issues a DELETE.
func (g *Governor) Delete(ctx context.Context, path string) (*Result, error) {
	return g.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Upload issues a multipart POST. Uploads are never deduplicated.
func (g *Governor) Upload(ctx context.Context, path string, form *Form) (*Result, error) {
	if form == nil {
		form = &Form{}
	}
	return g.Do(ctx, &Request{Method: http.MethodPost, Path: path, Form: form})
}

// Do routes req through deduplication and the paced queue. The returned
// Result is never nil; on failure it carries the error message and the error
// is returned alongside it.
func (g *Governor) Do(ctx context.Context, req *Request) (*Result, error) {
	if g == nil {
		return failureResult(ErrClosed), ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.normalize(); err != nil {
		return failureResult(err), err
	}

	if !g.deduper.ShouldDedupe(req) {
		return g.enqueue(ctx, req)
	}

	key, err := Fingerprint(req)
	if err != nil {
		return failureResult(err), err
	}

	val, err, shared := g.deduper.Do(ctx, key, func() (any, error) {
		return g.enqueue(context.WithoutCancel(ctx), req)
	})
	g.hooks.OnDedupe(shared)
	return sharedResult(val, err)
}

// CheckHealth probes the backend health endpoint outside the queue.
// Concurrent probes share one call.
func (g *Governor) CheckHealth(ctx context.Context) bool {
	if g == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	val, err, _ := g.deduper.Do(ctx, HealthCheckKey, func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.HealthTimeout)
		defer cancel()
		return g.probeHealth(probeCtx)
	})
	if err != nil {
		g.debug("Backend health check failed", zap.Error(err))
		return false
	}
	healthy, _ := val.(bool)
	return healthy
}

func (g *Governor) probeHealth(ctx context.Context) (bool, error) {
	target, err := g.resolve(g.cfg.HealthPath, nil)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	return resp.StatusCode == http.StatusOK, nil
}

// sharedResult hands each deduplicated caller its own copy of the outcome.
func sharedResult(val any, err error) (*Result, error) {
	res, _ := val.(*Result)
	if res == nil {
		if err == nil {
			err = errors.New("request produced no result")
		}
		return failureResult(err), err
	}
	cp := *res
	return &cp, err
}
