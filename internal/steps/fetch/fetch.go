// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package fetch implements the `fetch` step: concurrent HTTP GET/POST
// with URL pattern expansion, JSONPath extraction, and retry with
// exponential backoff, built on go-resty/resty/v2 and
// cenkalti/backoff/v4.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/speakeasy-api/jsonpath/pkg/jsonpath"
	"gopkg.in/yaml.v3"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/streamprim"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "fetch"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "async",
		IsSource:        true,
		Streaming:       step.StreamingConditional,
		Description:     "Concurrent HTTP fetch with URL pattern expansion, retry, and JSONPath extraction.",
		ConfigDocs: map[string]string{
			"url":      "a single URL, possibly a {start..end}/{a,b,c} pattern",
			"urls":     "a list of URLs, alternative to url",
			"method":   "GET (default) or POST",
			"headers":  "request headers",
			"body":     "request body for POST",
			"parallel": "max concurrent in-flight requests (default 4)",
			"retry":    "max retry attempts (default 3)",
			"timeout":  "per-request timeout in seconds (default 30)",
			"extract":  "JSONPath expression applied to each decoded response",
		},
		RequiredAlternatives: [][]string{{"url", "urls"}},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	return s.ExecuteAsync(ctx, sctx)
}

func (s *Step) SupportsStreaming() bool { return true }

func (s *Step) ExecuteAsync(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	urls, err := ExpandURLs(s.config)
	if err != nil {
		return nil, err
	}
	client := newClient(s.config)
	parallel := cfg.Int(s.config, "parallel", 4)
	sem := streamprim.NewAdaptiveSemaphore(parallel, parallel)

	type result struct {
		idx  int
		rows row.Dataset
		err  error
	}
	resultsCh := make(chan result, len(urls))
	for i, u := range urls {
		go func(i int, u string) {
			if err := sem.Acquire(ctx); err != nil {
				resultsCh <- result{idx: i, err: err}
				return
			}
			rows, err := fetchOne(ctx, client, u, s.config)
			sem.Release(err == nil)
			resultsCh <- result{idx: i, rows: rows, err: err}
		}(i, u)
	}

	ordered := make([]row.Dataset, len(urls))
	var firstErr error
	for range urls {
		r := <-resultsCh
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		ordered[r.idx] = r.rows
	}
	if firstErr != nil {
		return nil, firstErr
	}
	out := row.Dataset{}
	for _, rs := range ordered {
		out = append(out, rs...)
	}
	return out, nil
}

func (s *Step) ExecuteStream(ctx context.Context, sctx *step.Context) (<-chan step.StreamItem, error) {
	urls, err := ExpandURLs(s.config)
	if err != nil {
		return nil, err
	}
	client := newClient(s.config)
	parallel := cfg.Int(s.config, "parallel", 4)
	sem := streamprim.NewAdaptiveSemaphore(parallel, parallel)

	out := make(chan step.StreamItem)
	go func() {
		defer close(out)
		// Results are forwarded in completion order, not submission
		// order, per spec.md §4.3's fetch streaming semantics.
		done := make(chan struct{}, len(urls))
		for _, u := range urls {
			go func(u string) {
				defer func() { done <- struct{}{} }()
				if err := sem.Acquire(ctx); err != nil {
					out <- step.StreamItem{Err: err}
					return
				}
				rows, err := fetchOne(ctx, client, u, s.config)
				sem.Release(err == nil)
				if err != nil {
					out <- step.StreamItem{Err: err}
					return
				}
				for _, r := range rows {
					select {
					case out <- step.StreamItem{Row: r}:
					case <-ctx.Done():
						return
					}
				}
			}(u)
		}
		for range urls {
			<-done
		}
	}()
	return out, nil
}

func newClient(config map[string]any) *resty.Client {
	timeout := cfg.Int(config, "timeout", 30)
	client := resty.New().
		SetTimeout(time.Duration(timeout) * time.Second).
		SetHeader("Accept-Encoding", "gzip")
	for k, v := range cfg.StringMap(config, "headers") {
		client.SetHeader(k, v)
	}
	return client
}

func fetchOne(ctx context.Context, client *resty.Client, url string, config map[string]any) (row.Dataset, error) {
	method := strings.ToUpper(cfg.String(config, "method", "GET"))
	maxRetries := cfg.Int(config, "retry", 3)

	var body any
	if config["body"] != nil {
		body = config["body"]
	}

	var resp *resty.Response
	attempt := 0
	operation := func() error {
		req := client.R().SetContext(ctx)
		if body != nil {
			req = req.SetBody(body)
		}
		var err error
		switch method {
		case "POST":
			resp, err = req.Post(url)
		default:
			resp, err = req.Get(url)
		}
		attempt++
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 300 {
			statusErr := fmt.Errorf("fetch: %s returned %d", url, resp.StatusCode())
			if resp.StatusCode() < 500 {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		return nil
	}

	b := &fixedExponential{attempt: 0, base: 500 * time.Millisecond}
	retrier := backoff.WithMaxRetries(b, uint64(maxRetries))
	if err := backoff.Retry(operation, retrier); err != nil {
		return nil, fmt.Errorf("fetch: %s: %w", url, err)
	}
	return decodeResponse(url, resp, config)
}

// fixedExponential implements backoff.BackOff with the exact
// 0.5 * 2^attempt policy spec.md §4.3 calls for, instead of the
// library's default jittered curve.
type fixedExponential struct {
	attempt int
	base    time.Duration
}

func (b *fixedExponential) NextBackOff() time.Duration {
	d := time.Duration(float64(b.base) * pow2(b.attempt))
	b.attempt++
	return d
}

func (b *fixedExponential) Reset() { b.attempt = 0 }

func pow2(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 2
	}
	return f
}

func decodeResponse(url string, resp *resty.Response, config map[string]any) (row.Dataset, error) {
	ct := resp.Header().Get("Content-Type")
	body := resp.Body()

	var decoded any
	if strings.Contains(ct, "json") {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("fetch: %s: invalid json response: %w", url, err)
		}
	} else {
		nr := row.NewRow()
		nr.Set("_url", row.String(url))
		nr.Set("_body", row.String(string(body)))
		return row.Dataset{nr}, nil
	}

	extract := cfg.String(config, "extract", "")
	if extract != "" {
		extracted, err := jsonPathExtract(decoded, extract)
		if err != nil {
			return nil, fmt.Errorf("fetch: %s: extract: %w", url, err)
		}
		decoded = extracted
	}
	return toRows(decoded), nil
}

func jsonPathExtract(decoded any, expr string) (any, error) {
	b, err := yaml.Marshal(decoded)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, err
	}
	path, err := jsonpath.NewPath(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath %q: %w", expr, err)
	}
	nodes := path.Query(&node)
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		var v any
		if err := n.Decode(&v); err != nil {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// toRows converts extracted/decoded JSON into rows: a list becomes one
// row per element, a dict becomes a single row, a scalar becomes
// {value: x}.
func toRows(v any) row.Dataset {
	switch t := v.(type) {
	case []any:
		out := make(row.Dataset, 0, len(t))
		for _, e := range t {
			out = append(out, toRows(e)...)
		}
		return out
	case map[string]any:
		return row.Dataset{row.NewRowFromMap(t)}
	default:
		nr := row.NewRow()
		nr.Set("value", row.FromAny(t))
		return row.Dataset{nr}
	}
}

// ExpandURLs expands `{start..end}` and `{a,b,c}` patterns in the
// configured url/urls before any network activity begins, matching
// spec.md §4.3's "URL pattern expansion happens before concurrency".
func ExpandURLs(config map[string]any) ([]string, error) {
	var templates []string
	if u := cfg.String(config, "url", ""); u != "" {
		templates = append(templates, u)
	}
	templates = append(templates, cfg.Strings(config, "urls")...)
	if len(templates) == 0 {
		return nil, fmt.Errorf("fetch: requires \"url\" or \"urls\"")
	}
	out := []string{}
	for _, t := range templates {
		expanded, err := expandOne(t)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expandOne(pattern string) ([]string, error) {
	start := strings.IndexByte(pattern, '{')
	end := strings.IndexByte(pattern, '}')
	if start < 0 || end < 0 || end < start {
		return []string{pattern}, nil
	}
	prefix, inner, suffix := pattern[:start], pattern[start+1:end], pattern[end+1:]

	if parts := strings.Split(inner, ".."); len(parts) == 2 {
		if lo, err1 := strconv.Atoi(parts[0]); err1 == nil {
			if hi, err2 := strconv.Atoi(parts[1]); err2 == nil {
				out := make([]string, 0, hi-lo+1)
				for i := lo; i <= hi; i++ {
					out = append(out, fmt.Sprintf("%s%d%s", prefix, i, suffix))
				}
				return out, nil
			}
		}
	}
	// {a,b,c} alternation.
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, prefix+p+suffix)
	}
	return out, nil
}
