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

// Package scrape implements the `scrape` step: HTTP GET followed by a
// minimal CSS-selector-subset extraction (`sel::text`, `sel::attr(name)`)
// over golang.org/x/net/html's parse tree. Only tag, #id, .class, and
// descendant combinators are supported — enough for the common scraping
// cases this step targets, not a full CSS engine.
package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/step"
	"github.com/riverdag/riverdag/internal/steps/fetch"
	"github.com/riverdag/riverdag/internal/streamprim"
	"github.com/riverdag/riverdag/internal/steps/cfg"
)

const StepType = "scrape"

func init() {
	step.RegisterDefault(StepType, step.Meta{
		DefaultStrategy: "async",
		IsSource:        true,
		Description:     "HTTP GET plus CSS-selector-subset extraction.",
		ConfigDocs: map[string]string{
			"url":      "a single URL, possibly a {start..end}/{a,b,c} pattern",
			"urls":     "a list of URLs, alternative to url",
			"select":   "map of output field -> \"selector::text\" or \"selector::attr(name)\"",
			"parallel": "max concurrent in-flight requests (default 4)",
		},
	}, New)
}

type Step struct {
	config map[string]any
}

func New(config map[string]any) (step.Step, error) { return &Step{config: config}, nil }

func (s *Step) Execute(ctx context.Context, sctx *step.Context) (row.Dataset, error) {
	return s.ExecuteAsync(ctx, sctx)
}

func (s *Step) ExecuteAsync(ctx context.Context, _ *step.Context) (row.Dataset, error) {
	urls, err := fetch.ExpandURLs(s.config)
	if err != nil {
		return nil, err
	}
	selectors := cfg.Map(s.config, "select")
	parallel := cfg.Int(s.config, "parallel", 4)
	sem := streamprim.NewAdaptiveSemaphore(parallel, parallel)
	client := resty.New().SetTimeout(30 * time.Second)

	results := make([]*row.Row, len(urls))
	errs := make([]error, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			if err := sem.Acquire(ctx); err != nil {
				errs[i] = err
				return
			}
			r, err := scrapeOne(ctx, client, u, selectors)
			sem.Release(err == nil)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = r
		}(i, u)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := make(row.Dataset, len(results))
	copy(out, results)
	return out, nil
}

func scrapeOne(ctx context.Context, client *resty.Client, url string, selectors map[string]any) (*row.Row, error) {
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: %w", url, err)
	}
	doc, err := html.Parse(strings.NewReader(string(resp.Body())))
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: parse: %w", url, err)
	}
	nr := row.NewRow()
	for field, specAny := range selectors {
		spec, ok := specAny.(string)
		if !ok {
			continue
		}
		sel, op := splitSpec(spec)
		node := findFirst(doc, sel)
		if node == nil {
			nr.Set(field, row.Null())
			continue
		}
		nr.Set(field, row.String(extractOp(node, op)))
	}
	return nr, nil
}

func splitSpec(spec string) (selector, op string) {
	parts := strings.SplitN(spec, "::", 2)
	if len(parts) != 2 {
		return spec, "text"
	}
	return parts[0], parts[1]
}

func extractOp(n *html.Node, op string) string {
	if op == "text" {
		return textContent(n)
	}
	if strings.HasPrefix(op, "attr(") && strings.HasSuffix(op, ")") {
		name := op[len("attr(") : len(op)-1]
		for _, a := range n.Attr {
			if a.Key == name {
				return a.Val
			}
		}
		return ""
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return strings.TrimSpace(sb.String())
}

// simpleSelector is one component of a descendant chain: tag, #id, or
// .class (a tag may carry one #id or .class suffix).
type simpleSelector struct {
	tag   string
	id    string
	class string
}

func parseSelector(sel string) []simpleSelector {
	parts := strings.Fields(sel)
	out := make([]simpleSelector, 0, len(parts))
	for _, p := range parts {
		var s simpleSelector
		switch {
		case strings.HasPrefix(p, "#"):
			s.id = p[1:]
		case strings.HasPrefix(p, "."):
			s.class = p[1:]
		default:
			if idx := strings.IndexAny(p, "#."); idx >= 0 {
				s.tag = p[:idx]
				rest := p[idx:]
				if strings.HasPrefix(rest, "#") {
					s.id = rest[1:]
				} else {
					s.class = rest[1:]
				}
			} else {
				s.tag = p
			}
		}
		out = append(out, s)
	}
	return out
}

func matches(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attrVal(n, "id") != s.id {
		return false
	}
	if s.class != "" && !hasClass(n, s.class) {
		return false
	}
	return true
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findFirst walks doc in document order looking for a node satisfying
// the full descendant chain, anchored at its last component.
func findFirst(doc *html.Node, selector string) *html.Node {
	chain := parseSelector(selector)
	if len(chain) == 0 {
		return nil
	}
	var found *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if matches(n, chain[len(chain)-1]) && satisfiesAncestors(n, chain[:len(chain)-1]) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if found != nil {
				return
			}
		}
	}
	walk(doc)
	return found
}

func satisfiesAncestors(n *html.Node, ancestors []simpleSelector) bool {
	if len(ancestors) == 0 {
		return true
	}
	want := ancestors[len(ancestors)-1]
	for p := n.Parent; p != nil; p = p.Parent {
		if matches(p, want) {
			return satisfiesAncestors(p, ancestors[:len(ancestors)-1])
		}
	}
	return false
}
