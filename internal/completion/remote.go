package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/edit"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/tracing"
)

// sourceResult collects the items of one remote source. done is closed
// once the query finished, successfully or not.
type sourceResult struct {
	source string
	mu     sync.Mutex
	items  []protocol.CompletionItem
	done   chan struct{}
}

func (r *sourceResult) set(items []protocol.CompletionItem) {
	r.mu.Lock()
	r.items = items
	r.mu.Unlock()
}

func (r *sourceResult) get() []protocol.CompletionItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items
}

// queryKind names the remote lookup needed for the element under the cursor.
func queryKind(name string) string {
	switch name {
	case "groupId":
		return "groupId"
	case "version":
		return "version"
	default:
		return "artifactId"
	}
}

func (a *Aggregator) sources(p *position) []string {
	if p.Model != nil {
		if urls := p.Model.RepositoryURLs(); len(urls) > 0 {
			return urls
		}
	}
	return []string{a.defaultSource}
}

// fanOut queries every source of the project concurrently. Sources that
// answer before the completion deadline contribute their items in
// configuration order. Slower ones contribute a placeholder and keep
// running in the background, so a later request finds them ready.
func (a *Aggregator) fanOut(ctx context.Context, p *position, pluginsOnly bool) []protocol.CompletionItem {
	if a.remote == nil {
		return nil
	}
	kind := queryKind(p.el.Name)
	sources := a.sources(p)
	results := make([]*sourceResult, len(sources))
	for i, source := range sources {
		r := &sourceResult{source: source, done: make(chan struct{})}
		results[i] = r
		go a.query(ctx, p, kind, pluginsOnly, r)
	}

	timer := time.NewTimer(a.deadline)
	defer timer.Stop()
wait:
	for _, r := range results {
		select {
		case <-r.done:
		case <-timer.C:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	var items []protocol.CompletionItem
	for _, r := range results {
		select {
		case <-r.done:
			items = append(items, r.get()...)
		default:
			items = append(items, placeholder(r.source))
			if a.metrics != nil {
				a.metrics.PlaceholdersTotal.WithLabelValues(r.source).Inc()
			}
		}
	}
	return items
}

func (a *Aggregator) query(ctx context.Context, p *position, kind string, pluginsOnly bool, r *sourceResult) {
	defer close(r.done)
	qctx, span := tracing.StartChildSpan(context.WithoutCancel(ctx), "remote."+kind)
	span.SetAttr("source", r.source)
	defer span.End()

	err := resilience.WithTimeout(qctx, a.queryTimeout, "remote "+kind+" query", func(qctx context.Context) error {
		items, err := a.remoteItems(qctx, p, kind, pluginsOnly, r.source)
		if err != nil {
			return err
		}
		if qctx.Err() == nil {
			r.set(items)
		}
		return nil
	})
	outcome := "done"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timed_out"
	case err != nil:
		outcome = "failed"
	}
	if a.metrics != nil {
		a.metrics.RemoteQueriesTotal.WithLabelValues(kind, outcome).Inc()
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		logger.FromContext(ctx).Warn("remote query failed", "source", r.source, "kind", kind, "error", err)
	}
}

func (a *Aggregator) remoteItems(ctx context.Context, p *position, kind string, pluginsOnly bool, source string) ([]protocol.CompletionItem, error) {
	switch kind {
	case "groupId":
		groups, err := a.remote.GroupIDs(ctx, source, p.declaration, pluginsOnly)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.CompletionItem, 0, len(groups))
		for _, g := range groups {
			items = append(items, edit.Closing(p.edit, g, g))
		}
		return items, nil
	case "version":
		versions, err := a.remote.Versions(ctx, source, p.declaration, pluginsOnly, nil)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.CompletionItem, 0, len(versions))
		for i, v := range versions {
			item := edit.Value(p.edit, v.String(), "", protocol.CompletionItemKindValue)
			// newest first, whatever the client's label ordering
			item.SortText = fmt.Sprintf("%05d", i)
			items = append(items, item)
		}
		return items, nil
	default:
		partial := p.declaration
		ins := edit.InsertionFor(p.el)
		if p.el.Name != "artifactId" {
			partial = coordinate.Coordinate{}
		}
		artifacts, err := a.remote.ArtifactIDs(ctx, source, partial, pluginsOnly)
		if err != nil {
			return nil, err
		}
		items := make([]protocol.CompletionItem, 0, len(artifacts))
		for _, info := range artifacts {
			items = append(items, edit.GAV(p.edit, ins, info))
		}
		return items, nil
	}
}

func placeholder(source string) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:      "Updating index for " + source,
		Kind:       protocol.CompletionItemKindEvent,
		Preselect:  true,
		InsertText: "",
	}
}
