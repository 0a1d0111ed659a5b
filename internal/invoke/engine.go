package invoke

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/textwand/textwand/internal/prompt"
	"github.com/textwand/textwand/internal/provider"
)

// Attempt is one provider try within a call, recorded for diagnostics.
type Attempt struct {
	RequestID string
	Operation string
	Provider  string
	Kind      Kind
	Detail    string
	Duration  time.Duration
	At        time.Time
}

// Recorder persists attempts. Failures to record are logged, never fatal.
type Recorder interface {
	Record(a Attempt) error
}

// Cache is an optional response cache consulted before each attempt and
// populated on success.
type Cache interface {
	Get(ctx context.Context, providerID, promptText string) (string, bool)
	Put(ctx context.Context, providerID, promptText, response string)
}

// Engine resolves operations to prompts and provider chains, invokes
// providers in order, and surfaces exactly one (success, text) pair per
// call. All failure paths return (false, message); nothing here aborts the
// host process.
type Engine struct {
	registry *provider.Registry
	library  *prompt.Library
	invoker  *Invoker
	history  Recorder
	cache    Cache
}

func NewEngine(registry *provider.Registry, library *prompt.Library, invoker *Invoker) *Engine {
	return NewEngineWithStores(registry, library, invoker, nil, nil)
}

// NewEngineWithStores wires the optional attempt journal and response
// cache. Either may be nil.
func NewEngineWithStores(registry *provider.Registry, library *prompt.Library, invoker *Invoker, history Recorder, cache Cache) *Engine {
	return &Engine{
		registry: registry,
		library:  library,
		invoker:  invoker,
		history:  history,
		cache:    cache,
	}
}

// PerformOperation is the primary entry point: render the operation's
// prompt, resolve the default provider chain, and invoke providers in
// order until one succeeds.
func (e *Engine) PerformOperation(ctx context.Context, operationID, text string, params map[string]string) (bool, string) {
	if strings.TrimSpace(operationID) == "" {
		return false, "No operation specified"
	}
	if strings.TrimSpace(text) == "" {
		return false, "No text provided"
	}
	rendered, err := e.library.Render(operationID, text, params)
	if err != nil {
		return false, err.Error()
	}
	if rendered.Direct {
		return true, rendered.Message
	}
	chain, err := e.registry.ResolveChain("")
	if err != nil {
		return false, err.Error()
	}
	ok, text, _ := e.run(ctx, operationID, rendered.Prompt, chain)
	return ok, text
}

// Call invokes providers with a caller-supplied prompt, starting from
// providerID (or the default when empty) and falling back through the
// remaining enabled providers. On exhaustion the last failure's message is
// returned prefixed by its provider id.
func (e *Engine) Call(ctx context.Context, providerID, promptText string) (bool, string) {
	chain, err := e.registry.ResolveChain(providerID)
	if err != nil {
		return false, err.Error()
	}
	ok, text, lastID := e.run(ctx, "call", promptText, chain)
	if !ok {
		return false, fmt.Sprintf("%s: %s", lastID, text)
	}
	return true, text
}

// run walks the chain sequentially. Earlier failures are logged and
// journaled; only the last one is surfaced.
func (e *Engine) run(ctx context.Context, operation, promptText string, chain []provider.Spec) (ok bool, text, lastProviderID string) {
	requestID := uuid.New().String()
	var last Result
	lastID := chain[0].ID

	for i, spec := range chain {
		if i > 0 {
			observeFallback()
			log.Printf("engine: request %s: falling back to provider %s", requestID, spec.ID)
		}
		if e.cache != nil {
			if cached, hit := e.cache.Get(ctx, spec.ID, promptText); hit {
				observeCacheHit()
				log.Printf("engine: request %s: cache hit for provider %s", requestID, spec.ID)
				return true, cached, spec.ID
			}
		}

		start := time.Now()
		res := e.invoker.Invoke(ctx, spec, promptText)
		e.record(Attempt{
			RequestID: requestID,
			Operation: operation,
			Provider:  spec.ID,
			Kind:      res.Kind,
			Detail:    res.Detail,
			Duration:  time.Since(start),
			At:        start,
		})

		if res.OK {
			if e.cache != nil {
				e.cache.Put(ctx, spec.ID, promptText, res.Text)
			}
			return true, res.Text, spec.ID
		}

		log.Printf("engine: request %s: provider %s failed (%s): %s", requestID, spec.ID, res.Kind, res.Detail)
		last, lastID = res, spec.ID
		if res.Kind == KindCanceled {
			break
		}
	}
	return false, last.Detail, lastID
}

func (e *Engine) record(a Attempt) {
	if e.history == nil {
		return
	}
	if err := e.history.Record(a); err != nil {
		log.Printf("engine: recording attempt: %v", err)
	}
}
