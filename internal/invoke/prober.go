package invoke

import (
	"context"
	"fmt"
	"strings"
)

// ProbePrompt is the minimal prompt used to validate provider wiring. Any
// nonblank reply counts; providers are not required to answer literally.
const ProbePrompt = "This is a connectivity test. Reply with exactly OK."

// Prober validates that a named provider is reachable and correctly
// configured by running a minimal invocation through the engine.
type Prober struct {
	engine *Engine
}

func NewProber(engine *Engine) *Prober {
	return &Prober{engine: engine}
}

func (p *Prober) Test(ctx context.Context, providerID string) (bool, string) {
	ok, text := p.engine.Call(ctx, providerID, ProbePrompt)
	if !ok {
		return false, text
	}
	if strings.TrimSpace(text) == "" {
		return false, fmt.Sprintf("%s returned an empty response", providerID)
	}
	return true, fmt.Sprintf("%s is working correctly", providerID)
}
