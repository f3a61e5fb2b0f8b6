package board

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

// ExplainClient requests saliency explanations.
type ExplainClient interface {
	Explain(ctx context.Context, descripcion string) (*api.Explanation, error)
}

// Fetcher retrieves saliency explanations on demand and caches one result
// per patient for the process lifetime. Concurrent requests for the same
// patient are not deduplicated; the last result to land stays cached.
// Callers are expected to disable their trigger while a request runs.
type Fetcher struct {
	client  ExplainClient
	logger  log.Logger
	metrics *Metrics

	mu    sync.Mutex
	cache map[string]*api.Explanation // patient key -> explanation
}

// NewFetcher creates an explanation fetcher. metrics may be nil.
func NewFetcher(client ExplainClient, logger log.Logger, metrics *Metrics) *Fetcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Fetcher{
		client:  client,
		logger:  logger,
		metrics: metrics,
		cache:   make(map[string]*api.Explanation),
	}
}

// Explanation returns the saliency explanation for a patient's free-text
// description, fetching it on first use and from cache afterwards. cached
// reports whether a network round-trip was skipped.
func (f *Fetcher) Explanation(ctx context.Context, p *api.Patient) (expl *api.Explanation, cached bool, err error) {
	key := p.Key()

	f.mu.Lock()
	if e, ok := f.cache[key]; ok {
		f.mu.Unlock()
		if f.metrics != nil {
			f.metrics.ExplainsTotal.WithLabelValues("cached").Inc()
		}
		return e, true, nil
	}
	f.mu.Unlock()

	start := time.Now()
	e, err := f.client.Explain(ctx, p.Descripcion)
	if f.metrics != nil {
		f.metrics.ExplainDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if f.metrics != nil {
			f.metrics.ExplainsTotal.WithLabelValues("error").Inc()
		}
		return nil, false, fmt.Errorf("explanation for %s: %w", key, err)
	}

	f.mu.Lock()
	f.cache[key] = e
	f.mu.Unlock()

	f.logger.Info(ctx, "explanation cached", "patient", key, "tokens", len(e.ShapTexto))
	if f.metrics != nil {
		f.metrics.ExplainsTotal.WithLabelValues("fetched").Inc()
	}
	return e, false, nil
}

// DisplayToken is one explanation token prepared for display.
type DisplayToken struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Positive bool    `json:"positive"`
}

// subwordMarker is the tokenizer's word-start marker that leaks into the
// explanation payload.
const subwordMarker = "▁"

// DisplayTokens strips tokenizer markers and drops tokens whose trimmed
// text is a single character or less. Positive classification follows the
// sign of the saliency score.
func DisplayTokens(e *api.Explanation) []DisplayToken {
	out := make([]DisplayToken, 0, len(e.ShapTexto))
	for _, ts := range e.ShapTexto {
		text := strings.TrimSpace(strings.ReplaceAll(ts.Token, subwordMarker, ""))
		if len([]rune(text)) <= 1 {
			continue
		}
		out = append(out, DisplayToken{
			Text:     text,
			Score:    ts.Shap,
			Positive: ts.Shap > 0,
		})
	}
	return out
}
