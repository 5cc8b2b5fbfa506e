package api

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"galleryclean/internal/storage"
)

// PromptHost stands in for the host UI. Authorizations it is asked to
// present are queued until a client answers them over HTTP.
type PromptHost struct {
	logger zerolog.Logger

	mu      sync.Mutex
	prompts map[string]*storage.Authorization
}

func NewPromptHost(logger zerolog.Logger) *PromptHost {
	return &PromptHost{
		logger:  logger,
		prompts: make(map[string]*storage.Authorization),
	}
}

func (p *PromptHost) PresentAuthorization(ctx context.Context, auth *storage.Authorization) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.prompts[auth.ID] = auth
	p.mu.Unlock()

	p.logger.Info().
		Str("authorization", auth.ID).
		Int("items", len(auth.Locators)).
		Msg("deletion awaiting confirmation")
	return nil
}

// List returns the open prompts, oldest first.
func (p *PromptHost) List() []*storage.Authorization {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*storage.Authorization, 0, len(p.prompts))
	for _, a := range p.prompts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Take removes and returns the prompt with the given id.
func (p *PromptHost) Take(id string) (*storage.Authorization, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.prompts[id]
	delete(p.prompts, id)
	return a, ok
}
