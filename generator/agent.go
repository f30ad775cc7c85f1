package generator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Agent generates proposal sections: prompt, upstream call, then formatting.
type Agent struct {
	client   *Client
	registry *Registry
	opts     Options
	now      func() time.Time
	log      *slog.Logger
}

func NewAgent(client *Client, registry *Registry, opts Options) (*Agent, error) {
	if client == nil {
		return nil, errors.New("generation client is required")
	}
	if registry == nil {
		return nil, errors.New("section registry is required")
	}
	return &Agent{
		client:   client,
		registry: registry,
		opts:     opts,
		now:      time.Now,
		log:      slog.Default().With("component", "generator.agent"),
	}, nil
}

func (a *Agent) Registry() *Registry { return a.registry }

// GenerateSection produces one section. With prev set it produces the next version of that
// section and passes feedback to the model.
func (a *Agent) GenerateSection(ctx context.Context, req Requirements, key string, prev *Section, feedback string) (Section, error) {
	def, err := a.registry.Lookup(key)
	if err != nil {
		return Section{}, err
	}

	prompt := BuildSectionPrompt(req, def)
	version := 1
	if prev != nil {
		prompt = BuildRevisionPrompt(req, def, prev.Content, feedback)
		version = prev.Version + 1
	}

	start := a.now()
	raw, err := a.client.Generate(ctx, prompt, a.opts)
	if err != nil {
		return Section{}, err
	}
	res, err := PostProcess(raw, def)
	if err != nil {
		return Section{}, &Error{Kind: KindGeneric, Attempts: 1, Err: err}
	}

	status := StatusComplete
	if !res.Conforms {
		status = StatusNeedsReview
	}
	a.log.Info("section generated", "section", key, "version", version, "status", status, "took", a.now().Sub(start))
	return Section{
		Key:         def.Key,
		Title:       def.Title,
		Content:     res.Content,
		Status:      status,
		GeneratedAt: a.now(),
		Version:     version,
	}, nil
}

// GenerateAll generates the given sections concurrently and waits for all of them. Each
// goroutine writes only its own slot. On failure the first error in key order is returned.
func (a *Agent) GenerateAll(ctx context.Context, req Requirements, keys []string) (map[string]Section, error) {
	keys = dedupe(keys)
	for _, k := range keys {
		if _, err := a.registry.Lookup(k); err != nil {
			return nil, err
		}
	}

	results := make([]Section, len(keys))
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i], errs[i] = a.GenerateSection(ctx, req, key, nil, "")
		}(i, key)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			a.log.Error("section generation failed", "section", keys[i], "err", err)
			return nil, err
		}
	}
	out := make(map[string]Section, len(keys))
	for _, s := range results {
		out[s.Key] = s
	}
	return out, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
