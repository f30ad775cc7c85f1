package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"proposal_wizard/generator"
	"proposal_wizard/publisher"
	"proposal_wizard/server"
	"proposal_wizard/store"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config.json")
	serve := flag.Bool("serve", false, "start web server")
	addr := flag.String("addr", "", "http listen address when --serve (overrides config.server_addr)")
	verbose := flag.Bool("v", false, "enable debug logs")
	exportID := flag.String("export", "", "export the proposal with this id and exit")
	exportFormat := flag.String("format", "docx", "export format: html or docx")
	out := flag.String("out", "", "export output path (defaults to the generated filename)")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *serve, *addr, *exportID, *exportFormat, *out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, serve bool, addr, exportID, exportFormat, out string) error {
	if !serve && exportID == "" {
		return fmt.Errorf("nothing to do: pass --serve or --export <proposal id>")
	}

	cfg, err := publisher.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer kv.Close()
	proposals := store.NewProposals(kv)

	registry, err := generator.DefaultRegistry()
	if err != nil {
		return err
	}
	fetcher := publisher.NewImageFetcher(proposals, time.Duration(cfg.Export.FetchTimeoutSeconds)*time.Second)
	exporter := publisher.NewExporter(registry, fetcher)

	if exportID != "" {
		return exportProposal(ctx, proposals, registry, exporter, exportID, exportFormat, out)
	}

	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	client, err := generator.NewClient(llm, generator.WithRateLimit(cfg.LLM.RequestsPerMinute))
	if err != nil {
		return err
	}
	agent, err := generator.NewAgent(client, registry, generator.Options{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		MaxRetries:  cfg.LLM.MaxRetries,
	})
	if err != nil {
		return err
	}
	srv, err := server.New(agent, proposals, exporter)
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if addr != "" {
		listen = addr
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting web server", "addr", listen, "provider", cfg.LLM.Provider, "store", cfg.Store.Driver)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func exportProposal(ctx context.Context, proposals *store.Proposals, registry *generator.Registry, exporter *publisher.Exporter, id, formatName, out string) error {
	f, err := publisher.ParseFormat(formatName)
	if err != nil {
		return err
	}
	prop, ok, err := proposals.Proposal(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("proposal %s not found", id)
	}

	images := make(map[string][]generator.Image)
	for _, def := range registry.Sections() {
		if !def.Images {
			continue
		}
		list, err := proposals.Images(ctx, id, def.Key)
		if err != nil {
			return err
		}
		if len(list) > 0 {
			images[def.Key] = list
		}
	}

	art, err := exporter.Export(ctx, prop, images, f)
	if err != nil {
		return err
	}
	if art == nil {
		return fmt.Errorf("proposal %s is not ready for export: every section and image must be approved", id)
	}
	if out == "" {
		out = art.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, art.Data, 0o644); err != nil {
		return err
	}
	slog.Info("export written", "proposal", id, "format", f, "path", out, "bytes", len(art.Data))
	fmt.Println(out)
	return nil
}

func buildLLM(cfg publisher.Config) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	}
	switch cfg.LLM.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "anthropic":
		if settings.BaseURL == "" {
			settings.BaseURL = generator.AnthropicBaseURL
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}
