package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"xhs_copycat/config"
	"xhs_copycat/generator"
	"xhs_copycat/logger"
	"xhs_copycat/metrics"
	"xhs_copycat/publisher"
	"xhs_copycat/server"
)

// 退出码：2 输入校验失败，1 其他错误。
const (
	exitFatal      = 1
	exitValidation = 2
)

func main() {
	configPath := flag.String("config", "", "path to config file (.json/.yaml/.toml)")
	name := flag.String("name", "", "product name")
	price := flag.String("price", "", "product price")
	product := flag.String("product", "", "path to product image")
	posts := flag.String("posts", "", "comma separated paths to competitor post screenshots")
	reviews := flag.String("reviews", "", "comma separated paths to review screenshots")
	titles := flag.String("titles", "", "path to a text file of popular titles")
	keywords := flag.String("keywords", "", "path to a text file of search keywords")
	outDir := flag.String("out", "", "export report files into this directory")
	mock := flag.Bool("mock", false, "use the offline mock model")
	serve := flag.Bool("serve", false, "start web server")
	addr := flag.String("addr", "", "http listen address when --serve (overrides config.server_addr)")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	if *mock {
		_ = os.Setenv("LLM_PROVIDER", "mock")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log := logger.Setup(level, os.Stderr)

	agent, reg, err := buildAgent(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("init failed")
		os.Exit(exitFatal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Web server mode
	if *serve {
		srv, err := server.New(agent, log, reg,
			server.WithExporter(publisher.New(log, agent.Catalog()), cfg.OutputDir))
		if err != nil {
			log.Error().Err(err).Msg("init server failed")
			os.Exit(exitFatal)
		}
		listen := cfg.ServerAddr
		if *addr != "" {
			listen = *addr
		}
		if err := listenAndServe(ctx, listen, srv.Routes(), log); err != nil {
			log.Error().Err(err).Msg("server stopped")
			os.Exit(exitFatal)
		}
		return
	}

	in, err := buildInput(*name, *price, *product, *posts, *reviews, *titles, *keywords)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitValidation)
	}

	pipeline := generator.NewPipeline(agent, log, reg)
	pipeline.SetProgressCallback(func(p generator.Progress) {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", p.State, p.Message)
	})
	res, err := pipeline.Run(ctx, in)
	if err != nil {
		var verr *generator.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, verr)
			os.Exit(exitValidation)
		}
		log.Error().Err(err).Msg("pipeline failed")
		os.Exit(exitFatal)
	}

	if *outDir != "" {
		dir, err := publisher.New(log, agent.Catalog()).Publish(res, *outDir)
		if err != nil {
			log.Error().Err(err).Msg("export failed")
			os.Exit(exitFatal)
		}
		log.Info().Str("dir", dir).Msg("report exported")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Error().Err(err).Msg("encode result")
		os.Exit(exitFatal)
	}
}

func buildAgent(cfg *config.Config, log zerolog.Logger) (*generator.Agent, *metrics.Registry, error) {
	llm, err := buildLLM(cfg)
	if err != nil {
		return nil, nil, err
	}
	catalog := generator.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = generator.LoadCatalog(cfg.CatalogPath); err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.CatalogPath).Msg("catalog loaded")
	}
	reg := metrics.NewRegistry()
	agent, err := generator.NewAgent(llm,
		generator.WithCatalog(catalog),
		generator.WithLogger(log),
		generator.WithMetrics(reg),
	)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("model backend ready")
	return agent, reg, nil
}

func buildLLM(cfg *config.Config) (generator.LLMClient, error) {
	switch cfg.LLM.Provider {
	case "mock":
		return generator.MockLLM{}, nil
	case "openai", "openrouter", "deepseek":
		// 三者均为 OpenAI 兼容接口，差异只在 base_url 与请求头。
		settings := cfg.Settings()
		if cfg.LLM.Provider != "openrouter" {
			settings.Referer, settings.AppTitle = "", ""
		}
		return generator.NewOpenAILLMFromConfig(&settings)
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func buildInput(name, price, product, posts, reviews, titles, keywords string) (generator.Input, error) {
	in := generator.Input{Product: generator.ProductFacts{Name: name, Price: price}}
	if product == "" {
		return in, errors.New("--product is required")
	}
	var err error
	if in.Product.Image, err = readImage(product); err != nil {
		return in, err
	}
	if in.Posts, err = readImages(posts); err != nil {
		return in, err
	}
	if in.Reviews, err = readImages(reviews); err != nil {
		return in, err
	}
	if in.Corpus.Titles, err = readText(titles); err != nil {
		return in, err
	}
	if in.Corpus.Keywords, err = readText(keywords); err != nil {
		return in, err
	}
	return in, nil
}

func readImages(list string) ([]generator.Image, error) {
	var out []generator.Image
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		img, err := readImage(p)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func readImage(path string) (generator.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return generator.Image{}, err
	}
	return generator.Image{Name: filepath.Base(path), Data: data}, nil
}

func readText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func listenAndServe(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting web server")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return srv.Shutdown(context.Background())
	}
}
