package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/repopilot/repopilot/internal/api"
	"github.com/repopilot/repopilot/internal/catalog"
	"github.com/repopilot/repopilot/internal/common"
	"github.com/repopilot/repopilot/internal/common/process"
	"github.com/repopilot/repopilot/internal/ingest"
	"github.com/repopilot/repopilot/internal/llm"
	"github.com/repopilot/repopilot/internal/pipeline"
	"github.com/repopilot/repopilot/internal/retriever"
	"github.com/repopilot/repopilot/internal/snapshot"
	"github.com/repopilot/repopilot/internal/vector"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("repopilot: .env file not loaded", "error", err)
	} else {
		logger.Info("repopilot: environment loaded from .env")
	}

	startChromaDefault := false
	if env := strings.TrimSpace(os.Getenv("REPOPILOT_START_CHROMA")); env != "" {
		if parsed, err := strconv.ParseBool(env); err == nil {
			startChromaDefault = parsed
		}
	}

	addr := flag.String("addr", ":8080", "listen address")
	reposDir := flag.String("repos", defaultReposDir(), "directory holding repository snapshots")
	catalogPath := flag.String("catalog", defaultCatalogPath(), "path to the SQLite catalog database")
	startChroma := flag.Bool("start-chroma", startChromaDefault, "launch a local ChromaDB server alongside the service")
	flag.Parse()

	logger.Info("repopilot: startup initiated", "addr", *addr, "repos", *reposDir)

	snapshots, err := snapshot.NewManager(*reposDir)
	if err != nil {
		logger.Error("repopilot: snapshot manager init failed", "error", err)
		fmt.Println("snapshot manager error:", err)
		os.Exit(1)
	}

	registry, err := catalog.Open(*catalogPath)
	if err != nil {
		logger.Error("repopilot: catalog open failed", "error", err)
		fmt.Println("catalog error:", err)
		os.Exit(1)
	}
	defer registry.Close()

	provider := llm.NewProvider()
	logger.Info("repopilot: llm provider ready", "provider", provider.Name(), "generative", provider.Generative())

	vectorCfg := vector.LoadConfig()
	if *startChroma {
		svc, err := startChromaService(ctx, vectorCfg)
		if err != nil {
			logger.Error("repopilot: chromadb launch failed", "error", err)
			fmt.Println("chromadb launch error:", err)
			os.Exit(1)
		}
		defer svc.Stop(context.Background())
	}

	vectorClient := vector.New(ctx, vectorCfg)
	if vectorClient.Available() {
		logger.Info("repopilot: chromadb available")
	} else {
		logger.Warn("repopilot: chromadb unreachable; ingestion will fail until it is up")
	}

	ingestor := ingest.NewService(snapshots, provider, vectorClient, registry)
	coordinator := retriever.New(provider, vectorClient)
	asker := pipeline.New(coordinator, provider)

	server := api.NewServer(ingestor, asker, registry, provider)

	logger.Info("repopilot: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("repopilot: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("repopilot: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

// startChromaService launches the bundled ChromaDB server and waits for its
// heartbeat. CHROMADB_COMMAND overrides the binary name.
func startChromaService(ctx context.Context, cfg vector.Config) (*process.ManagedService, error) {
	command := strings.TrimSpace(os.Getenv("CHROMADB_COMMAND"))
	if command == "" {
		command = "chroma"
	}
	dataPath := strings.TrimSpace(os.Getenv("CHROMADB_DATA_PATH"))
	if dataPath == "" {
		dataPath = filepath.Join("data", "chroma")
	}
	return process.Start(ctx, process.ServiceConfig{
		Name:     "chromadb",
		Command:  command,
		Args:     []string{"run", "--host", cfg.Host, "--port", cfg.Port, "--path", dataPath},
		ReadyURL: fmt.Sprintf("%s://%s:%s/api/v1/heartbeat", cfg.Scheme, cfg.Host, cfg.Port),
		Logger:   common.Logger(),
	})
}

func defaultReposDir() string {
	if env := strings.TrimSpace(os.Getenv("REPOPILOT_REPOS_DIR")); env != "" {
		return env
	}
	return filepath.Join("data", "repos")
}

func defaultCatalogPath() string {
	if env := strings.TrimSpace(os.Getenv("CATALOG_DB_PATH")); env != "" {
		return env
	}
	return filepath.Join("data", "catalog.db")
}
