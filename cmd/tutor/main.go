package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tutor/internal/config"
	"tutor/internal/corpus"
	"tutor/internal/domain"
	embedollama "tutor/internal/embedding/ollama"
	"tutor/internal/ingest"
	"tutor/internal/lifecycle"
	llmollama "tutor/internal/llm/ollama"
	"tutor/internal/logging"
	"tutor/internal/planner"
	"tutor/internal/prompt"
	"tutor/internal/service"
	"tutor/internal/session"
	"tutor/internal/tui"
	"tutor/internal/vectorstore"
	"tutor/internal/vectorstore/memory"
	"tutor/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath    string
		query      string
		forceReset bool
		lessonFlag int
		sublFlag   int
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/tutor/config.yaml if not provided)")
	flag.StringVar(&query, "q", "", "Answer a single question and exit instead of starting the chat interface")
	flag.BoolVar(&forceReset, "reset", false, "Wipe the collection and re-ingest before answering")
	flag.IntVar(&lessonFlag, "lesson", 0, "Explicit lesson filter override")
	flag.IntVar(&sublFlag, "sublesson", 0, "Explicit sublesson filter override")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging.File, cfg.Logging.Debug)
	defer logger.Sync()

	svc, err := assemble(cfg, logger)
	if err != nil {
		log.Fatalf("failed to assemble components: %v", err)
	}

	ctx := context.Background()
	if forceReset || cfg.Collection.ForceReset {
		if err := svc.Reset(ctx); err != nil {
			log.Fatalf("force reset failed: %v", err)
		}
		logger.Info("collection reset at startup")
	}

	// Startup check: populate the collection before the first question.
	if err := svc.Ensure(ctx); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			log.Fatalf("corpus validation failed: %v", err)
		}
		logger.Warn("startup populate failed, will retry on first query", zap.Error(err))
	}

	explicit := domain.Filter{Lesson: lessonFlag, Sublesson: sublFlag}
	if query != "" {
		if err := runOnce(ctx, svc, query, explicit); err != nil {
			log.Fatalf("failed to answer: %v", err)
		}
		return
	}

	_, count, _ := svc.Status(ctx)
	status := fmt.Sprintf("Collection %q holds %d chunks. Type /help for commands.", cfg.Collection.Name, count)
	m := tui.New(svc, status)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}

func assemble(cfg *config.AppConfig, logger *zap.Logger) (*service.TutorService, error) {
	var store vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "memory", "":
		store = memory.NewStorage()
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		store = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.Collection.Name,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	embedder, err := embedollama.NewEmbedder(cfg.Ollama.Host, cfg.Ollama.EmbeddingModel,
		time.Duration(cfg.Ollama.TimeoutSecs)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("embedder init: %w", err)
	}
	generator, err := llmollama.NewClient(cfg.Ollama.Host, cfg.Ollama.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("chat client init: %w", err)
	}

	source := corpus.NewFile(cfg.Corpus.Path)
	pipeline := ingest.NewPipeline(source, embedder, store, cfg.Retrieval.BatchSize, logger)
	collState := &domain.CollectionState{Collection: cfg.Collection.Name}
	controller := lifecycle.NewController(collState, store, pipeline, logger)

	history := session.NewHistory()
	orch := session.NewOrchestrator(generator, history)
	pl := planner.New(store, embedder, cfg.Retrieval.TopK)
	as := prompt.New(cfg.Prompt.HistoryWindow, cfg.Prompt.BudgetChars)

	return service.NewTutorService(controller, pl, as, orch, history, store,
		cfg.Retrieval.DegradeOnStoreError, logger), nil
}

func runOnce(ctx context.Context, svc *service.TutorService, question string, explicit domain.Filter) error {
	answer, err := svc.Ask(ctx, question, explicit, func(fragment string) {
		fmt.Print(fragment)
	})
	fmt.Println()
	if err != nil {
		if answer != nil && answer.Text != "" {
			fmt.Fprintln(os.Stderr, "(answer incomplete)")
		}
		return err
	}
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range answer.Sources {
			fmt.Printf("  %d. Lesson %d / Sublesson %d: %s\n",
				src.Rank, src.Chunk.Lesson, src.Chunk.Sublesson, src.Chunk.Topic)
		}
	} else if !answer.Filter.IsEmpty() {
		fmt.Printf("\nNo textbook content matched %s.\n", answer.Filter)
	}
	return nil
}
