package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
	"github.com/xhad/greenlens/pkg/chat"
	"github.com/xhad/greenlens/pkg/chunker"
	"github.com/xhad/greenlens/pkg/claims"
	cfgPkg "github.com/xhad/greenlens/pkg/config"
	"github.com/xhad/greenlens/pkg/extractor"
	"github.com/xhad/greenlens/pkg/index"
	"github.com/xhad/greenlens/pkg/llm"
	"github.com/xhad/greenlens/pkg/metrics"
	"github.com/xhad/greenlens/pkg/retrieval"
	"github.com/xhad/greenlens/pkg/rules"
	"github.com/xhad/greenlens/pkg/workflow"
	"github.com/xhad/greenlens/pkg/xref"
	"github.com/xhad/greenlens/server"
)

type Config struct {
	BaseURL            string
	DBUrl              string
	File               string
	Format             string
	Company            string
	Model              string
	EmbedModel         string
	OCRBaseURL         string
	OCRTimeout         time.Duration
	OCRRateLimit       float64
	MinCharsPerPage    int
	MetricsURL         string
	RulesPath          string
	TableName          string
	VectorDim          int
	BatchSize          int
	ChunkSize          int
	ChunkOverlap       int
	TopK               int
	MinSimilarity      float64
	MaxTokens          int
	Temperature        float64
	RateLimit          float64
	MaxAttempts        int
	MinBackoff         time.Duration
	MaxBackoff         time.Duration
	ContradictsWeight  float64
	UnverifiableWeight float64
	SupportsWeight     float64
	RuleScale          float64
	Streaming          bool
	Serve              string
}

func main() {
	config := parseFlags()

	if err := run(config); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() Config {
	var config Config
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&config.BaseURL, "ollama-url", os.Getenv("OLLAMA_BASE_URL"), "Ollama server URL")
	flag.StringVar(&config.DBUrl, "db-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&config.File, "file", "", "Sustainability report to analyze (pdf or html)")
	flag.StringVar(&config.Format, "format", "", "Document format (pdf or html, inferred from extension when empty)")
	flag.StringVar(&config.Company, "company", "", "Company identifier for metric cross-referencing")
	flag.StringVar(&config.Model, "model", "llama3", "LLM model to use")
	flag.StringVar(&config.EmbedModel, "embed-model", "nomic-embed-text", "Embedding model to use")
	flag.StringVar(&config.OCRBaseURL, "ocr-url", os.Getenv("OCR_BASE_URL"), "OCR service URL for scanned documents")
	flag.DurationVar(&config.OCRTimeout, "ocr-timeout", time.Minute, "Per-call timeout for OCR requests")
	flag.Float64Var(&config.OCRRateLimit, "ocr-rate-limit", 0.5, "Rate limit for OCR calls")
	flag.IntVar(&config.MinCharsPerPage, "min-chars-per-page", 200, "Native extraction density floor before OCR fallback")
	flag.StringVar(&config.MetricsURL, "metrics-url", os.Getenv("METRICS_BASE_URL"), "Verified metrics service URL")
	flag.StringVar(&config.RulesPath, "rules", "", "Path to greenwashing rule table (built-in rules when empty)")
	flag.StringVar(&config.TableName, "table", "embeddings", "PostgreSQL table name")
	flag.IntVar(&config.VectorDim, "vector-dim", 768, "Vector dimension")
	flag.IntVar(&config.BatchSize, "batch-size", 100, "Batch size for database operations")
	flag.IntVar(&config.ChunkSize, "chunk-size", 1000, "Size of text chunks")
	flag.IntVar(&config.ChunkOverlap, "chunk-overlap", 200, "Overlap between chunks")
	flag.IntVar(&config.TopK, "top-k", 8, "Chunks retrieved per query")
	flag.Float64Var(&config.MinSimilarity, "min-similarity", 0.3, "Similarity floor for retrieval")
	flag.IntVar(&config.MaxTokens, "max-tokens", 2000, "Maximum tokens for LLM response")
	flag.Float64Var(&config.Temperature, "temperature", 0.2, "Set the LLM temperature")
	flag.Float64Var(&config.RateLimit, "rate-limit", 2.0, "Rate limit for embedding calls")
	flag.IntVar(&config.MaxAttempts, "max-attempts", 3, "Retry attempts per workflow stage")
	flag.DurationVar(&config.MinBackoff, "min-backoff", time.Second, "Minimum retry backoff per workflow stage")
	flag.DurationVar(&config.MaxBackoff, "max-backoff", 30*time.Second, "Maximum retry backoff per workflow stage")
	flag.BoolVar(&config.Streaming, "stream", true, "Stream chat responses over the websocket")
	flag.StringVar(&config.Serve, "serve", "", "Run the HTTP server on this address instead of one-shot analysis")
	flag.Parse()

	// Load config file if specified
	if cfg, err := cfgPkg.LoadConfig(configPath); err == nil {
		applyFileConfig(&config, cfg)
	}

	return config
}

// applyFileConfig overlays file-config values onto the flag config; every
// knob the config file carries reaches the component it tunes.
func applyFileConfig(config *Config, cfg *cfgPkg.Config) {
	config.BaseURL = cfg.LLM.BaseURL
	config.Model = cfg.LLM.Model
	config.EmbedModel = cfg.LLM.EmbedModel
	config.MaxTokens = cfg.LLM.MaxTokens
	config.Temperature = cfg.LLM.Temperature
	config.RateLimit = cfg.LLM.RateLimit
	config.DBUrl = cfg.Database.URL
	config.TableName = cfg.Database.TableName
	config.VectorDim = cfg.Database.VectorDim
	config.BatchSize = cfg.Database.BatchSize
	config.OCRBaseURL = cfg.Extractor.OCRBaseURL
	config.OCRTimeout = cfg.Extractor.OCRTimeout.Std()
	config.OCRRateLimit = cfg.Extractor.OCRRateLimit
	config.MinCharsPerPage = cfg.Extractor.MinCharsPerPage
	config.ChunkSize = cfg.Chunker.ChunkSize
	config.ChunkOverlap = cfg.Chunker.ChunkOverlap
	config.TopK = cfg.Retrieval.TopK
	config.MinSimilarity = cfg.Retrieval.MinSimilarity
	config.MaxAttempts = cfg.Scoring.MaxAttempts
	config.MinBackoff = cfg.Scoring.MinBackoff.Std()
	config.MaxBackoff = cfg.Scoring.MaxBackoff.Std()
	config.ContradictsWeight = cfg.Scoring.ContradictsWeight
	config.UnverifiableWeight = cfg.Scoring.UnverifiableWeight
	config.SupportsWeight = cfg.Scoring.SupportsWeight
	config.RuleScale = cfg.Scoring.RuleScale
	config.RulesPath = cfg.Rules.Path
	config.MetricsURL = cfg.Metrics.BaseURL
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func run(config Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     config.EmbedModel,
		BaseURL:   config.BaseURL,
		RateLimit: config.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	generator, err := llm.NewGeneratorWithConfig(llm.GeneratorConfig{
		Model:       config.Model,
		MaxTokens:   config.MaxTokens,
		BaseURL:     config.BaseURL,
		Temperature: config.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %v", err)
	}

	memIndex := index.NewMemory(embedder)

	var vectorStore *index.VectorStore
	if config.DBUrl != "" {
		vectorStore, err = index.NewWithConfig(index.VectorStoreConfig{
			ConnString: config.DBUrl,
			TableName:  config.TableName,
			VectorDim:  config.VectorDim,
			BatchSize:  config.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize vector store: %v", err)
		}
		defer vectorStore.Close()

		records, err := vectorStore.Load(context.Background(), embedder.ModelVersion())
		if err != nil {
			return fmt.Errorf("failed to load persisted embeddings: %v", err)
		}
		memIndex.Seed(records)
	}

	var ocrClient types.OCRClient
	if config.OCRBaseURL != "" {
		ocrClient = extractor.NewOCRClient(extractor.OCRClientConfig{
			BaseURL:   config.OCRBaseURL,
			Timeout:   config.OCRTimeout,
			RateLimit: config.OCRRateLimit,
		}, logger)
	}

	docExtractor := extractor.NewWithConfig(extractor.ExtractorConfig{
		MinCharsPerPage: config.MinCharsPerPage,
		OCR:             ocrClient,
	}, logger)

	textChunker := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    config.ChunkSize,
		ChunkOverlap: config.ChunkOverlap,
	})

	retriever := retrieval.NewEngine(retrieval.EngineConfig{
		TopK:          config.TopK,
		MinSimilarity: config.MinSimilarity,
	}, embedder, memIndex)

	var metricsProvider types.MetricsProvider
	if config.MetricsURL != "" {
		metricsProvider = metrics.NewProvider(metrics.ProviderConfig{
			BaseURL: config.MetricsURL,
		}, logger)
	}

	rulesPath := config.RulesPath
	resolverFactory := func() (workflow.ClaimResolver, error) {
		ruleset, err := rules.Load(rulesPath)
		if err != nil {
			return nil, err
		}
		return xref.NewResolver(ruleset, logger), nil
	}

	wf := workflow.NewService(workflow.ServiceConfig{
		Retry: workflow.RetryPolicy{
			MaxAttempts: config.MaxAttempts,
			MinBackoff:  config.MinBackoff,
			MaxBackoff:  config.MaxBackoff,
		},
		Weights: workflow.ScoreWeights{
			Contradicts:  config.ContradictsWeight,
			Unverifiable: config.UnverifiableWeight,
			Supports:     config.SupportsWeight,
			RuleScale:    config.RuleScale,
		},
		TopK: config.TopK,
	}, workflow.Deps{
		Extractor: &docExtractor,
		Chunker:   textChunker,
		Index:     memIndex,
		Retriever: retriever,
		Claims:    claims.NewExtractor(generator, logger),
		Resolver:  resolverFactory,
		Metrics:   metricsProvider,
	}, logger)

	chatSvc := chat.NewService(chat.Config{TopK: config.TopK}, retriever, generator, logger)

	if config.Serve != "" {
		srv := server.New(server.Config{Streaming: config.Streaming}, wf, chatSvc, logger)
		color.Cyan("Listening on %s", config.Serve)
		return http.ListenAndServe(config.Serve, srv.Handler())
	}

	if config.File == "" {
		return fmt.Errorf("nothing to do: pass -file to analyze a report or -serve to run the server")
	}

	docID, err := analyze(wf, config)
	if err != nil {
		return err
	}

	if vectorStore != nil {
		if err := vectorStore.Flush(context.Background(), memIndex.Records()); err != nil {
			return fmt.Errorf("failed to persist embeddings: %v", err)
		}
	}

	return chatLoop(chatSvc, docID, config.Company)
}

func analyze(wf *workflow.Service, config Config) (string, error) {
	data, err := os.ReadFile(config.File)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v", config.File, err)
	}

	format := models.DocumentFormat(config.Format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(config.File)) {
		case ".pdf":
			format = models.FormatPDF
		case ".html", ".htm":
			format = models.FormatHTML
		}
	}

	color.Blue("\nAnalyzing %s\n", config.File)

	runID, err := wf.Submit(context.Background(), data, format, config.Company)
	if err != nil {
		return "", err
	}

	spinner := getSpinner("🔍 Running analysis pipeline...")
	lastStage := workflow.StageIngested
	for {
		status, err := wf.Status(runID)
		if err != nil {
			return "", err
		}
		if status.Stage != lastStage {
			spinner.Describe(color.CyanString("🔍 %s...", status.Stage))
			lastStage = status.Stage
		}
		if status.Stage == workflow.StageDone || status.Stage == workflow.StageFailed {
			break
		}
		spinner.Add(1)
		time.Sleep(200 * time.Millisecond)
	}
	spinner.Finish()
	fmt.Print("\r")

	status, err := wf.Status(runID)
	if err != nil {
		return "", err
	}
	if status.Error != nil {
		color.Red("\n✗ Analysis failed at %s after %d attempts: %s\n",
			status.Error.Stage, status.Error.Attempts, status.Error.Message)
		return "", fmt.Errorf("analysis failed")
	}

	assessment, err := wf.Result(runID)
	if err != nil {
		return "", err
	}

	color.Green("\n✓ Analysis complete\n")
	printAssessment(assessment)

	return status.DocumentID, nil
}

func printAssessment(a *models.Assessment) {
	heading := color.New(color.FgYellow, color.Bold).PrintfFunc()

	heading("\nGreenwashing score: %.2f (confidence %.2f)\n\n", a.Score, a.Confidence)
	fmt.Println(a.Explanation)

	if len(a.Claims) > 0 {
		fmt.Println()
		for _, sc := range a.Claims {
			marker := color.GreenString("·")
			if sc.Contribution >= 0.6 {
				marker = color.RedString("▲")
			} else if sc.Contribution >= 0.3 {
				marker = color.YellowString("△")
			}
			fmt.Printf("%s [%.2f] (%s) %s\n", marker, sc.Contribution, sc.Claim.Category, sc.Claim.Text)
		}
	}
}

func chatLoop(chatSvc *chat.Service, docID, company string) error {
	color.Cyan("\nAsk questions about this report (type 'exit' to quit)")

	session := chatSvc.Open(docID, company)
	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := scanner.Text()
		if strings.ToLower(query) == "exit" {
			break
		}

		spinner := getSpinner("🤖 Generating response...")
		answer, err := chatSvc.Ask(context.Background(), session, query)
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("Assistant: %s\n", answer.Text)
		if len(answer.ChunkIDs) > 0 {
			fmt.Printf("  cited: %s\n", strings.Join(answer.ChunkIDs, ", "))
		}
	}

	return nil
}
