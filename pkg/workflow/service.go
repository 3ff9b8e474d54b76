package workflow

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
	"github.com/xhad/greenlens/pkg/chunker"
	"github.com/xhad/greenlens/pkg/extractor"
)

// claimQuery is the retrieval prompt that pulls claim-bearing chunks back
// out of the index before extraction.
const claimQuery = "ESG claims: emissions targets, carbon neutrality, renewable energy, " +
	"waste and water commitments, labor conditions, board governance"

// indexWorkers bounds the embedding fan-out within one indexing stage.
const indexWorkers = 4

// DocumentExtractor is pkg/extractor's surface as the workflow sees it.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, format models.DocumentFormat) (extractor.Extraction, error)
}

// ClaimExtractor is pkg/claims' surface as the workflow sees it.
type ClaimExtractor interface {
	Extract(ctx context.Context, docID string, hits []types.IndexHit) ([]models.Claim, error)
}

// ClaimResolver is pkg/xref's surface as the workflow sees it.
type ClaimResolver interface {
	Resolve(claim models.Claim, company *models.Company) []models.Signal
}

type Deps struct {
	Extractor DocumentExtractor
	Chunker   chunker.Chunker
	Index     types.EmbeddingIndex
	Retriever types.Retriever
	Claims    ClaimExtractor
	// Resolver is invoked once per run so the externally maintained rule
	// table is reloaded between runs, never mid-run.
	Resolver func() (ClaimResolver, error)
	// Metrics is optional; without it claims resolve rule-only.
	Metrics types.MetricsProvider
}

type ServiceConfig struct {
	Retry   RetryPolicy
	Weights ScoreWeights
	TopK    int
}

// Service owns the run registry and executes the scoring state machine.
// Runs for different documents execute concurrently; stages within one run
// are strictly sequential.
type Service struct {
	config ServiceConfig
	deps   Deps
	logger *zap.Logger

	mu        sync.Mutex
	runs      map[string]*Run // by run id, terminal runs included
	active    map[string]*Run // by document id, non-terminal only
	companies map[string]*models.Company
}

func NewService(config ServiceConfig, deps Deps, logger *zap.Logger) *Service {
	if config.TopK == 0 {
		config.TopK = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:    config,
		deps:      deps,
		logger:    logger,
		runs:      make(map[string]*Run),
		active:    make(map[string]*Run),
		companies: make(map[string]*models.Company),
	}
}

// Submit registers a new run for the document and starts it. A document
// with a non-terminal run is rejected with ErrAnalysisInProgress; once that
// run reaches a terminal state a fresh submission succeeds with a new run id.
func (s *Service) Submit(ctx context.Context, data []byte, format models.DocumentFormat, companyID string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", faults.ErrExtractionFailed)
	}

	docID := fmt.Sprintf("%x", sha256.Sum256(data))[:16]

	s.mu.Lock()
	if existing, ok := s.active[docID]; ok && !existing.Terminal() {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: run %s", faults.ErrAnalysisInProgress, existing.ID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := newRun(uuid.NewString(), docID, companyID, cancel)
	s.runs[run.ID] = run
	s.active[docID] = run
	s.mu.Unlock()

	s.logger.Info("run submitted",
		zap.String("run_id", run.ID),
		zap.String("document_id", docID),
		zap.String("company_id", companyID),
		zap.String("format", string(format)))

	go s.execute(runCtx, run, data, format)

	return run.ID, nil
}

func (s *Service) run(runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", faults.ErrNotFound, runID)
	}
	return run, nil
}

func (s *Service) Status(runID string) (Status, error) {
	run, err := s.run(runID)
	if err != nil {
		return Status{}, err
	}
	return run.Status(), nil
}

// Result returns the assessment of a terminal successful run and ErrNotReady
// otherwise. Failures come back as the structured summary on Status, never
// as a panic across the API boundary.
func (s *Service) Result(runID string) (*models.Assessment, error) {
	run, err := s.run(runID)
	if err != nil {
		return nil, err
	}
	return run.Assessment()
}

// Cancel requests cooperative cancellation; the run stops at the next stage
// checkpoint, never mid external call.
func (s *Service) Cancel(runID string) error {
	run, err := s.run(runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	run.cancel()
	return nil
}

// Company returns the shared company record, creating it on first use.
func (s *Service) Company(id string) *models.Company {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[id]; ok {
		return c
	}
	c := models.NewCompany(id, id)
	s.companies[id] = c
	return c
}

type stageDef struct {
	name Stage
	fn   func(ctx context.Context) error
}

func (s *Service) execute(ctx context.Context, run *Run, data []byte, format models.DocumentFormat) {
	defer func() {
		run.cancel()
		s.mu.Lock()
		if s.active[run.DocumentID] == run {
			delete(s.active, run.DocumentID)
		}
		s.mu.Unlock()
	}()

	var (
		doc     models.Document
		chunks  []models.Chunk
		hits    []types.IndexHit
		found   []models.Claim
		signals map[string][]models.Signal
	)

	stages := []stageDef{
		{StageExtracting, func(ctx context.Context) error {
			ext, err := s.deps.Extractor.Extract(ctx, data, format)
			if err != nil {
				return err
			}
			doc = models.Document{
				ID:         run.DocumentID,
				CompanyID:  run.CompanyID,
				Format:     format,
				SHA256:     fmt.Sprintf("%x", sha256.Sum256(data)),
				Text:       ext.Text,
				Method:     ext.Method,
				PageCount:  ext.PageCount,
				Pages:      ext.Pages,
				IngestedAt: time.Now(),
			}
			return nil
		}},
		{StageChunked, func(ctx context.Context) error {
			chunks = s.deps.Chunker.Chunk(doc.ID, doc.Text, doc.Pages)
			return nil
		}},
		{StageIndexing, func(ctx context.Context) error {
			// A chunk that fails to embed is a stage failure, not a silent
			// skip: a missing chunk would degrade retrieval recall without
			// anyone noticing.
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(indexWorkers)
			for _, chunk := range chunks {
				chunk := chunk
				g.Go(func() error {
					_, err := s.deps.Index.Insert(gctx, chunk, run.CompanyID)
					return err
				})
			}
			return g.Wait()
		}},
		{StageRetrieving, func(ctx context.Context) error {
			var err error
			hits, err = s.deps.Retriever.Retrieve(ctx, claimQuery, s.config.TopK,
				types.IndexFilter{DocumentID: doc.ID})
			return err
		}},
		{StageClaimExtraction, func(ctx context.Context) error {
			var err error
			found, err = s.deps.Claims.Extract(ctx, doc.ID, hits)
			return err
		}},
		{StageCrossReferencing, func(ctx context.Context) error {
			resolver, err := s.deps.Resolver()
			if err != nil {
				return err
			}

			company := s.Company(run.CompanyID)
			if company != nil && company.Snapshot() == nil && s.deps.Metrics != nil {
				snap, err := s.deps.Metrics.Fetch(ctx, company.ID)
				switch {
				case errors.Is(err, faults.ErrNotFound):
					s.logger.Warn("no verified metrics for company, resolving rule-only",
						zap.String("run_id", run.ID),
						zap.String("company_id", company.ID))
				case err != nil:
					return err
				default:
					company.ReplaceSnapshot(snap)
				}
			}

			signals = make(map[string][]models.Signal, len(found))
			for _, claim := range found {
				signals[claim.ID] = resolver.Resolve(claim, company)
			}
			return nil
		}},
		{StageAggregating, func(ctx context.Context) error {
			run.complete(Aggregate(doc.ID, doc.Method, found, signals, s.config.Weights))
			return nil
		}},
	}

	for _, stage := range stages {
		// Cooperative cancellation checkpoint: runs stop between stages,
		// never mid external call. Chunks and embeddings already written
		// stay valid for a future re-analysis.
		if ctx.Err() != nil {
			run.fail(stage.name, 0, faults.ErrCancelled)
			s.logger.Info("run cancelled",
				zap.String("run_id", run.ID),
				zap.String("stage", string(stage.name)))
			return
		}

		run.enterStage(stage.name)
		started := time.Now()

		attempts, err := s.config.Retry.Do(ctx,
			func(attempt int, err error) {
				run.markRetrying(stage.name, attempt)
				s.logger.Warn("stage retrying",
					zap.String("run_id", run.ID),
					zap.String("stage", string(stage.name)),
					zap.Int("attempt", attempt),
					zap.Error(err))
			},
			stage.fn)

		if err != nil {
			if errors.Is(err, faults.ErrCancelled) {
				run.fail(stage.name, attempts, faults.ErrCancelled)
				s.logger.Info("run cancelled",
					zap.String("run_id", run.ID),
					zap.String("stage", string(stage.name)))
				return
			}
			run.fail(stage.name, attempts, err)
			s.logger.Error("run failed",
				zap.String("run_id", run.ID),
				zap.String("stage", string(stage.name)),
				zap.String("kind", string(faults.KindOf(err))),
				zap.Int("attempts", attempts),
				zap.Error(err))
			return
		}

		run.succeedStage(stage.name, attempts)
		s.logger.Debug("stage succeeded",
			zap.String("run_id", run.ID),
			zap.String("stage", string(stage.name)),
			zap.Duration("took", time.Since(started)))
	}

	s.logger.Info("run completed",
		zap.String("run_id", run.ID),
		zap.String("document_id", run.DocumentID))
}
