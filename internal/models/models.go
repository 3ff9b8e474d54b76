package models

import (
	"sync/atomic"
	"time"
)

type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatHTML DocumentFormat = "html"
)

type ExtractionMethod string

const (
	MethodNative ExtractionMethod = "native"
	MethodOCR    ExtractionMethod = "ocr"
)

// PageSpan maps a page number to its character range in the extracted text.
type PageSpan struct {
	Number int
	Start  int
	End    int
}

// Document is immutable once extraction has succeeded.
type Document struct {
	ID         string
	CompanyID  string
	Format     DocumentFormat
	SHA256     string
	Text       string
	Method     ExtractionMethod
	PageCount  int
	Pages      []PageSpan
	IngestedAt time.Time
}

// Chunk is a bounded span of a document's extracted text. Chunks are created
// once by the chunker and never mutated.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Start      int
	End        int
	Page       int
}

// EmbeddingRecord binds a chunk to the vector produced by one embedding
// model version. A new model version yields a new record, never an overwrite.
type EmbeddingRecord struct {
	ChunkID      string
	ModelVersion string
	Vector       []float32
}

type MetricValue struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	Unit  string    `json:"unit"`
	AsOf  time.Time `json:"as_of"`
}

// MetricSnapshot is a point-in-time view of a company's verified metrics.
// Snapshots are replaced whole, never patched.
type MetricSnapshot struct {
	CompanyID string                 `json:"company_id"`
	Metrics   map[string]MetricValue `json:"metrics"`
	FetchedAt time.Time              `json:"fetched_at"`
}

func (s *MetricSnapshot) Metric(name string) (MetricValue, bool) {
	if s == nil {
		return MetricValue{}, false
	}
	v, ok := s.Metrics[name]
	return v, ok
}

// Company carries the verified metric snapshot shared by all of its
// documents. ReplaceSnapshot swaps the whole snapshot atomically so a
// concurrent workflow run never observes a half-updated one.
type Company struct {
	ID      string
	Name    string
	Aliases []string

	snapshot atomic.Pointer[MetricSnapshot]
}

func NewCompany(id, name string, aliases ...string) *Company {
	return &Company{ID: id, Name: name, Aliases: aliases}
}

func (c *Company) Snapshot() *MetricSnapshot {
	if c == nil {
		return nil
	}
	return c.snapshot.Load()
}

func (c *Company) ReplaceSnapshot(s *MetricSnapshot) {
	c.snapshot.Store(s)
}

type ClaimCategory string

const (
	CategoryEmissions  ClaimCategory = "emissions"
	CategoryEnergy     ClaimCategory = "energy"
	CategoryWater      ClaimCategory = "water"
	CategoryWaste      ClaimCategory = "waste"
	CategoryLabor      ClaimCategory = "labor"
	CategoryGovernance ClaimCategory = "governance"
	CategoryOther      ClaimCategory = "other"
)

// Categories lists the claim taxonomy in the order it is presented to the
// generation backend.
func Categories() []ClaimCategory {
	return []ClaimCategory{
		CategoryEmissions,
		CategoryEnergy,
		CategoryWater,
		CategoryWaste,
		CategoryLabor,
		CategoryGovernance,
		CategoryOther,
	}
}

// ParseCategory normalizes free-form category text; anything outside the
// taxonomy maps to CategoryOther.
func ParseCategory(s string) ClaimCategory {
	for _, c := range Categories() {
		if string(c) == s {
			return c
		}
	}
	return CategoryOther
}

// Claim is a discrete ESG assertion extracted from a document. ChunkIDs is
// the ordered, non-empty set of supporting chunks.
type Claim struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Text       string        `json:"text"`
	Category   ClaimCategory `json:"category"`
	ChunkIDs   []string      `json:"chunk_ids"`
	Confidence float64       `json:"confidence"`
}

type Relation string

const (
	RelationSupports     Relation = "supports"
	RelationContradicts  Relation = "contradicts"
	RelationUnverifiable Relation = "unverifiable"
)

type SignalSource string

const (
	SourceMetric SignalSource = "metric"
	SourceRule   SignalSource = "rule"
)

// Signal is the outcome of comparing one claim against a verified metric or
// a static rule.
type Signal struct {
	ClaimID  string       `json:"claim_id"`
	RuleID   string       `json:"rule_id"`
	Relation Relation     `json:"relation"`
	Strength float64      `json:"strength"`
	Source   SignalSource `json:"source"`
	Detail   string       `json:"detail,omitempty"`
}

// ScoredClaim is a claim with its aggregate contribution to the document
// score and the full evidence set behind it.
type ScoredClaim struct {
	Claim        Claim    `json:"claim"`
	Contribution float64  `json:"contribution"`
	Signals      []Signal `json:"signals"`
}

// Assessment is the terminal output of one workflow run. Method records how
// the document text was obtained, so a reader can weigh OCR-derived evidence
// accordingly.
type Assessment struct {
	DocumentID  string           `json:"document_id"`
	Method      ExtractionMethod `json:"extraction_method"`
	Score       float64          `json:"score"`
	Confidence  float64          `json:"confidence"`
	Claims      []ScoredClaim    `json:"claims"`
	Explanation string           `json:"explanation"`
}

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role     ChatRole  `json:"role"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
	ChunkIDs []string  `json:"chunk_ids,omitempty"`
}
