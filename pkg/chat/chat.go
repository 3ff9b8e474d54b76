// Package chat answers questions about analyzed documents, grounded in the
// same retrieval index the scoring pipeline writes. Every answer cites the
// chunks it drew on; a citation outside the retrieved set is rejected rather
// than served.
package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/greenlens/internal/faults"
	"github.com/xhad/greenlens/internal/models"
	"github.com/xhad/greenlens/internal/types"
)

const systemPrompt = `You are an assistant answering questions about a company's
sustainability report and its greenwashing analysis.

Rules:
- Answer ONLY from the provided report excerpts and analysis summary.
- Cite every factual statement with the excerpt id in the form [chunk <id>].
- If the excerpts do not contain the answer, say so plainly.
- Do not speculate about data that was not provided.`

var citationPattern = regexp.MustCompile(`\[chunk ([^\]\s]+)\]`)

// Session is an append-only conversation bound to one analyzed document.
// Messages are never edited or removed once appended.
type Session struct {
	ID         string
	DocumentID string
	CompanyID  string
	CreatedAt  time.Time

	mu       sync.RWMutex
	messages []models.ChatMessage
}

func (s *Session) append(m models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// History returns a copy of the transcript in arrival order.
func (s *Session) History() []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

type Config struct {
	TopK       int // default 6
	MaxHistory int // turns carried into the prompt, default 8
}

// Service orchestrates retrieval-grounded chat over analyzed documents.
type Service struct {
	config    Config
	retriever types.Retriever
	generator types.GenerationClient
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(config Config, retriever types.Retriever, generator types.GenerationClient, logger *zap.Logger) *Service {
	if config.TopK == 0 {
		config.TopK = 6
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:    config,
		retriever: retriever,
		generator: generator,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Open starts a session scoped to one document. Questions in this session
// retrieve only from that document's chunks.
func (s *Service) Open(documentID, companyID string) *Session {
	session := &Session{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		CompanyID:  companyID,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("chat session opened",
		zap.String("session_id", session.ID),
		zap.String("document_id", documentID))

	return session
}

func (s *Service) Session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", faults.ErrNotFound, id)
	}
	return session, nil
}

// Ask appends the question, retrieves supporting chunks, generates an
// answer, and appends it. The question stays in the transcript even when
// generation fails, so a retried Ask sees the full history.
func (s *Service) Ask(ctx context.Context, session *Session, question string) (models.ChatMessage, error) {
	return s.ask(ctx, session, question, nil)
}

// AskStream behaves like Ask but forwards generation output to onChunk as it
// arrives. Citation verification still runs on the complete answer, so a
// streamed answer can be rejected after chunks were already delivered.
func (s *Service) AskStream(ctx context.Context, session *Session, question string, onChunk func(string)) (models.ChatMessage, error) {
	return s.ask(ctx, session, question, onChunk)
}

func (s *Service) ask(ctx context.Context, session *Session, question string, onChunk func(string)) (models.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.ChatMessage{}, fmt.Errorf("%w: empty question", faults.ErrMalformedGeneration)
	}

	session.append(models.ChatMessage{
		Role: models.RoleUser,
		Text: question,
		Time: time.Now(),
	})

	hits, err := s.retriever.Retrieve(ctx, question, s.config.TopK,
		types.IndexFilter{DocumentID: session.DocumentID})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := s.generate(ctx, s.buildPrompt(session, question, hits), onChunk)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("generating answer: %w", err)
	}
	answer = strings.TrimSpace(answer)

	cited, err := verifyCitations(answer, hits)
	if err != nil {
		return models.ChatMessage{}, err
	}

	msg := models.ChatMessage{
		Role:     models.RoleAssistant,
		Text:     answer,
		Time:     time.Now(),
		ChunkIDs: cited,
	}
	session.append(msg)

	s.logger.Debug("answered",
		zap.String("session_id", session.ID),
		zap.Int("retrieved", len(hits)),
		zap.Int("cited", len(cited)))

	return msg, nil
}

// generate routes through the backend's streaming path when one was
// requested and the backend supports it; otherwise the whole answer counts
// as a single chunk.
func (s *Service) generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if onChunk == nil {
		return s.generator.Generate(ctx, systemPrompt, prompt)
	}
	if sg, ok := s.generator.(types.StreamingGenerationClient); ok {
		return sg.GenerateStream(ctx, systemPrompt, prompt, onChunk)
	}
	answer, err := s.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	onChunk(answer)
	return answer, nil
}

func (s *Service) buildPrompt(session *Session, question string, hits []types.IndexHit) string {
	var b strings.Builder

	b.WriteString("Report excerpts:\n\n")
	if len(hits) == 0 {
		b.WriteString("(no relevant excerpts were found)\n")
	}
	for _, hit := range hits {
		fmt.Fprintf(&b, "[chunk %s] (page %d)\n%s\n\n", hit.Chunk.ID, hit.Chunk.Page, hit.Chunk.Text)
	}

	history := session.History()
	if n := len(history); n > s.config.MaxHistory {
		history = history[n-s.config.MaxHistory:]
	}
	if len(history) > 1 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history[:len(history)-1] {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// verifyCitations extracts the chunk ids the answer cites and fails on any
// id outside the retrieved set. An answer with no citations is allowed; one
// with invented citations is not.
func verifyCitations(answer string, hits []types.IndexHit) ([]string, error) {
	known := make(map[string]bool, len(hits))
	for _, hit := range hits {
		known[hit.Chunk.ID] = true
	}

	var cited []string
	seen := make(map[string]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		id := m[1]
		if !known[id] {
			return nil, fmt.Errorf("%w: answer cites unknown chunk %s", faults.ErrUnverifiedCitation, id)
		}
		if !seen[id] {
			seen[id] = true
			cited = append(cited, id)
		}
	}
	return cited, nil
}
