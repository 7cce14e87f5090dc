// Package chat answers questions from retrieved document chunks.
package chat

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat.go -package=mocks github.com/hyperjump/hoidap/internal/chat Retriever,Generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/hoidap/internal/config"
	"github.com/hyperjump/hoidap/internal/embedding"
	"github.com/hyperjump/hoidap/internal/llm"
	"github.com/hyperjump/hoidap/internal/models"
	"github.com/hyperjump/hoidap/internal/vectorstore"
	"github.com/hyperjump/hoidap/pkg/utils"
	"go.uber.org/zap"
)

// Canned answers.
const (
	MsgNotInitialized = "Lỗi: Chatbot chưa được khởi tạo."
	MsgApology        = "Xin lỗi, đã có lỗi xảy ra khi xử lý câu hỏi của bạn."
)

// ErrLLMUnavailable means the language model failed its startup probe.
var ErrLLMUnavailable = errors.New("language model unavailable")

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]*models.RetrievedChunk, error)
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Session is an initialized question answering chain.
type Session struct {
	retriever Retriever
	generator Generator
	store     *vectorstore.Store
	logger    *zap.Logger
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger *zap.Logger
	store  *vectorstore.Store
}

// WithLogger sets the logger used for failures inside Respond.
func WithLogger(l *zap.Logger) Option {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStore makes Initialize use an already loaded store instead of loading one.
func WithStore(s *vectorstore.Store) Option {
	return func(o *sessionOptions) { o.store = s }
}

// NewSession assembles a session from its collaborators.
func NewSession(retriever Retriever, generator Generator, opts ...Option) *Session {
	o := &sessionOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return &Session{retriever: retriever, generator: generator, store: o.store, logger: o.logger}
}

// Initialize loads the vector store, connects to the language model and
// returns a ready session. The store is closed if the model check fails.
func Initialize(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, opts ...Option) (*Session, error) {
	o := &sessionOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = vectorstore.Load(ctx, cfg, embedder, vectorstore.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
	}

	client, err := llm.New(cfg.LLM)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrLLMUnavailable, client.Model(), err)
	}
	o.logger.Info("language model ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", client.Model()))

	return &Session{
		retriever: store.AsRetriever(cfg.Retrieval.TopK),
		generator: client,
		store:     store,
		logger:    o.logger,
	}, nil
}

// Close releases the session's store, if it owns one.
func (s *Session) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Respond answers query. It never returns an error: failures are logged and
// turned into a canned answer with no sources.
func (s *Session) Respond(ctx context.Context, query string) (resp models.ChatResponse) {
	if s == nil || s.retriever == nil || s.generator == nil {
		return models.ChatResponse{Answer: MsgNotInitialized, Sources: []string{}}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while answering", zap.Any("panic", r), zap.String("query", utils.Truncate(query, 120)))
			resp = apology()
		}
	}()

	chunks, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		s.logger.Error("retrieval failed", zap.Error(err), zap.String("query", utils.Truncate(query, 120)))
		return apology()
	}

	texts := make([]string, 0, len(chunks))
	labels := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Record.Content)
		labels = append(labels, SourceLabel(c.Record.Metadata))
	}
	prompt, err := BuildPrompt(strings.Join(texts, "\n\n"), query)
	if err != nil {
		s.logger.Error("prompt failed", zap.Error(err))
		return apology()
	}

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("generation failed", zap.Error(err), zap.String("query", utils.Truncate(query, 120)))
		return apology()
	}
	s.logger.Debug("answered", zap.Int("chunks", len(chunks)), zap.Int("answer_len", len(answer)))

	return models.ChatResponse{Answer: strings.TrimSpace(answer), Sources: DedupeSources(labels)}
}

func apology() models.ChatResponse {
	return models.ChatResponse{Answer: MsgApology, Sources: []string{}}
}
