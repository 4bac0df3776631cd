// Package conversation holds the per-session state of a question and answer
// exchange over tracked documents.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"github.com/xhad/driftrag/pkg/llm"
	"github.com/xhad/driftrag/pkg/remoteindex"
	"go.uber.org/zap"
)

// Retriever finds the chunks most relevant to a question.
type Retriever interface {
	SearchCollection(ctx context.Context, collection, query string, topK int) ([]models.RankedChunk, error)
}

type SessionConfig struct {
	Collection    string
	IndexID       string
	IndexName     string
	HistoryLength int
	TopK          int
}

type Answer struct {
	Reply   *llm.Reply
	Raw     string
	Sources []models.RankedChunk
}

// Session is one conversation. Ask and SyncDocuments are serialised so
// overlapping requests cannot interleave history updates.
type Session struct {
	mu         sync.Mutex
	config     SessionConfig
	builder    *ContextBuilder
	retriever  Retriever
	answerer   types.Answerer
	reconciler *remoteindex.Reconciler
	creator    types.IndexCreator
	log        *zap.Logger
}

type SessionOption func(*Session)

// WithRemoteIndex enables SyncDocuments. creator may be nil when the
// session is always given an IndexID.
func WithRemoteIndex(reconciler *remoteindex.Reconciler, creator types.IndexCreator) SessionOption {
	return func(s *Session) {
		s.reconciler = reconciler
		s.creator = creator
	}
}

func WithLogger(log *zap.Logger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

func NewSession(config SessionConfig, retriever Retriever, answerer types.Answerer, opts ...SessionOption) *Session {
	if config.Collection == "" {
		config.Collection = "default"
	}
	if config.HistoryLength <= 0 {
		config.HistoryLength = 10
	}

	s := &Session{
		config:    config,
		builder:   NewContextBuilder(config.HistoryLength),
		retriever: retriever,
		answerer:  answerer,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("collection", config.Collection))
	return s
}

// Ask retrieves context for question, asks the model and parses its reply.
// History gains the question and the reply summary only when all of that
// succeeds.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var retrieved []models.RankedChunk
	if s.retriever != nil {
		var err error
		retrieved, err = s.retriever.SearchCollection(ctx, s.config.Collection, question, s.config.TopK)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve context: %w", err)
		}
	}

	payload := s.builder.Preview(question, retrieved)
	raw, err := s.answerer.Answer(ctx, types.AnswerRequest{
		History:      payload.History,
		ContextBlock: payload.ContextBlock,
	})
	if err != nil {
		return nil, err
	}

	reply, err := llm.ParseReply(raw)
	if err != nil {
		s.log.Warn("discarding unparseable reply", zap.Error(err))
		return nil, err
	}
	summary, err := reply.HistoryText()
	if err != nil {
		var parseErr *types.ParseError
		if errors.As(err, &parseErr) {
			parseErr.Raw = raw
		}
		return nil, err
	}

	s.builder.AppendUserTurn(question)
	s.builder.AppendAssistantTurn(summary)

	return &Answer{Reply: reply, Raw: raw, Sources: retrieved}, nil
}

// SyncDocuments makes the session's remote index hold exactly desired,
// creating the index first if the session has none yet.
func (s *Session) SyncDocuments(ctx context.Context, desired []string) (remoteindex.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reconciler == nil {
		return remoteindex.Result{}, errors.New("session has no remote index")
	}

	if s.config.IndexID == "" {
		if s.creator == nil {
			return remoteindex.Result{}, errors.New("session has no index id and cannot create one")
		}
		name := s.config.IndexName
		if name == "" {
			name = models.SanitizeScope(s.config.Collection)
		}
		id, err := s.creator.CreateIndex(ctx, name)
		if err != nil {
			return remoteindex.Result{}, err
		}
		s.config.IndexID = id
	}

	return s.reconciler.Reconcile(ctx, s.config.IndexID, desired)
}

func (s *Session) IndexID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.IndexID
}

func (s *Session) History() []models.ConversationTurn {
	return s.builder.History().Turns()
}
