// Package memory is the command surface of schemamem. A Service ties the
// schema store, the parser, the query resolver and the execution engine
// together into remember, recall and the administrative operations.
//
// Requests are processed one at a time; every store and model call is
// awaited before the next one starts.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/engine"
	"github.com/rcliao/schemamem/internal/intent"
	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/query"
	"github.com/rcliao/schemamem/internal/schema"
	"github.com/rcliao/schemamem/internal/store"
)

// DefaultAnswerBudget is the character budget for items handed to answer
// synthesis (roughly 4 characters per token).
const DefaultAnswerBudget = 16000

// Options configure a Service.
type Options struct {
	// LLM is the language model. nil means no model is configured; features
	// that need one fail with llm.ErrMissingAPIKey.
	LLM llm.Completer
	// AutoInit seeds the predefined categories on the first write to a store
	// that has no schemas.
	AutoInit bool
	// DefaultIntent routes prompts the classifier cannot place.
	DefaultIntent intent.Kind
	// DefaultLimit caps recall results when the request sets no limit.
	DefaultLimit int
	// AnswerBudget is the character budget for answer synthesis.
	AnswerBudget int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Service implements the memory operations over one backend.
type Service struct {
	backend    store.Backend
	schemas    *schema.Store
	catalog    *schema.Catalog
	inferrer   *schema.Inferrer
	parser     *schema.Parser
	resolver   *query.Resolver
	engine     *engine.Engine
	classifier *intent.Classifier
	llm        llm.Completer

	autoInit     bool
	defaultLimit int
	answerBudget int
	now          func() time.Time
}

// New creates a Service on b.
func New(b store.Backend, opts Options) *Service {
	c := opts.LLM
	if c == nil {
		c = llm.Unavailable{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.AnswerBudget <= 0 {
		opts.AnswerBudget = DefaultAnswerBudget
	}

	catalog := schema.NewCatalog(b)
	resolver := query.NewResolver(c, catalog, b)
	resolver.Now = now
	return &Service{
		backend:      b,
		schemas:      schema.NewStore(b),
		catalog:      catalog,
		inferrer:     schema.NewInferrer(c),
		parser:       schema.NewParser(c),
		resolver:     resolver,
		engine:       engine.New(b).WithClock(now),
		classifier:   intent.NewClassifier(c, opts.DefaultIntent),
		llm:          c,
		autoInit:     opts.AutoInit,
		defaultLimit: opts.DefaultLimit,
		answerBudget: opts.AnswerBudget,
		now:          now,
	}
}

// Backend returns the underlying store.
func (s *Service) Backend() store.Backend {
	return s.backend
}

// ensureInit seeds the predefined categories when auto-init is on and the
// store has no schemas at all.
func (s *Service) ensureInit(ctx context.Context) error {
	if !s.autoInit {
		return nil
	}
	existing, err := s.schemas.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	created, err := s.schemas.InitPredefined(ctx, false)
	if err != nil {
		var ierr *schema.IndexError
		if !errors.As(err, &ierr) {
			return err
		}
		log.Warn("Predefined categories created without some indexes", "err", err)
	}
	log.Info("Initialized predefined categories", "categories", created)
	return nil
}
