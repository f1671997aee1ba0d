package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/simplifychat/backend/internal/cache"
	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
	"github.com/zhouzirui/simplifychat/backend/internal/service/ai"
)

var (
	ErrNoMessages  = errors.New("conversation has no messages to summarize")
	ErrUnavailable = errors.New("summarization is not configured")
)

// ConversationLoader loads a conversation with its messages.
type ConversationLoader interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*chat.Conversation, error)
}

// Summarizer produces summaries from a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, participants []string, messages []chat.Message) (*chat.Summary, error)
	Stream(ctx context.Context, participants []string, messages []chat.Message) (*schema.StreamReader[*schema.Message], error)
}

// Config tunes caching and the upstream call deadline.
type Config struct {
	// TTL of cached summaries; 0 disables caching.
	TTL time.Duration
	// Timeout bounds a single upstream call; 0 means no extra deadline.
	Timeout time.Duration
}

// Service orchestrates summary requests: load, cache lookup, collapse duplicates, summarize.
type Service struct {
	loader     ConversationLoader
	summarizer Summarizer
	cache      cache.Cache
	cfg        Config
	group      singleflight.Group
}

// NewService builds the summary service. summarizer and c may be nil.
func NewService(loader ConversationLoader, summarizer Summarizer, c cache.Cache, cfg Config) *Service {
	return &Service{loader: loader, summarizer: summarizer, cache: c, cfg: cfg}
}

// Enabled reports whether a summarizer is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.summarizer != nil
}

type cachedSummary struct {
	Fingerprint string       `json:"fingerprint"`
	Summary     chat.Summary `json:"summary"`
}

// Summarize returns the summary of the conversation, from cache when its messages are unchanged.
// Concurrent calls for the same conversation state share one upstream request.
func (s *Service) Summarize(ctx context.Context, id uuid.UUID) (*chat.Summary, error) {
	conv, err := s.prepare(ctx, id)
	if err != nil {
		return nil, err
	}

	fingerprint := conv.Fingerprint()
	if cached, ok := s.lookup(ctx, id, fingerprint); ok {
		return cached, nil
	}

	v, err, shared := s.group.Do(id.String()+"/"+fingerprint, func() (any, error) {
		// Detached so one caller going away does not fail the others sharing this call.
		callCtx, cancel := s.upstreamContext(context.WithoutCancel(ctx))
		defer cancel()

		summary, err := s.summarizer.Summarize(callCtx, conv.Participants, conv.Messages)
		if err != nil {
			return nil, err
		}
		s.save(callCtx, id, fingerprint, summary)
		return summary, nil
	})
	if err != nil {
		log.Printf("[summary] conversation=%s failed: %v", id, err)
		return nil, err
	}
	if shared {
		log.Printf("[summary] conversation=%s served from a shared upstream call", id)
	}

	return cloneSummary(v.(*chat.Summary)), nil
}

// Stream summarizes the conversation while passing raw model deltas to onDelta.
// A cached summary is returned without any deltas.
func (s *Service) Stream(ctx context.Context, id uuid.UUID, onDelta func(delta string) error) (*chat.Summary, error) {
	conv, err := s.prepare(ctx, id)
	if err != nil {
		return nil, err
	}

	fingerprint := conv.Fingerprint()
	if cached, ok := s.lookup(ctx, id, fingerprint); ok {
		return cached, nil
	}

	callCtx, cancel := s.upstreamContext(ctx)
	defer cancel()

	reader, err := s.summarizer.Stream(callCtx, conv.Participants, conv.Messages)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var full strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ai.ErrUpstream, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				return nil, err
			}
		}
	}

	summary, err := ai.ParseSummary(full.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrUpstream, err)
	}
	s.save(ctx, id, fingerprint, summary)
	return summary, nil
}

// Invalidate drops the cached summary of a conversation.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(id)); err != nil {
		log.Printf("[summary] cache invalidate conversation=%s: %v", id, err)
	}
}

func (s *Service) prepare(ctx context.Context, id uuid.UUID) (*chat.Conversation, error) {
	if !s.Enabled() {
		return nil, ErrUnavailable
	}
	conv, err := s.loader.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(conv.Messages) == 0 {
		return nil, ErrNoMessages
	}
	return conv, nil
}

func (s *Service) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) lookup(ctx context.Context, id uuid.UUID, fingerprint string) (*chat.Summary, bool) {
	if s.cache == nil || s.cfg.TTL <= 0 {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("[summary] cache get conversation=%s: %v", id, err)
		}
		return nil, false
	}

	var entry cachedSummary
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Printf("[summary] cache entry for conversation=%s is corrupt: %v", id, err)
		return nil, false
	}
	if entry.Fingerprint != fingerprint {
		return nil, false
	}
	return cloneSummary(&entry.Summary), true
}

func (s *Service) save(ctx context.Context, id uuid.UUID, fingerprint string, summary *chat.Summary) {
	if s.cache == nil || s.cfg.TTL <= 0 {
		return
	}

	raw, err := json.Marshal(cachedSummary{Fingerprint: fingerprint, Summary: *summary})
	if err != nil {
		log.Printf("[summary] cache encode conversation=%s: %v", id, err)
		return
	}
	if err := s.cache.Set(ctx, cacheKey(id), string(raw), s.cfg.TTL); err != nil {
		log.Printf("[summary] cache set conversation=%s: %v", id, err)
	}
}

func cacheKey(id uuid.UUID) string {
	return "summary:" + id.String()
}

func cloneSummary(in *chat.Summary) *chat.Summary {
	out := &chat.Summary{
		Summary:     in.Summary,
		KeyPoints:   append([]string{}, in.KeyPoints...),
		ActionItems: append([]string{}, in.ActionItems...),
	}
	return out
}
