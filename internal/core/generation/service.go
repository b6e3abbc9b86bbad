// Package generation orchestrates calls to the external post generation workflow.
//
// Flow: check configuration, call the webhook once, validate the preview image,
// normalize generatedContent, then (when a post id is given) update the post
// preview and reconcile variants. Everything after a valid upstream result is
// best-effort and cannot change the response.
package generation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"Postgen/internal/core/posts"
)

// DefaultPersistTimeout bounds each best-effort step after generation.
const DefaultPersistTimeout = 60 * time.Second

// bestEffortSteps is the number of persistence steps that can follow a successful call
const bestEffortSteps = 2

// MaxDuration is the longest Generate can run with the given timeouts: the
// upstream call followed by every best-effort step. Non-positive values use the defaults.
func MaxDuration(upstream, persist time.Duration) time.Duration {
	if upstream <= 0 {
		upstream = DefaultWebhookTimeout
	}
	if persist <= 0 {
		persist = DefaultPersistTimeout
	}
	return upstream + bestEffortSteps*persist
}

// GenerationRequest is the inbound generate call.
type GenerationRequest struct {
	CurrentPostID *string       `json:"currentPostId"`
	PostContext   string        `json:"postContext"`
	Options       posts.Options `json:"options"`
}

// GenerationResponse is returned to the caller on success.
type GenerationResponse struct {
	GeneratedContent NormalizedContent `json:"generatedContent"`
	GenerationStyle  *string           `json:"generationStyle"`
	ActionButton     *string           `json:"actionButton"`
	PreviewImage     string            `json:"previewImage"`
}

// PostUpdater applies the preview update to a stored post.
type PostUpdater interface {
	UpdatePost(ctx context.Context, id string, update posts.PostUpdate) (*posts.Post, error)
}

// VariantReconciler persists normalized content as numbered variants.
type VariantReconciler interface {
	Reconcile(ctx context.Context, postID string, content NormalizedContent) (NormalizedContent, error)
}

// Service generates post content.
type Service interface {
	// Generate returns a *Error for every failure.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
}

type service struct {
	generator       Generator
	posts           PostUpdater
	reconciler      VariantReconciler
	metrics         *Metrics
	logger          *zap.Logger
	upstreamTimeout time.Duration
	persistTimeout  time.Duration
}

// Option configures the generation service.
type Option func(*service)

// WithMetrics records pipeline metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *service) { s.metrics = m }
}

// WithTimeouts overrides the upstream and per-step persistence timeouts.
func WithTimeouts(upstream, persist time.Duration) Option {
	return func(s *service) {
		if upstream > 0 {
			s.upstreamTimeout = upstream
		}
		if persist > 0 {
			s.persistTimeout = persist
		}
	}
}

// NewService creates the orchestrator. postUpdater and reconciler may be nil,
// which disables the matching post-generation step.
func NewService(generator Generator, postUpdater PostUpdater, reconciler VariantReconciler, logger *zap.Logger, opts ...Option) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{
		generator:       generator,
		posts:           postUpdater,
		reconciler:      reconciler,
		logger:          logger.Named("generation"),
		upstreamTimeout: DefaultWebhookTimeout,
		persistTimeout:  DefaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs the generation pipeline.
// The upstream call is detached from ctx cancellation so a client disconnect does
// not abandon a generation that is already running remotely.
func (s *service) Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error) {
	postID := ""
	if req.CurrentPostID != nil {
		postID = strings.TrimSpace(*req.CurrentPostID)
	}

	if s.generator == nil || !s.generator.Configured() {
		return nil, s.fail(classify(ErrNotConfigured, req.Options.ActionButton), postID)
	}

	s.logger.Info("[GENERATE] Calling generation webhook", zap.String("post_id", postIDOrNew(postID)))

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.upstreamTimeout)
	defer cancel()

	var currentPostID *string
	if postID != "" {
		currentPostID = &postID
	}

	started := time.Now()
	raw, err := s.generator.Generate(callCtx, WebhookRequest{
		PostContext:   req.PostContext,
		Options:       req.Options,
		CurrentPostID: currentPostID,
	})
	s.metrics.observeUpstream(time.Since(started))
	if err != nil {
		return nil, s.fail(classify(err, req.Options.ActionButton), postID)
	}

	previewImage, ok := raw.PreviewImage.(string)
	if !ok || strings.TrimSpace(previewImage) == "" {
		return nil, s.fail(classify(ErrInvalidResponse, req.Options.ActionButton), postID)
	}

	content := Normalize(raw.GeneratedContent)

	var generationStyle *string
	if style, ok := raw.GenerationStyle.(string); ok {
		generationStyle = &style
	}

	s.logger.Info("[GENERATE] Generation succeeded",
		zap.String("post_id", postIDOrNew(postID)),
		zap.String("style", styleFor(generationStyle, req.Options.ActionButton)),
		zap.Int("slots", len(content)))

	if postID != "" {
		if s.posts != nil {
			s.bestEffort(ctx, StepUpdatePreview, postID, s.persistTimeout, func(stepCtx context.Context) error {
				_, err := s.posts.UpdatePost(stepCtx, postID, posts.PostUpdate{
					PreviewImage:          &previewImage,
					ClearGeneratedContent: true,
				})
				return err
			})
		}
		if s.reconciler != nil {
			s.bestEffort(ctx, StepReconcileVariant, postID, s.persistTimeout, func(stepCtx context.Context) error {
				final, err := s.reconciler.Reconcile(stepCtx, postID, content)
				if final != nil {
					content = final
				}
				return err
			})
		}
	}

	s.metrics.observeRequest("success")

	return &GenerationResponse{
		GeneratedContent: content,
		PreviewImage:     previewImage,
		GenerationStyle:  generationStyle,
		ActionButton:     req.Options.ActionButton,
	}, nil
}

func (s *service) fail(genErr *Error, postID string) *Error {
	s.metrics.observeRequest(string(genErr.Code))
	s.logger.Error("[GENERATE] Generation failed",
		zap.String("post_id", postIDOrNew(postID)),
		zap.String("error_code", string(genErr.Code)),
		zap.Error(genErr.Err))
	return genErr
}

func postIDOrNew(postID string) string {
	if postID == "" {
		return "new post"
	}
	return postID
}

func styleFor(generationStyle, actionButton *string) string {
	if generationStyle != nil && *generationStyle != "" {
		return *generationStyle
	}
	return styleName(actionButton)
}
