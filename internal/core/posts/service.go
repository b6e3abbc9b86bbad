package posts

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxPostContextLength = 20000

type postService struct {
	repo                   Repository
	images                 ImageReleaser
	validate               *validator.Validate
	logger                 *zap.Logger
	defaultPreviewImageURL string
}

// NewPostService creates a new post service
// images can be nil, in which case deleted posts leave their variant images in storage
func NewPostService(
	repo Repository,
	images ImageReleaser, // Optional: can be nil
	defaultPreviewImageURL string,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &postService{
		repo:                   repo,
		images:                 images,
		validate:               validate,
		logger:                 logger,
		defaultPreviewImageURL: defaultPreviewImageURL,
	}
}

// CreatePost creates a new post
// Flow:
// 1. Validate input
// 2. Assign an ID when the caller did not provide one
// 3. Fall back to the default preview image
// 4. Insert
func (s *postService) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	if req.PreviewImage != nil && *req.PreviewImage == "" {
		req.PreviewImage = nil
	}
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	previewImage := req.PreviewImage
	if previewImage == nil && s.defaultPreviewImageURL != "" {
		fallback := s.defaultPreviewImageURL
		previewImage = &fallback
	}

	post := &Post{
		ID:               id,
		PostContext:      req.PostContext,
		GeneratedContent: req.GeneratedContent,
		PreviewImage:     previewImage,
		Options:          req.Options,
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.logger.Info("[POST-CREATE] post created", zap.String("post_id", post.ID))
	return post, nil
}

// ListPosts returns every post, newest first
func (s *postService) ListPosts(ctx context.Context) ([]*Post, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return list, nil
}

// GetPost returns a post enriched with its variants
func (s *postService) GetPost(ctx context.Context, id string) (*Post, error) {
	if err := validatePostID(id); err != nil {
		return nil, err
	}

	post, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	variants, err := s.repo.ListVariants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants for post %s: %w", id, err)
	}
	post.Variants = variants

	return post, nil
}

// UpdatePost applies a partial update
func (s *postService) UpdatePost(ctx context.Context, id string, update PostUpdate) (*Post, error) {
	if err := validatePostID(id); err != nil {
		return nil, err
	}
	if update.PostContext != nil && len(*update.PostContext) > maxPostContextLength {
		return nil, NewValidationError("postContext",
			fmt.Sprintf("postContext too long (max %d characters)", maxPostContextLength))
	}

	post, err := s.repo.Update(ctx, id, update)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	return post, nil
}

// DeletePost removes a post and its variants
// Flow:
// 1. Collect variant image URLs (variants cascade with the post row)
// 2. Delete the post
// 3. Release owned images best-effort
func (s *postService) DeletePost(ctx context.Context, id string) error {
	if err := validatePostID(id); err != nil {
		return err
	}

	var imageURLs []string
	if s.images != nil {
		variants, err := s.repo.ListVariants(ctx, id)
		if err != nil {
			// Don't block the delete - images are only orphaned
			s.logger.Warn("[POST-DELETE] failed to list variants before delete",
				zap.String("post_id", id), zap.Error(err))
		}
		for _, v := range variants {
			if v.Image != nil && *v.Image != "" {
				imageURLs = append(imageURLs, *v.Image)
			}
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to delete post: %w", err)
	}

	if len(imageURLs) > 0 {
		if err := s.images.Release(ctx, imageURLs); err != nil {
			s.logger.Warn("[POST-DELETE] failed to release variant images",
				zap.String("post_id", id), zap.Int("images", len(imageURLs)), zap.Error(err))
		}
	}

	s.logger.Info("[POST-DELETE] post deleted", zap.String("post_id", id))
	return nil
}

// validateCreateRequest validates basic input requirements
func (s *postService) validateCreateRequest(req CreatePostRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return NewValidationError(fe.Field(), validationMessage(fe))
		}
		return NewValidationError("body", err.Error())
	}

	if len(req.PostContext) > maxPostContextLength {
		return NewValidationError("postContext",
			fmt.Sprintf("postContext too long (max %d characters)", maxPostContextLength))
	}

	return nil
}

func validatePostID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return NewValidationError("id", "id must be a UUID")
	}
	return nil
}

// validationMessage renders a validator field error; field names come from json tags
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a URL", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
