package posts

import "context"

// Service defines the business logic interface for posts
type Service interface {
	// CreatePost stores a new post, falling back to the default preview image
	CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error)

	// ListPosts returns all posts, newest first, without variants
	ListPosts(ctx context.Context) ([]*Post, error)

	// GetPost returns a post with its variants in ascending variant number order
	GetPost(ctx context.Context, id string) (*Post, error)

	// UpdatePost applies a partial update and touches updated_at
	UpdatePost(ctx context.Context, id string, update PostUpdate) (*Post, error)

	// DeletePost removes a post and its variants.
	// Owned variant images are released best-effort afterwards.
	DeletePost(ctx context.Context, id string) error
}

// Repository defines the data access interface for posts and their variants
type Repository interface {
	// Create inserts a post. ID, CreatedAt and UpdatedAt are set on success.
	Create(ctx context.Context, post *Post) error

	// GetByID returns ErrNotFound when no post has the given ID
	GetByID(ctx context.Context, id string) (*Post, error)

	// List returns all posts ordered by created_at descending
	List(ctx context.Context) ([]*Post, error)

	// Update applies a partial update. Returns ErrNotFound when the post is missing.
	Update(ctx context.Context, id string, update PostUpdate) (*Post, error)

	// Delete removes a post; variants cascade. Returns ErrNotFound when missing.
	Delete(ctx context.Context, id string) error

	// ListVariants returns a post's variants ordered by variant number ascending
	ListVariants(ctx context.Context, postID string) ([]Variant, error)

	// CreateVariants inserts all variants in a single batch.
	// Returns ErrVariantConflict when a (post, variant number) pair already exists.
	CreateVariants(ctx context.Context, variants []Variant) error
}

// ImageReleaser deletes stored images that belong to this service.
// URLs outside the owned bucket are ignored.
type ImageReleaser interface {
	Release(ctx context.Context, imageURLs []string) error
}
