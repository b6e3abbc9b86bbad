package posts

import (
	"time"
)

// Options is the classification bag chosen by the user for a post.
// Values are passed through to the generation service untouched.
type Options struct {
	ActionButton     *string `json:"actionButton"`
	PostType         string  `json:"postType"`
	VisualType       string  `json:"visualType"`
	ImageType        string  `json:"imageType"`
	IllustrationType string  `json:"illustrationType"`
	BackgroundType   string  `json:"backgroundType"`
	LayoutType       string  `json:"layoutType"`
	LinkedInFormat   string  `json:"linkedInFormat"`
}

// Post represents a stored content draft
// Variants is only populated on single-post reads
type Post struct {
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	GeneratedContent *string   `json:"generatedContent"`
	PreviewImage     *string   `json:"previewImage"`
	ID               string    `json:"id"`
	PostContext      string    `json:"postContext"`
	Options          Options   `json:"options"`
	Variants         []Variant `json:"variants,omitempty"`
}

// Variant is one generated text/image candidate for a post.
// Variants are append-only: they are created during generation and never updated.
type Variant struct {
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Text          *string   `json:"text"`
	Image         *string   `json:"image"`
	ID            string    `json:"id"`
	PostID        string    `json:"postId"`
	VariantNumber int       `json:"variantNumber"`
}

// CreatePostRequest represents input for creating a new post
type CreatePostRequest struct {
	GeneratedContent *string `json:"generatedContent"`
	PreviewImage     *string `json:"previewImage" validate:"omitempty,url"`
	ID               string  `json:"id,omitempty" validate:"omitempty,uuid"`
	PostContext      string  `json:"postContext" validate:"required"`
	Options          Options `json:"options"`
}

// PostUpdate is a partial update of a post.
// Nil pointers leave the column untouched; the Clear flags set it to NULL.
type PostUpdate struct {
	PostContext           *string
	GeneratedContent      *string
	PreviewImage          *string
	Options               *Options
	ClearGeneratedContent bool
	ClearPreviewImage     bool
}

// IsEmpty reports whether the update changes no column besides updated_at.
func (u PostUpdate) IsEmpty() bool {
	return u.PostContext == nil && u.GeneratedContent == nil && u.PreviewImage == nil &&
		u.Options == nil && !u.ClearGeneratedContent && !u.ClearPreviewImage
}
