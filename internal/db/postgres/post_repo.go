package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"Postgen/internal/core/posts"
)

const (
	pqUniqueViolation       = "23505"
	pqForeignKeyViolation   = "23503"
	pqInvalidTextRepresent  = "22P02"
	variantUniqueConstraint = "post_variants_post_number_key"
)

type postgresPostRepo struct {
	db *sql.DB
}

// NewPostRepository creates a new PostgreSQL post repository
func NewPostRepository(db *sql.DB) posts.Repository {
	return &postgresPostRepo{db: db}
}

const postColumns = `id, post_context, generated_content, preview_image, options, created_at, updated_at`

// Create inserts a new post. created_at and updated_at are set by the database.
func (r *postgresPostRepo) Create(ctx context.Context, post *posts.Post) error {
	optionsJSON, err := json.Marshal(post.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := `
		INSERT INTO posts (id, post_context, generated_content, preview_image, options, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(
		ctx, query,
		post.ID, post.PostContext, nullString(post.GeneratedContent), nullString(post.PreviewImage), optionsJSON,
	).Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return posts.NewValidationError("id", fmt.Sprintf("post %s already exists", post.ID))
		}
		return fmt.Errorf("failed to insert post: %w", err)
	}

	return nil
}

// GetByID retrieves a post without its variants
func (r *postgresPostRepo) GetByID(ctx context.Context, id string) (*posts.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows || isPQCode(err, pqInvalidTextRepresent) {
		return nil, posts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// List returns every post, newest first
func (r *postgresPostRepo) List(ctx context.Context) ([]*posts.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := []*posts.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		result = append(result, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return result, nil
}

// Update applies a partial update and always touches updated_at
func (r *postgresPostRepo) Update(ctx context.Context, id string, update posts.PostUpdate) (*posts.Post, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PostContext != nil {
		add("post_context", *update.PostContext)
	}
	switch {
	case update.ClearGeneratedContent:
		sets = append(sets, "generated_content = NULL")
	case update.GeneratedContent != nil:
		add("generated_content", *update.GeneratedContent)
	}
	switch {
	case update.ClearPreviewImage:
		sets = append(sets, "preview_image = NULL")
	case update.PreviewImage != nil:
		add("preview_image", *update.PreviewImage)
	}
	if update.Options != nil {
		optionsJSON, err := json.Marshal(update.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal options: %w", err)
		}
		add("options", optionsJSON)
	}

	query := `UPDATE posts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows || isPQCode(err, pqInvalidTextRepresent) {
		return nil, posts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	return post, nil
}

// Delete removes a post; its variants are removed by ON DELETE CASCADE
func (r *postgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		if isPQCode(err, pqInvalidTextRepresent) {
			return posts.ErrNotFound
		}
		return fmt.Errorf("failed to delete post: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rowsAffected == 0 {
		return posts.ErrNotFound
	}
	return nil
}

// ListVariants returns variants ordered by variant number
func (r *postgresPostRepo) ListVariants(ctx context.Context, postID string) ([]posts.Variant, error) {
	query := `
		SELECT id, post_id, variant_number, text, image, created_at, updated_at
		FROM post_variants
		WHERE post_id = $1
		ORDER BY variant_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		if isPQCode(err, pqInvalidTextRepresent) {
			return []posts.Variant{}, nil
		}
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	variants := []posts.Variant{}
	for rows.Next() {
		var v posts.Variant
		var text, image sql.NullString
		if err := rows.Scan(&v.ID, &v.PostID, &v.VariantNumber, &text, &image, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.Text = stringPtr(text)
		v.Image = stringPtr(image)
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}
	return variants, nil
}

// CreateVariants inserts all variants with one multi-row INSERT
func (r *postgresPostRepo) CreateVariants(ctx context.Context, variants []posts.Variant) error {
	if len(variants) == 0 {
		return nil
	}

	const columnsPerRow = 7
	placeholders := make([]string, 0, len(variants))
	args := make([]interface{}, 0, len(variants)*columnsPerRow)

	now := time.Now().UTC()
	for i, v := range variants {
		createdAt, updatedAt := v.CreatedAt, v.UpdatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		base := i * columnsPerRow
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, v.ID, v.PostID, v.VariantNumber, nullString(v.Text), nullString(v.Image), createdAt, updatedAt)
	}

	query := `
		INSERT INTO post_variants (id, post_id, variant_number, text, image, created_at, updated_at)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch {
			case pqErr.Code == pqUniqueViolation && pqErr.Constraint == variantUniqueConstraint:
				return fmt.Errorf("%w: %s", posts.ErrVariantConflict, pqErr.Detail)
			case pqErr.Code == pqForeignKeyViolation, pqErr.Code == pqInvalidTextRepresent:
				return fmt.Errorf("%w: %s", posts.ErrNotFound, variants[0].PostID)
			}
		}
		return fmt.Errorf("failed to insert variants: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*posts.Post, error) {
	var post posts.Post
	var generatedContent, previewImage sql.NullString
	var optionsJSON []byte

	if err := row.Scan(
		&post.ID, &post.PostContext, &generatedContent, &previewImage, &optionsJSON,
		&post.CreatedAt, &post.UpdatedAt,
	); err != nil {
		return nil, err
	}

	post.GeneratedContent = stringPtr(generatedContent)
	post.PreviewImage = stringPtr(previewImage)
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &post.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options: %w", err)
		}
	}
	return &post, nil
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
