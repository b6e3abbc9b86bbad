package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Postgen/internal/core/posts"
)

// setupTestDB creates a test database connection and runs migrations
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	require.NoError(t, Migrate(db), "Failed to run migrations")

	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM posts WHERE post_context LIKE 'test:%'")
		_ = db.Close()
	})
	return db
}

func strp(s string) *string { return &s }

func createTestPost(t *testing.T, repo posts.Repository, label string) *posts.Post {
	t.Helper()
	post := &posts.Post{
		ID:           uuid.NewString(),
		PostContext:  "test:" + label,
		PreviewImage: strp("https://cdn.example.com/preview.png"),
		Options: posts.Options{
			ActionButton: strp("carousel"),
			PostType:     "announcement",
		},
	}
	require.NoError(t, repo.Create(testContext(t), post))
	return post
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPostRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := testContext(t)

	created := createTestPost(t, repo, "create")
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.PostContext, got.PostContext)
	assert.Nil(t, got.GeneratedContent)
	require.NotNil(t, got.PreviewImage)
	assert.Equal(t, "https://cdn.example.com/preview.png", *got.PreviewImage)
	require.NotNil(t, got.Options.ActionButton)
	assert.Equal(t, "carousel", *got.Options.ActionButton)
	assert.Equal(t, "announcement", got.Options.PostType)
}

func TestPostRepo_CreateDuplicateID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	created := createTestPost(t, repo, "dup")
	err := repo.Create(testContext(t), &posts.Post{ID: created.ID, PostContext: "test:dup2"})
	assert.True(t, posts.IsValidationError(err))
}

func TestPostRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	_, err := repo.GetByID(testContext(t), uuid.NewString())
	assert.True(t, posts.IsNotFound(err))

	_, err = repo.GetByID(testContext(t), "not-a-uuid")
	assert.True(t, posts.IsNotFound(err))
}

func TestPostRepo_ListNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	first := createTestPost(t, repo, "list-1")
	time.Sleep(10 * time.Millisecond)
	second := createTestPost(t, repo, "list-2")

	list, err := repo.List(testContext(t))
	require.NoError(t, err)

	indexOf := func(id string) int {
		for i, p := range list {
			if p.ID == id {
				return i
			}
		}
		return -1
	}
	require.NotEqual(t, -1, indexOf(first.ID))
	require.NotEqual(t, -1, indexOf(second.ID))
	assert.Less(t, indexOf(second.ID), indexOf(first.ID))
}

func TestPostRepo_UpdatePartial(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := testContext(t)

	created := createTestPost(t, repo, "update")
	_, err := db.Exec(`UPDATE posts SET generated_content = 'legacy', updated_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, created.ID)
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, posts.PostUpdate{
		PreviewImage:          strp("https://cdn.example.com/new.png"),
		ClearGeneratedContent: true,
	})
	require.NoError(t, err)

	assert.Equal(t, created.PostContext, updated.PostContext)
	assert.Nil(t, updated.GeneratedContent)
	assert.Equal(t, "https://cdn.example.com/new.png", *updated.PreviewImage)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.Equal(t, "announcement", updated.Options.PostType)

	updated, err = repo.Update(ctx, created.ID, posts.PostUpdate{
		PostContext:       strp("test:update-2"),
		ClearPreviewImage: true,
		Options:           &posts.Options{PostType: "story"},
	})
	require.NoError(t, err)
	assert.Equal(t, "test:update-2", updated.PostContext)
	assert.Nil(t, updated.PreviewImage)
	assert.Equal(t, "story", updated.Options.PostType)
	assert.Nil(t, updated.Options.ActionButton)
}

func TestPostRepo_Update_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	_, err := repo.Update(testContext(t), uuid.NewString(), posts.PostUpdate{PostContext: strp("test:x")})
	assert.True(t, posts.IsNotFound(err))
}

func TestPostRepo_DeleteCascadesVariants(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := testContext(t)

	created := createTestPost(t, repo, "delete")
	require.NoError(t, repo.CreateVariants(ctx, []posts.Variant{
		{ID: uuid.NewString(), PostID: created.ID, VariantNumber: 1, Text: strp("a")},
	}))

	require.NoError(t, repo.Delete(ctx, created.ID))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM post_variants WHERE post_id = $1`, created.ID).Scan(&count))
	assert.Equal(t, 0, count)

	assert.True(t, posts.IsNotFound(repo.Delete(ctx, created.ID)))
}

func TestPostRepo_Variants(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := testContext(t)

	created := createTestPost(t, repo, "variants")

	empty, err := repo.ListVariants(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.CreateVariants(ctx, []posts.Variant{
		{ID: uuid.NewString(), PostID: created.ID, VariantNumber: 2, Image: strp("https://cdn.example.com/2.png")},
		{ID: uuid.NewString(), PostID: created.ID, VariantNumber: 1, Text: strp("first")},
	}))

	variants, err := repo.ListVariants(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, 1, variants[0].VariantNumber)
	assert.Equal(t, "first", *variants[0].Text)
	assert.Nil(t, variants[0].Image)
	assert.Equal(t, 2, variants[1].VariantNumber)
	assert.Nil(t, variants[1].Text)
}

func TestPostRepo_CreateVariants_Conflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)
	ctx := testContext(t)

	created := createTestPost(t, repo, "conflict")
	require.NoError(t, repo.CreateVariants(ctx, []posts.Variant{
		{ID: uuid.NewString(), PostID: created.ID, VariantNumber: 1, Text: strp("a")},
	}))

	err := repo.CreateVariants(ctx, []posts.Variant{
		{ID: uuid.NewString(), PostID: created.ID, VariantNumber: 1, Text: strp("b")},
	})
	assert.True(t, errors.Is(err, posts.ErrVariantConflict), "got %v", err)

	// The batch is atomic: nothing from the failed insert is visible
	variants, err := repo.ListVariants(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "a", *variants[0].Text)
}

func TestPostRepo_CreateVariants_MissingPost(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db)

	err := repo.CreateVariants(testContext(t), []posts.Variant{
		{ID: uuid.NewString(), PostID: uuid.NewString(), VariantNumber: 1, Text: strp("a")},
	})
	assert.True(t, posts.IsNotFound(err))
}
