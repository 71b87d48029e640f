package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"murmur/internal/models"
	"murmur/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(store repository.ScheduledPostRepository) *ScheduledPostService {
	return NewScheduledPostService(store, NewPublisher(store, nil, nil, PublisherOptions{}), nil)
}

func TestScheduledPostService_Create_Validation(t *testing.T) {
	t.Parallel()

	at := time.Now().Add(time.Hour)
	svc := newGuard(ownedBy(1))

	tests := []struct {
		name  string
		input CreateScheduledPostInput
	}{
		{"missing content", CreateScheduledPostInput{UserID: 1, ScheduledAt: &at}},
		{"blank content", CreateScheduledPostInput{UserID: 1, Content: "   ", ScheduledAt: &at}},
		{"content too long", CreateScheduledPostInput{UserID: 1, Content: strings.Repeat("x", models.MaxContentLength+1), ScheduledAt: &at}},
		{"missing scheduledAt", CreateScheduledPostInput{UserID: 1, Content: "hi"}},
		{"bad media url", CreateScheduledPostInput{UserID: 1, Content: "hi", MediaURL: "javascript:alert(1)", ScheduledAt: &at}},
		{"zero scheduledAt", CreateScheduledPostInput{UserID: 1, Content: "hi", ScheduledAt: &time.Time{}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Create(context.Background(), tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestScheduledPostService_Create_Defaults(t *testing.T) {
	t.Parallel()

	store := ownedBy(1)
	var saved *models.ScheduledPost
	store.createFn = func(_ context.Context, sp *models.ScheduledPost) error {
		sp.ID = 5
		sp.Status = models.ScheduledPostPending
		saved = sp
		return nil
	}
	svc := newGuard(store)

	at := time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC)
	sp, err := svc.Create(context.Background(), CreateScheduledPostInput{UserID: 1, Content: "Merry", ScheduledAt: &at})
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, uint(5), sp.ID)
	assert.Equal(t, uint(1), saved.UserID)
	assert.True(t, saved.CommentsEnabled)
	assert.True(t, saved.ScheduledAt.Equal(at))
	assert.Equal(t, models.ScheduledPostPending, sp.Status)
}

func TestScheduledPostService_Create_PastTimeAccepted(t *testing.T) {
	t.Parallel()
	svc := newGuard(ownedBy(1))
	past := time.Now().Add(-time.Hour)
	_, err := svc.Create(context.Background(), CreateScheduledPostInput{UserID: 1, Content: "late", ScheduledAt: &past})
	assert.NoError(t, err)
}

func TestScheduledPostService_OwnershipHidesOtherUsersRecords(t *testing.T) {
	t.Parallel()

	store := ownedBy(1)
	store.updateFn = func(context.Context, uint, repository.ScheduledPostPatch) (*models.ScheduledPost, error) {
		t.Fatal("update must not reach the store")
		return nil, nil
	}
	store.cancelFn = func(context.Context, uint) (*models.ScheduledPost, error) {
		t.Fatal("cancel must not reach the store")
		return nil, nil
	}
	store.promoteFn = func(context.Context, uint, time.Time) (*models.Post, error) {
		t.Fatal("promote must not reach the store")
		return nil, nil
	}
	svc := newGuard(store)
	ctx := context.Background()
	content := "hijack"

	_, err := svc.Get(ctx, 2, 10)
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.Update(ctx, UpdateScheduledPostInput{UserID: 2, ID: 10, Content: &content})
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.Cancel(ctx, 2, 10)
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.PublishNow(ctx, 2, 10)
	assertCode(t, err, models.CodeNotFound)
}

func TestScheduledPostService_NotFoundMatchesForeignRecord(t *testing.T) {
	t.Parallel()

	store := ownedBy(1)
	store.getByIDFn = func(_ context.Context, id uint) (*models.ScheduledPost, error) {
		if id == 10 {
			return &models.ScheduledPost{ID: 10, UserID: 1, Status: models.ScheduledPostPending}, nil
		}
		return nil, models.NewNotFoundError("Scheduled post", id)
	}
	svc := newGuard(store)

	_, foreignErr := svc.Get(context.Background(), 2, 10)
	_, missingErr := svc.Get(context.Background(), 2, 11)

	var foreign, missing *models.AppError
	require.True(t, errors.As(foreignErr, &foreign))
	require.True(t, errors.As(missingErr, &missing))
	assert.Equal(t, missing.Code, foreign.Code)
	assert.Equal(t, strings.Replace(missing.Message, "11", "10", 1), foreign.Message)
}

func TestScheduledPostService_TerminalRecordsAreRefused(t *testing.T) {
	t.Parallel()

	for _, status := range []models.ScheduledPostStatus{models.ScheduledPostPosted, models.ScheduledPostCancelled} {
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			store := ownedBy(1)
			store.getByIDFn = func(_ context.Context, id uint) (*models.ScheduledPost, error) {
				return &models.ScheduledPost{ID: id, UserID: 1, Status: status}, nil
			}
			svc := newGuard(store)
			ctx := context.Background()
			at := time.Now().Add(time.Hour)

			_, err := svc.Update(ctx, UpdateScheduledPostInput{UserID: 1, ID: 3, ScheduledAt: &at})
			assertCode(t, err, models.CodeInvalidState)

			_, err = svc.Cancel(ctx, 1, 3)
			assertCode(t, err, models.CodeInvalidState)

			_, err = svc.PublishNow(ctx, 1, 3)
			assertCode(t, err, models.CodeInvalidState)

			sp, err := svc.Get(ctx, 1, 3)
			require.NoError(t, err, "reads stay allowed")
			assert.Equal(t, status, sp.Status)
		})
	}
}

func TestScheduledPostService_LostRaceMapsToInvalidState(t *testing.T) {
	t.Parallel()

	store := ownedBy(1)
	store.updateFn = func(context.Context, uint, repository.ScheduledPostPatch) (*models.ScheduledPost, error) {
		return nil, repository.ErrNotPending
	}
	store.cancelFn = func(context.Context, uint) (*models.ScheduledPost, error) {
		return nil, repository.ErrNotPending
	}
	store.promoteFn = func(context.Context, uint, time.Time) (*models.Post, error) {
		return nil, repository.ErrNotPending
	}
	svc := newGuard(store)
	ctx := context.Background()
	content := "x"

	_, err := svc.Update(ctx, UpdateScheduledPostInput{UserID: 1, ID: 1, Content: &content})
	assertCode(t, err, models.CodeInvalidState)

	_, err = svc.Cancel(ctx, 1, 1)
	assertCode(t, err, models.CodeInvalidState)

	_, err = svc.PublishNow(ctx, 1, 1)
	assertCode(t, err, models.CodeInvalidState)
}

func TestScheduledPostService_Update(t *testing.T) {
	t.Parallel()

	t.Run("passes only provided fields", func(t *testing.T) {
		t.Parallel()
		store := ownedBy(1)
		var got repository.ScheduledPostPatch
		store.updateFn = func(_ context.Context, id uint, patch repository.ScheduledPostPatch) (*models.ScheduledPost, error) {
			got = patch
			return &models.ScheduledPost{ID: id, UserID: 1}, nil
		}
		svc := newGuard(store)

		content := "new words"
		_, err := svc.Update(context.Background(), UpdateScheduledPostInput{UserID: 1, ID: 1, Content: &content})
		require.NoError(t, err)
		require.NotNil(t, got.Content)
		assert.Equal(t, "new words", *got.Content)
		assert.Nil(t, got.MediaURL)
		assert.Nil(t, got.CommentsEnabled)
		assert.Nil(t, got.ScheduledAt)
	})

	t.Run("rejects blank content", func(t *testing.T) {
		t.Parallel()
		svc := newGuard(ownedBy(1))
		blank := "  "
		_, err := svc.Update(context.Background(), UpdateScheduledPostInput{UserID: 1, ID: 1, Content: &blank})
		assertValidationError(t, err)
	})

	t.Run("rejects zero time", func(t *testing.T) {
		t.Parallel()
		svc := newGuard(ownedBy(1))
		_, err := svc.Update(context.Background(), UpdateScheduledPostInput{UserID: 1, ID: 1, ScheduledAt: &time.Time{}})
		assertValidationError(t, err)
	})
}

func TestScheduledPostService_List(t *testing.T) {
	t.Parallel()

	t.Run("paging and filter", func(t *testing.T) {
		t.Parallel()
		store := ownedBy(1)
		var got repository.ScheduledPostFilter
		store.listByUserFn = func(_ context.Context, f repository.ScheduledPostFilter) ([]*models.ScheduledPost, int64, error) {
			got = f
			return []*models.ScheduledPost{{ID: 1}}, 31, nil
		}
		svc := newGuard(store)

		page, err := svc.List(context.Background(), ListScheduledPostsInput{UserID: 1, Status: "Pending", Page: 3, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, repository.ScheduledPostFilter{UserID: 1, Status: models.ScheduledPostPending, Limit: 10, Offset: 20}, got)
		assert.Equal(t, int64(31), page.Total)
		assert.Equal(t, 3, page.Page)
		assert.Len(t, page.Posts, 1)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		store := ownedBy(1)
		var got repository.ScheduledPostFilter
		store.listByUserFn = func(_ context.Context, f repository.ScheduledPostFilter) ([]*models.ScheduledPost, int64, error) {
			got = f
			return []*models.ScheduledPost{}, 0, nil
		}
		page, err := newGuard(store).List(context.Background(), ListScheduledPostsInput{UserID: 1})
		require.NoError(t, err)
		assert.Equal(t, 10, got.Limit)
		assert.Zero(t, got.Offset)
		assert.Empty(t, got.Status)
		assert.Equal(t, 1, page.Page)
	})

	invalid := []ListScheduledPostsInput{
		{UserID: 1, Status: "draft"},
		{UserID: 1, Page: -1},
		{UserID: 1, Limit: 101},
		{UserID: 1, Limit: -5},
	}
	for _, in := range invalid {
		_, err := newGuard(ownedBy(1)).List(context.Background(), in)
		assertValidationError(t, err)
	}
}

func TestScheduledPostService_PublishNow(t *testing.T) {
	t.Parallel()

	store := ownedBy(1)
	var promotedAt time.Time
	store.promoteFn = func(_ context.Context, id uint, now time.Time) (*models.Post, error) {
		promotedAt = now
		return &models.Post{ID: 77, UserID: 1, Content: "c", CreatedAt: now}, nil
	}
	svc := newGuard(store)

	post, err := svc.PublishNow(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, uint(77), post.ID)
	assert.WithinDuration(t, time.Now(), promotedAt, 5*time.Second, "publish-now uses the current time, not scheduled_at")
}

func TestScheduledPostService_StoreFailurePropagates(t *testing.T) {
	t.Parallel()

	store := ownedBy(1)
	store.getByIDFn = func(context.Context, uint) (*models.ScheduledPost, error) {
		return nil, models.NewInternalError(errors.New("db down"))
	}
	_, err := newGuard(store).Cancel(context.Background(), 1, 1)
	assertCode(t, err, models.CodeInternal)
}
