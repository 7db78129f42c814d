package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/world"
)

func newStartedQueue(t *testing.T, images *recordingImages, cfg ImageQueueConfig) (*ImageQueue, <-chan ImageEvent) {
	t.Helper()
	q := NewImageQueue(images, cfg, logger.NewNop())
	events := make(chan ImageEvent, 16)
	q.Subscribe(func(ev ImageEvent) { events <- ev })
	q.Start(context.Background())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return q, events
}

func imageJob(h *world.Handle, articleID string) *ImageJob {
	return &ImageJob{World: h, ArticleID: articleID, Title: "The Lost Commuters", Prompt: "ghosts", Caption: "caption"}
}

func TestImageQueue_RetriesThenSucceeds(t *testing.T) {
	h := newTestWorld(t, testWorldConfig())
	a := seedArticle(t, h, "The Lost Commuters", defaultContent)
	images := &recordingImages{failures: 1}
	q, events := newStartedQueue(t, images, ImageQueueConfig{Workers: 1, MaxRetries: 2, BaseBackoff: time.Millisecond})

	job := imageJob(h, a.ID)
	require.NoError(t, q.Enqueue(job))
	assert.NotEmpty(t, job.ID)

	queued := waitForStatus(t, events, ImageQueued)
	assert.Equal(t, job.ID, queued.JobID)
	done := waitForStatus(t, events, ImageCompleted)
	assert.Equal(t, "Metro", done.World)
	assert.Equal(t, 2, images.calls())

	stored, err := h.Store.GetArticle(context.Background(), a.Title)
	require.NoError(t, err)
	assert.Equal(t, done.ImageRef, stored.ImageRef)
	assert.Equal(t, "caption", stored.ImageCaption)
}

func TestImageQueue_GivesUpAfterMaxRetries(t *testing.T) {
	h := newTestWorld(t, testWorldConfig())
	a := seedArticle(t, h, "The Lost Commuters", defaultContent)
	images := &recordingImages{failures: 10}
	q, events := newStartedQueue(t, images, ImageQueueConfig{Workers: 1, MaxRetries: 1, BaseBackoff: time.Millisecond})

	require.NoError(t, q.Enqueue(imageJob(h, a.ID)))
	failed := waitForStatus(t, events, ImageFailed)
	assert.NotEmpty(t, failed.Error)
	assert.Equal(t, 2, images.calls())

	stored, err := h.Store.GetArticle(context.Background(), a.Title)
	require.NoError(t, err)
	assert.Empty(t, stored.ImageRef, "the article survives without an image")
}

func TestImageQueue_DeletedArticleIsNotResurrected(t *testing.T) {
	ctx := context.Background()
	h := newTestWorld(t, testWorldConfig())
	a := seedArticle(t, h, "The Lost Commuters", defaultContent)
	require.NoError(t, h.Store.DeleteArticle(ctx, a.ID))

	images := &recordingImages{}
	q, events := newStartedQueue(t, images, ImageQueueConfig{Workers: 1, MaxRetries: 3, BaseBackoff: time.Millisecond})

	require.NoError(t, q.Enqueue(imageJob(h, a.ID)))
	waitForStatus(t, events, ImageFailed)
	assert.Equal(t, 1, images.calls(), "a missing article is not retried")

	entries, err := os.ReadDir(h.ImagesDir)
	if err == nil {
		assert.Empty(t, entries, "the orphaned file is removed")
	}
	_, err = h.Store.GetArticle(ctx, a.Title)
	assert.Error(t, err)
}

func TestImageQueue_StopDrainsAfterStartContextEnds(t *testing.T) {
	h := newTestWorld(t, testWorldConfig())
	a := seedArticle(t, h, "The Lost Commuters", defaultContent)
	images := &recordingImages{}
	q := NewImageQueue(images, ImageQueueConfig{Workers: 1, QueueSize: 4, BaseBackoff: time.Millisecond}, logger.NewNop())
	events := make(chan ImageEvent, 16)
	q.Subscribe(func(ev ImageEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	require.NoError(t, q.Enqueue(imageJob(h, a.ID)))
	require.NoError(t, q.Stop(context.Background()))

	done := waitForStatus(t, events, ImageCompleted)
	assert.Equal(t, 1, images.calls())
	stored, err := h.Store.GetArticle(context.Background(), a.Title)
	require.NoError(t, err)
	assert.Equal(t, done.ImageRef, stored.ImageRef)
}

func TestImageQueue_FullAndClosed(t *testing.T) {
	h := newTestWorld(t, testWorldConfig())
	q := NewImageQueue(&recordingImages{}, ImageQueueConfig{Workers: 1, QueueSize: 1}, logger.NewNop())

	require.NoError(t, q.Enqueue(imageJob(h, "a")))
	assert.ErrorIs(t, q.Enqueue(imageJob(h, "b")), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(imageJob(h, "c")), ErrQueueClosed)
	assert.NoError(t, q.Stop(context.Background()))
}

func TestImageQueue_Unsubscribe(t *testing.T) {
	h := newTestWorld(t, testWorldConfig())
	q := NewImageQueue(&recordingImages{}, ImageQueueConfig{QueueSize: 4}, logger.NewNop())

	count := 0
	unsubscribe := q.Subscribe(func(ImageEvent) { count++ })
	require.NoError(t, q.Enqueue(imageJob(h, "a")))
	unsubscribe()
	require.NoError(t, q.Enqueue(imageJob(h, "b")))
	assert.Equal(t, 1, count)
}

func TestImageExtension(t *testing.T) {
	assert.Equal(t, ".png", imageExtension("image/png"))
	assert.Equal(t, ".jpg", imageExtension("image/jpeg"))
	assert.Equal(t, ".webp", imageExtension("image/webp"))
	assert.Equal(t, ".png", imageExtension(""))
}
