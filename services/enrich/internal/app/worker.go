// Package app runs media enrichment jobs: it renders audio previews and mood
// images through the provider, uploads the bytes to object storage and flips
// the shared artifact record to ready.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"atmosphera/internal/metrics"
	"atmosphera/pkg/ai"
	"atmosphera/pkg/domain"
	"atmosphera/pkg/media"
	"atmosphera/pkg/queue"
	"atmosphera/pkg/storage"
)

// Worker processes one enrichment job at a time per consumer.
type Worker struct {
	ai      *ai.Client
	media   media.Store
	objects storage.ObjectStore
	logger  *slog.Logger
}

// NewWorker wires the worker. All dependencies are required.
func NewWorker(aiClient *ai.Client, mediaStore media.Store, objects storage.ObjectStore, logger *slog.Logger) (*Worker, error) {
	if aiClient == nil || mediaStore == nil || objects == nil {
		return nil, errors.New("ai client, media store and object store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{ai: aiClient, media: mediaStore, objects: objects, logger: logger}, nil
}

// Handle is the queue consumer callback. A returned error requeues the job
// until the queue's retry budget is spent.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	start := time.Now()
	err := w.process(ctx, job)
	kind := string(job.Kind)
	metrics.EnrichmentJobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EnrichmentJobsTotal.WithLabelValues(kind, "failed").Inc()
		w.logger.Warn("enrichment job failed",
			"job", job.ID, "book", job.BookID, "kind", kind, "attempt", job.Attempts, "error", err)
		return err
	}
	metrics.EnrichmentJobsTotal.WithLabelValues(kind, "ok").Inc()
	w.logger.Info("enrichment job done", "job", job.ID, "book", job.BookID, "kind", kind)
	return nil
}

func (w *Worker) process(ctx context.Context, job queue.Job) error {
	artifact, err := w.ensureArtifact(job)
	if err != nil {
		return fmt.Errorf("resolve artifact: %w", err)
	}
	_ = w.media.SetStatus(artifact.ID, domain.MediaProcessing, "")

	data, contentType, ext, err := w.generate(ctx, job)
	if err != nil {
		_ = w.media.SetStatus(artifact.ID, domain.MediaFailed, err.Error())
		return err
	}
	key := storage.ArtifactKey(job.BookID, job.Kind, ext)
	if err := w.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		_ = w.media.SetStatus(artifact.ID, domain.MediaFailed, err.Error())
		return fmt.Errorf("upload artifact: %w", err)
	}
	if err := w.media.SetReady(artifact.ID, key, contentType); err != nil {
		return fmt.Errorf("mark artifact ready: %w", err)
	}
	return nil
}

// ensureArtifact finds the record the API created at enqueue time, creating
// one when the worker sees a job first (e.g. after an index wipe).
func (w *Worker) ensureArtifact(job queue.Job) (domain.MediaArtifact, error) {
	artifact, ok, err := w.media.FindByBookKind(job.BookID, job.Kind)
	if err != nil {
		return domain.MediaArtifact{}, err
	}
	if ok {
		return artifact, nil
	}
	now := time.Now().UTC()
	artifact = domain.MediaArtifact{
		ID:        uuid.NewString(),
		BookID:    job.BookID,
		Kind:      job.Kind,
		Status:    domain.MediaQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.media.Upsert(artifact, job.Payload); err != nil {
		return domain.MediaArtifact{}, err
	}
	return artifact, nil
}

func (w *Worker) generate(ctx context.Context, job queue.Job) (data []byte, contentType, ext string, err error) {
	switch job.Kind {
	case domain.MediaAudioPreview:
		text := strings.TrimSpace(job.Payload["text"])
		if text == "" {
			return nil, "", "", errors.New("audio job carries no text")
		}
		pcm, err := w.ai.SynthesizeSpeech(ctx, text, job.Payload["voice"])
		if err != nil {
			return nil, "", "", err
		}
		return ai.WAVFromPCM(pcm), "audio/wav", ".wav", nil
	case domain.MediaMoodImage:
		prompt := strings.TrimSpace(job.Payload["prompt"])
		if prompt == "" {
			return nil, "", "", errors.New("image job carries no prompt")
		}
		img, mime, err := w.ai.GenerateMoodImage(ctx, prompt, nil, "")
		if err != nil {
			return nil, "", "", err
		}
		if mime == "" {
			mime = "image/png"
		}
		return img, mime, extForMIME(mime), nil
	default:
		return nil, "", "", fmt.Errorf("unsupported media kind %q", job.Kind)
	}
}

func extForMIME(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
