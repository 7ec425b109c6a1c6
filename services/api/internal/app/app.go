package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"atmosphera/internal/sessiontoken"
	"atmosphera/pkg/ai"
	"atmosphera/pkg/catalog"
	"atmosphera/pkg/domain"
	"atmosphera/pkg/library"
	"atmosphera/pkg/media"
	"atmosphera/pkg/queue"
	"atmosphera/pkg/session"
	"atmosphera/pkg/storage"
)

// ErrMediaDisabled is returned when enrichment infrastructure is not
// configured.
var ErrMediaDisabled = errors.New("media enrichment is not configured")

// Config holds runtime configuration for the core application. The store
// fields are injectable for tests; nil selects the configured backend.
type Config struct {
	AIKey         string
	AIBaseURL     string
	TextModel     string
	ImageModel    string
	TTSModel      string
	LiveModel     string
	CatalogURL    string
	CoverURL      string
	RedisAddr     string
	RedisPassword string
	DatabaseURL   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	SessionSecret  string
	RefineDebounce time.Duration

	AI       *ai.Client
	Catalog  *catalog.Client
	Sessions session.Store
	Media    media.Store
	Objects  storage.ObjectStore
	Jobs     *queue.RedisJobQueue
}

// App wires the discovery, persistence and enrichment components behind the
// HTTP surface.
type App struct {
	ai       *ai.Client
	catalog  *catalog.Client
	library  *library.Library
	sessions session.Store
	media    media.Store
	objects  storage.ObjectStore
	jobs     *queue.RedisJobQueue
	tokens   *sessiontoken.Manager

	chatMu sync.Mutex
	chats  map[string]*ai.ChatSession

	presignExpiry time.Duration
}

// New constructs the application. Redis and Postgres are optional: absent
// backends fall back to in-memory stores, and absent MinIO/queue config
// disables media enrichment rather than failing boot.
func New(cfg Config) (*App, error) {
	tokens, err := sessiontoken.NewManager(sessiontoken.Options{Secret: cfg.SessionSecret})
	if err != nil {
		return nil, err
	}

	aiClient := cfg.AI
	if aiClient == nil {
		aiClient = ai.NewClient(ai.Config{
			APIKey:     cfg.AIKey,
			BaseURL:    cfg.AIBaseURL,
			TextModel:  cfg.TextModel,
			ImageModel: cfg.ImageModel,
			TTSModel:   cfg.TTSModel,
			LiveModel:  cfg.LiveModel,
		})
	}
	catalogClient := cfg.Catalog
	if catalogClient == nil {
		catalogClient = catalog.NewClient(catalog.Config{
			BaseURL:      cfg.CatalogURL,
			CoverBaseURL: cfg.CoverURL,
		})
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if cfg.RedisAddr != "" {
			sessionStore = session.NewRedisStore(newRedisClient(cfg.RedisAddr, cfg.RedisPassword), 0)
		} else {
			sessionStore = session.NewMemoryStore()
		}
	}

	mediaStore := cfg.Media
	if mediaStore == nil {
		if cfg.DatabaseURL != "" {
			store, err := media.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres media store: %w", err)
			}
			mediaStore = store
		} else {
			mediaStore = media.NewMemoryStore()
		}
	}

	objects := cfg.Objects
	if objects == nil && cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	jobs := cfg.Jobs
	if jobs == nil && cfg.RedisAddr != "" {
		jobs, err = queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("init media queue: %w", err)
		}
	}

	lib := library.New(library.Config{
		AI:             aiClient,
		Catalog:        catalogClient,
		RefineDebounce: cfg.RefineDebounce,
	})

	return &App{
		ai:            aiClient,
		catalog:       catalogClient,
		library:       lib,
		sessions:      sessionStore,
		media:         mediaStore,
		objects:       objects,
		jobs:          jobs,
		tokens:        tokens,
		chats:         make(map[string]*ai.ChatSession),
		presignExpiry: 15 * time.Minute,
	}, nil
}

func newRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password})
}

// Close releases background workers.
func (a *App) Close() {
	a.library.Close()
}

// AIConfigured reports whether AI-backed features are available.
func (a *App) AIConfigured() bool { return a.ai.Configured() }

// --- sessions ---

// NewSession mints an anonymous session and its bearer token.
func (a *App) NewSession() (string, string, error) {
	sessionID := uuid.NewString()
	token, err := a.tokens.Issue(sessionID)
	if err != nil {
		return "", "", fmt.Errorf("issue session token: %w", err)
	}
	return sessionID, token, nil
}

// VerifySession resolves a bearer token to its session id.
func (a *App) VerifySession(token string) (string, error) {
	return a.tokens.Verify(token)
}

// --- discovery ---

func (a *App) Recommend(ctx context.Context, prefs domain.UserPreferences) ([]domain.Book, error) {
	return a.library.Recommend(ctx, prefs)
}

// LibrarySnapshot assembles the shelves on first request and returns the
// current state afterwards.
func (a *App) LibrarySnapshot(ctx context.Context) library.Snapshot {
	if snap := a.library.Snapshot(); snap.State != library.StateIdle {
		return snap
	}
	return a.library.Assemble(ctx)
}

// TriggerRefine arms the refinement debounce.
func (a *App) TriggerRefine() {
	a.library.TriggerRefine()
}

// RefinedShelf returns the extra discovery shelf, when one has been injected.
func (a *App) RefinedShelf() (domain.Shelf, bool) {
	return a.library.RefinedShelf()
}

func (a *App) Search(ctx context.Context, query string, limit int) ([]domain.Book, error) {
	return a.catalog.Search(ctx, query, limit)
}

func (a *App) Insights(ctx context.Context, book domain.Book) (domain.LiveInsights, error) {
	return a.ai.LiveInsights(ctx, book)
}

// --- character chat ---

// StartChat generates a persona for the book and opens a chat session scoped
// to (session, book). Restarting replaces the previous conversation.
func (a *App) StartChat(ctx context.Context, sessionID string, book domain.Book) (domain.CharacterPersona, error) {
	persona, err := a.ai.GeneratePersona(ctx, book)
	if err != nil {
		return domain.CharacterPersona{}, err
	}
	chat := a.ai.NewChatSession(persona)
	a.chatMu.Lock()
	a.chats[chatKey(sessionID, book)] = chat
	a.chatMu.Unlock()
	return persona, nil
}

// SendChat relays one user turn to the persona chat.
func (a *App) SendChat(ctx context.Context, sessionID string, book domain.Book, message string) (string, error) {
	a.chatMu.Lock()
	chat, ok := a.chats[chatKey(sessionID, book)]
	a.chatMu.Unlock()
	if !ok {
		return "", errors.New("no chat session for this book; generate a persona first")
	}
	return chat.Send(ctx, message)
}

func chatKey(sessionID string, book domain.Book) string {
	return sessionID + "|" + book.Key()
}

// --- wishlist and reading ---

func (a *App) Wishlist(ctx context.Context, sessionID string) ([]domain.Book, error) {
	return a.sessions.Wishlist(ctx, sessionID)
}

func (a *App) ToggleWishlist(ctx context.Context, sessionID string, book domain.Book) (bool, error) {
	return a.sessions.ToggleWishlist(ctx, sessionID, book)
}

func (a *App) SetActiveRead(ctx context.Context, sessionID string, book domain.Book) (domain.ReadingProgress, error) {
	if err := a.sessions.SetActiveRead(ctx, sessionID, book); err != nil {
		return domain.ReadingProgress{}, err
	}
	progress, _, err := a.sessions.Progress(ctx, sessionID)
	return progress, err
}

func (a *App) ActiveRead(ctx context.Context, sessionID string) (domain.Book, bool, error) {
	return a.sessions.ActiveRead(ctx, sessionID)
}

func (a *App) UpdateProgress(ctx context.Context, sessionID string, currentPage, totalPages int) (domain.ReadingProgress, error) {
	return a.sessions.UpdateProgress(ctx, sessionID, currentPage, totalPages)
}

// --- media enrichment ---

// EnqueueMedia records a queued artifact and hands the job to the worker.
func (a *App) EnqueueMedia(ctx context.Context, book domain.Book, kind domain.MediaKind) (domain.MediaArtifact, error) {
	if a.jobs == nil {
		return domain.MediaArtifact{}, ErrMediaDisabled
	}
	if book.ID == "" {
		book.ID = domain.BookID(book.Title, book.Author)
	}
	params, err := enrichmentParams(book, kind)
	if err != nil {
		return domain.MediaArtifact{}, err
	}
	now := time.Now().UTC()
	artifact := domain.MediaArtifact{
		ID:        uuid.NewString(),
		BookID:    book.ID,
		Kind:      kind,
		Status:    domain.MediaQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.media.Upsert(artifact, params); err != nil {
		return domain.MediaArtifact{}, fmt.Errorf("record artifact: %w", err)
	}
	if _, err := a.jobs.Enqueue(ctx, book.ID, kind, params); err != nil {
		return domain.MediaArtifact{}, fmt.Errorf("enqueue media job: %w", err)
	}
	return artifact, nil
}

// enrichmentParams derives the generation inputs the worker needs.
func enrichmentParams(book domain.Book, kind domain.MediaKind) (map[string]string, error) {
	switch kind {
	case domain.MediaAudioPreview:
		text := strings.TrimSpace(book.Excerpt)
		if text == "" {
			text = strings.TrimSpace(book.Description)
		}
		if text == "" {
			return nil, errors.New("book has no excerpt or description to narrate")
		}
		return map[string]string{"text": text, "voice": ai.DefaultVoice}, nil
	case domain.MediaMoodImage:
		prompt := fmt.Sprintf("An atmospheric, painterly book cover mood scene for %q by %s", book.Title, book.Author)
		if book.Genre != "" {
			prompt += ", " + strings.ToLower(book.Genre) + " genre"
		}
		return map[string]string{"prompt": prompt}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}
}

// MediaStatus lists a book's artifacts, resolving presigned URLs for ready
// ones.
func (a *App) MediaStatus(ctx context.Context, bookID string) ([]domain.MediaArtifact, error) {
	artifacts, err := a.media.ListByBook(bookID)
	if err != nil {
		return nil, err
	}
	for i := range artifacts {
		if artifacts[i].Status != domain.MediaReady || artifacts[i].ObjectKey == "" || a.objects == nil {
			continue
		}
		url, err := a.objects.PresignGet(ctx, artifacts[i].ObjectKey, a.presignExpiry)
		if err != nil {
			continue
		}
		artifacts[i].URL = url
	}
	return artifacts, nil
}

// --- provider relay ---

// RawGenerate forwards a browser passthrough payload to the provider.
func (a *App) RawGenerate(ctx context.Context, model string, payload []byte) ([]byte, error) {
	return a.ai.RawGenerate(ctx, model, payload)
}

// DialLive opens a bidirectional live audio session with the provider.
func (a *App) DialLive(ctx context.Context, systemInstruction string) (*ai.LiveSession, error) {
	return a.ai.DialLive(ctx, systemInstruction)
}
