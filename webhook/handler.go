// Package webhook is the HTTP surface of the ingestion pipeline. One
// handler serves POST /incoming/{provider}/{source}: it authenticates
// the delivery, normalizes the payload, and dispatches it to the
// archive importer.
package webhook

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"pkghub/internal"
	"pkghub/pkg/auth"
	"pkghub/pkg/importer"
	"pkghub/pkg/providers"
	"pkghub/pkg/source"
	"pkghub/pkg/storage"
)

// Handler authenticates and dispatches provider webhook deliveries.
type Handler struct {
	store        storage.Store
	secrets      auth.SecretProvider
	importer     *importer.Importer
	rules        *internal.RuleEngine
	publisher    internal.Publisher
	logger       *log.Logger
	maxBody      int64
	defaultTopic string
}

// Config wires the handler's collaborators.
type Config struct {
	Store     storage.Store
	Secrets   auth.SecretProvider
	Importer  *importer.Importer
	Rules     *internal.RuleEngine
	Publisher internal.Publisher
	Logger    *log.Logger
	// MaxBodyBytes caps the request body; 0 disables the cap.
	MaxBodyBytes int64
	// DefaultTopic receives registry events that match no rule. Empty
	// disables the fallback.
	DefaultTopic string
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = internal.NewLogger("webhook")
	}
	return &Handler{
		store:        cfg.Store,
		secrets:      cfg.Secrets,
		importer:     cfg.Importer,
		rules:        cfg.Rules,
		publisher:    cfg.Publisher,
		logger:       logger,
		maxBody:      cfg.MaxBodyBytes,
		defaultTopic: cfg.DefaultTopic,
	}
}

// Register mounts the webhook route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /incoming/{provider}/{source}", h)
}

// ServeHTTP handles one webhook delivery.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	provider, ok := source.ParseProvider(r.PathValue("provider"))
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}
	sourceID, err := strconv.ParseUint(r.PathValue("source"), 10, 32)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source"})
		return
	}
	internal.IncRequest(string(provider))

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	src, err := h.authenticate(r, provider, uint(sourceID), rawBody)
	if err != nil {
		internal.IncAuthFailure(string(provider))
		logger.Printf("rejected %s delivery for source %d: %v", provider, sourceID, err)
		unauthorized(w)
		return
	}

	event, err := source.Normalize(provider, r.Header, rawBody)
	if err != nil {
		h.respondNormalizeError(w, logger, provider, err)
		return
	}

	repo, err := h.store.FindRepository(r.Context(), src.RepositoryID)
	if err != nil {
		logger.Printf("repository %d lookup failed: %v", src.RepositoryID, err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	switch typed := event.(type) {
	case source.PushEvent:
		h.handlePush(w, r, logger, reqID, repo, src, rawBody, typed)
	case source.DeleteEvent:
		h.handleDelete(w, r, logger, reqID, repo, rawBody, typed)
	default:
		logger.Printf("unhandled event type %T", event)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// authenticate resolves the source and verifies the delivery. Every
// failure mode collapses into one error so the HTTP response cannot
// leak whether the source exists.
func (h *Handler) authenticate(r *http.Request, provider source.Provider, sourceID uint, body []byte) (*storage.SourceRecord, error) {
	src, err := h.store.FindSource(r.Context(), sourceID)
	if err != nil {
		return nil, err
	}
	if src.Provider != string(provider) {
		return nil, errors.New("source provider mismatch")
	}

	secret, err := h.secrets.WebhookSecret(r.Context(), src)
	if err != nil {
		return nil, err
	}

	if provider == source.GitLab {
		if !verifyToken(secret, r.Header.Get(gitlabTokenHeader)) {
			return nil, errors.New("token verification failed")
		}
		return src, nil
	}
	if !verifySignature(secret, body, r.Header.Get(signatureHeader)) {
		return nil, errors.New("signature verification failed")
	}
	return src, nil
}

func (h *Handler) respondNormalizeError(w http.ResponseWriter, logger *log.Logger, provider source.Provider, err error) {
	switch {
	case errors.Is(err, source.ErrUnknownEvent):
		internal.IncUnknownEvent(string(provider))
		respondJSON(w, http.StatusUnprocessableEntity, map[string][]string{
			"event": {"unknown event type"},
		})
	case errors.Is(err, source.ErrMalformedPayload), errors.Is(err, source.ErrUnresolvableRef):
		internal.IncParseError(string(provider))
		logger.Printf("%s payload rejected: %v", provider, err)
		respondJSON(w, http.StatusUnprocessableEntity, map[string][]string{
			"payload": {"invalid payload"},
		})
	default:
		logger.Printf("%s normalize failed: %v", provider, err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request, logger *log.Logger, reqID string, repo *storage.RepositoryRecord, src *storage.SourceRecord, rawBody []byte, event source.PushEvent) {
	token, err := h.secrets.APIToken(r.Context(), src)
	if err != nil {
		logger.Printf("token resolution failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	result, err := h.importer.Import(r.Context(), repo, token, event)
	if err != nil {
		h.respondImportError(w, logger, event.Provider, err)
		return
	}

	status := http.StatusOK
	name := event.Ref.VersionLabel()
	if result.Created {
		status = http.StatusCreated
		eventName := internal.EventVersionCreated
		if event.Ref.Kind == source.RefBranch {
			eventName = internal.EventVersionUpdated
		}
		h.emit(r.Context(), logger, internal.Event{
			Provider:   string(event.Provider),
			Name:       eventName,
			RequestID:  reqID,
			Repository: repo.Name,
			Package:    result.Package.Name,
			Version:    name,
			RawPayload: rawBody,
		})
	}

	respondJSON(w, status, map[string]string{
		"status":  "ok",
		"package": result.Package.Name,
		"version": name,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, logger *log.Logger, reqID string, repo *storage.RepositoryRecord, rawBody []byte, event source.DeleteEvent) {
	deleted, err := h.importer.Delete(r.Context(), repo, event)
	if err != nil {
		logger.Printf("delete failed: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if deleted {
		h.emit(r.Context(), logger, internal.Event{
			Provider:   string(event.Provider),
			Name:       internal.EventVersionDeleted,
			RequestID:  reqID,
			Repository: repo.Name,
			Version:    event.Ref.VersionLabel(),
			RawPayload: rawBody,
		})
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": event.Ref.VersionLabel(),
	})
}

func (h *Handler) respondImportError(w http.ResponseWriter, logger *log.Logger, provider source.Provider, err error) {
	switch {
	case errors.Is(err, providers.ErrFetchFailed):
		logger.Printf("%s archive fetch failed: %v", provider, err)
		respondJSON(w, http.StatusBadGateway, map[string][]string{
			"archive": {"could not fetch archive"},
		})
	case errors.Is(err, providers.ErrArchiveTooLarge):
		logger.Printf("%s archive too large: %v", provider, err)
		respondJSON(w, http.StatusUnprocessableEntity, map[string][]string{
			"archive": {"archive exceeds size limit"},
		})
	case errors.Is(err, importer.ErrArchiveCorrupt), errors.Is(err, importer.ErrUnsafeArchive):
		logger.Printf("%s archive rejected: %v", provider, err)
		respondJSON(w, http.StatusUnprocessableEntity, map[string][]string{
			"archive": {"invalid archive"},
		})
	case errors.Is(err, storage.ErrPackageCreationDisabled):
		logger.Printf("%s import refused: %v", provider, err)
		respondJSON(w, http.StatusForbidden, map[string][]string{
			"package": {"package creation disabled"},
		})
	default:
		logger.Printf("%s import failed: %v", provider, err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// emit routes a registry event through the rules engine to the
// publisher. Publish failures are logged, never surfaced to the
// provider; the registry mutation already happened.
func (h *Handler) emit(ctx context.Context, logger *log.Logger, event internal.Event) {
	if h.publisher == nil {
		return
	}

	var matches []internal.RuleMatch
	if h.rules != nil {
		matches = h.rules.Evaluate(event)
	}
	if len(matches) == 0 && h.defaultTopic != "" {
		matches = []internal.RuleMatch{{Topic: h.defaultTopic}}
	}

	for _, match := range matches {
		if err := h.publisher.PublishForDrivers(ctx, match.Topic, event, match.Drivers); err != nil {
			logger.Printf("publish %s failed: %v", match.Topic, err)
		}
	}
}
