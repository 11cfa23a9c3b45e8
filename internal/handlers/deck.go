package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/models"
	"cardforge-backend/internal/repository"
	"cardforge-backend/internal/services"
)

const maxUploadBytes = 200 * 1024 * 1024

var (
	errInvalidBody  = errors.New("Invalid request body")
	errUploadFailed = errors.New("Could not store the uploaded file")
)

type DeckHandler struct {
	deckRepo    *repository.DeckRepo
	jobRepo     *repository.JobRepo
	redis       *redis.Client
	storagePath string
}

func NewDeckHandler(deckRepo *repository.DeckRepo, jobRepo *repository.JobRepo, redisClient *redis.Client, storagePath string) *DeckHandler {
	return &DeckHandler{
		deckRepo:    deckRepo,
		jobRepo:     jobRepo,
		redis:       redisClient,
		storagePath: storagePath,
	}
}

// Generate accepts a deck submission (JSON or multipart with an uploaded
// file), records the deck and its job, and queues the pipeline. The actual
// extract/generate work happens in the worker pool.
func (h *DeckHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sub, err := h.parseSubmission(w, r, userID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}

	sub.Kind = services.SelectKind(*sub)
	if sub.Kind == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No usable input source provided", r))
		return
	}
	sub.NumCards = models.ClampCardCount(sub.NumCards)
	if sub.Title == "" {
		sub.Title = "Untitled deck"
	}

	deck := &models.Deck{
		ID:     uuid.New(),
		UserID: userID,
		Title:  sub.Title,
		Source: models.DeckSourceAI,
	}
	if err := h.deckRepo.Create(r.Context(), deck); err != nil {
		log.Printf("failed to create deck: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create deck", r))
		return
	}

	if err := h.enqueueJob(r, userID, "deck-generation", deck.ID, sub); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue generation", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"deck_id": deck.ID,
		"status":  "pending",
	})
}

// Regenerate rebuilds a deck's cards from its stored source text.
func (h *DeckHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	deck, ok := h.ownedDeck(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(deck.SourceText) == "" {
		writeJSON(w, http.StatusConflict, errorResp("NO_SOURCE", "This deck has no stored source text to regenerate from", r))
		return
	}

	numCards := deck.CardCount
	if raw := r.URL.Query().Get("num_cards"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			numCards = n
		}
	}

	sub := &models.Submission{
		Kind:     "text",
		Title:    deck.Title,
		NumCards: models.ClampCardCount(numCards),
		Text:     deck.SourceText,
	}

	if err := h.enqueueJob(r, deck.UserID, "deck-generation", deck.ID, sub); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue regeneration", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"deck_id": deck.ID,
		"status":  "pending",
	})
}

func (h *DeckHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	decks, err := h.deckRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list decks", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decks": decks})
}

func (h *DeckHandler) Get(w http.ResponseWriter, r *http.Request) {
	deck, ok := h.ownedDeck(w, r)
	if !ok {
		return
	}

	cards, err := h.deckRepo.GetCards(r.Context(), deck.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load cards", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deck":  deck,
		"cards": cards,
	})
}

func (h *DeckHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deck, ok := h.ownedDeck(w, r)
	if !ok {
		return
	}
	if err := h.deckRepo.Delete(r.Context(), deck.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete deck", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deck deleted"})
}

func (h *DeckHandler) Stats(w http.ResponseWriter, r *http.Request) {
	deck, ok := h.ownedDeck(w, r)
	if !ok {
		return
	}
	stats, err := h.deckRepo.GetStats(r.Context(), deck.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load stats", r))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *DeckHandler) RateCard(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedDeck(w, r); !ok {
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
		return
	}

	var req models.CardRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rating < 0 || req.Rating > 3 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Rating must be between 0 and 3", r))
		return
	}

	if err := h.deckRepo.RateCard(r.Context(), cardID, req.Rating); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to rate card", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Card rated"})
}

// parseSubmission reads either a JSON body or a multipart form (for file
// uploads), staging any uploaded file under the storage root.
func (h *DeckHandler) parseSubmission(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*models.Submission, error) {
	sub := &models.Submission{}

	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(sub); err != nil {
			return nil, errInvalidBody
		}
		return sub, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, errInvalidBody
	}

	sub.Title = r.FormValue("title")
	sub.Text = r.FormValue("text")
	sub.URL = r.FormValue("url")
	sub.VideoURL = r.FormValue("video_url")
	sub.AudioURL = r.FormValue("audio_url")
	sub.Language = r.FormValue("language")
	if raw := r.FormValue("num_cards"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			sub.NumCards = n
		}
	}

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		rel, serr := h.stageUpload(userID, header.Filename, file)
		if serr != nil {
			log.Printf("failed to stage upload: %v", serr)
			return nil, errUploadFailed
		}
		sub.FilePath = rel
		sub.FileName = header.Filename
	}

	return sub, nil
}

func (h *DeckHandler) stageUpload(userID uuid.UUID, filename string, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	rel := filepath.Join("users", userID.String(), "uploads", uuid.NewString()+ext)
	abs := filepath.Join(h.storagePath, rel)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(abs)
		return "", err
	}
	return rel, nil
}

func (h *DeckHandler) enqueueJob(r *http.Request, userID uuid.UUID, jobType string, refID uuid.UUID, sub *models.Submission) error {
	config, _ := json.Marshal(sub)
	job := &models.Job{
		UserID:      userID,
		Type:        jobType,
		ReferenceID: refID,
		ConfigJSON:  config,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		log.Printf("failed to create job: %v", err)
		return err
	}

	jobBytes, _ := json.Marshal(job)
	if err := h.redis.LPush(r.Context(), "queue:"+jobType, string(jobBytes)).Err(); err != nil {
		log.Printf("failed to enqueue job %s: %v", job.ID, err)
		return err
	}
	return nil
}

func (h *DeckHandler) ownedDeck(w http.ResponseWriter, r *http.Request) (*models.Deck, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid deck ID", r))
		return nil, false
	}

	deck, err := h.deckRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Deck not found", r))
		return nil, false
	}

	if deck.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return deck, true
}
