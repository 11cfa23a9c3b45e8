package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/models"
	"cardforge-backend/internal/repository"
	"cardforge-backend/internal/services"
)

type NoteHandler struct {
	noteRepo *repository.NoteRepo
	jobRepo  *repository.JobRepo
	redis    *redis.Client
}

func NewNoteHandler(noteRepo *repository.NoteRepo, jobRepo *repository.JobRepo, redisClient *redis.Client) *NoteHandler {
	return &NoteHandler{
		noteRepo: noteRepo,
		jobRepo:  jobRepo,
		redis:    redisClient,
	}
}

// Generate queues a summary-note job. Notes accept the same source kinds as
// decks, minus file uploads (send text, a URL, or a video URL).
func (h *NoteHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.GenerateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	sub := req.Submission
	sub.Kind = services.SelectKind(sub)
	if sub.Kind == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No usable input source provided", r))
		return
	}
	if sub.Title == "" {
		sub.Title = "Untitled note"
	}

	note := &models.Note{
		ID:     uuid.New(),
		UserID: userID,
		Title:  sub.Title,
	}
	if err := h.noteRepo.Create(r.Context(), note); err != nil {
		log.Printf("failed to create note: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create note", r))
		return
	}

	config, _ := json.Marshal(sub)
	job := &models.Job{
		UserID:      userID,
		Type:        "note-generation",
		ReferenceID: note.ID,
		ConfigJSON:  config,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue generation", r))
		return
	}
	jobBytes, _ := json.Marshal(job)
	if err := h.redis.LPush(r.Context(), "queue:note-generation", string(jobBytes)).Err(); err != nil {
		log.Printf("failed to enqueue note job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to queue generation", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"note_id": note.ID,
		"status":  "pending",
	})
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	notes, err := h.noteRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list notes", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, ok := h.ownedNote(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	note, ok := h.ownedNote(w, r)
	if !ok {
		return
	}
	if err := h.noteRepo.Delete(r.Context(), note.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete note", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted"})
}

func (h *NoteHandler) ownedNote(w http.ResponseWriter, r *http.Request) (*models.Note, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid note ID", r))
		return nil, false
	}

	note, err := h.noteRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Note not found", r))
		return nil, false
	}

	if note.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, false
	}
	return note, true
}
