package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voicedrop/backend/internal/auth"
	"github.com/voicedrop/backend/internal/identity"
	"github.com/voicedrop/backend/internal/logging"
	"github.com/voicedrop/backend/internal/models"
	"github.com/voicedrop/backend/internal/recordings"
)

const defaultMaxUploadBytes = 10 << 20

// RecordingHandler implements the voice message endpoints.
type RecordingHandler struct {
	Recordings RecordingService
	Profiles   ProfileResolver
	Sessions   SessionService
	Limiter    RateLimiter

	// MaxUploadBytes caps the decoded audio size. Zero means the default.
	MaxUploadBytes int64
}

// Create handles POST /api/v1/recordings requests. A valid bearer token
// records the caller as sender, no token sends anonymously, and a token that
// fails validation is rejected rather than downgraded to anonymous.
func (h RecordingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil || h.Profiles == nil || h.Sessions == nil {
		logger.Error("recording dependencies unavailable", "hasRecordings", h.Recordings != nil, "hasProfiles", h.Profiles != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording services unavailable"})
		return
	}

	if !allowRequest(h.Limiter, r, "upload") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var senderID *int64
	if token := bearerToken(r); token != "" {
		userID, err := h.Sessions.Validate(ctx, token)
		if err != nil {
			if errors.Is(err, auth.ErrSessionInvalid) {
				respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
				return
			}
			logger.Error("validate session", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to validate session"})
			return
		}
		senderID = &userID
	}

	limit := h.maxUploadBytes()
	// base64 inflates the audio by a third; the doubled cap leaves room for
	// the JSON envelope while still bounding the read.
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		logger.Warn("invalid upload payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RecipientHandle = strings.TrimSpace(req.RecipientHandle)
	if err := validateStruct(req); err != nil {
		logger.Warn("invalid upload request", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		logger.Warn("upload audio not base64", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "audio_data must be base64 encoded"})
		return
	}
	if len(audio) == 0 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "audio_data is required"})
		return
	}
	if int64(len(audio)) > limit {
		respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": "audio exceeds maximum size"})
		return
	}

	recipient, err := h.Profiles.FindByHandle(ctx, req.RecipientHandle)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recipient not found"})
			return
		}
		logger.Error("resolve recipient", "handle", req.RecipientHandle, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to resolve recipient"})
		return
	}

	rec, err := h.Recordings.Create(ctx, recordings.CreateParams{
		SenderID:    senderID,
		RecipientID: recipient.ID,
		Audio:       audio,
		Duration:    req.DurationSeconds,
		Transform: models.Transform{
			Kind:       strings.TrimSpace(req.Transformation.Type),
			PitchShift: req.Transformation.PitchShift,
			SpeedRate:  req.Transformation.SpeedRate,
		},
	})
	if err != nil {
		// The recipient can disappear between the handle lookup and the
		// insert; surface that the same way as an unknown handle.
		if errors.Is(err, recordings.ErrRecipientNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recipient not found"})
			return
		}
		logger.Error("store recording", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store recording"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, createResponse{ID: rec.ID})
}

// ByKey dispatches /api/v1/recordings/{key}: GET treats the key as a view
// name and lists it, DELETE treats it as a recording id.
func (h RecordingHandler) ByKey(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h RecordingHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil || h.Sessions == nil {
		logger.Error("recording dependencies unavailable", "hasRecordings", h.Recordings != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	view := models.View(r.PathValue("key"))
	recs, err := h.Recordings.List(ctx, userID, view)
	if err != nil {
		if errors.Is(err, recordings.ErrUnknownView) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		logger.Error("list recordings", "view", string(view), "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to list recordings"})
		return
	}

	out := make([]recordingResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newRecordingResponse(rec))
	}

	respondJSON(ctx, w, http.StatusOK, listResponse{Recordings: out})
}

func (h RecordingHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil || h.Sessions == nil {
		logger.Error("recording dependencies unavailable", "hasRecordings", h.Recordings != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("key"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recording not found"})
		return
	}

	if err := h.Recordings.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recording not found"})
			return
		}
		logger.Error("delete recording", "recordingId", id, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to delete recording"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// MarkRead handles POST /api/v1/recordings/{id}/read requests. A recording
// the caller does not receive is left untouched and still answered with 200.
func (h RecordingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.updateFlag(w, r, "mark recording read", func(id, userID int64, r *http.Request) error {
		return h.Recordings.MarkRead(r.Context(), id, userID)
	})
}

// ToggleFavorite handles POST /api/v1/recordings/{id}/favorite requests.
// Same quiet contract as MarkRead; the flag flips on each call.
func (h RecordingHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.updateFlag(w, r, "toggle recording favorite", func(id, userID int64, r *http.Request) error {
		return h.Recordings.ToggleFavorite(r.Context(), id, userID)
	})
}

func (h RecordingHandler) updateFlag(w http.ResponseWriter, r *http.Request, action string, apply func(id, userID int64, r *http.Request) error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil || h.Sessions == nil {
		logger.Error("recording dependencies unavailable", "hasRecordings", h.Recordings != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recording not found"})
		return
	}

	if err := apply(id, userID, r); err != nil {
		logger.Error(action, "recordingId", id, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to update recording"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// Audio handles GET /api/v1/recordings/{id}/audio requests, streaming the
// stored blob to the sender or the recipient.
func (h RecordingHandler) Audio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil || h.Sessions == nil {
		logger.Error("recording dependencies unavailable", "hasRecordings", h.Recordings != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recording not found"})
		return
	}

	audio, rec, err := h.Recordings.Audio(ctx, id, userID)
	if err != nil {
		if errors.Is(err, recordings.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recording not found"})
			return
		}
		logger.Error("open recording audio", "recordingId", id, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load recording audio"})
		return
	}
	defer func() {
		_ = audio.Close()
	}()

	w.Header().Set("Content-Type", "audio/wav")
	if rec.AudioSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.AudioSize, 10))
	}
	if _, err := io.Copy(w, audio); err != nil {
		logger.Error("stream recording audio", "recordingId", id, "error", err)
	}
}

// Stats handles GET /api/v1/stats requests.
func (h RecordingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil || h.Sessions == nil {
		logger.Error("recording dependencies unavailable", "hasRecordings", h.Recordings != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording services unavailable"})
		return
	}

	userID, ok := authenticate(w, r, h.Sessions)
	if !ok {
		return
	}

	stats, err := h.Recordings.Stats(ctx, userID)
	if err != nil {
		logger.Error("load recording stats", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load stats"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, statsResponse{
		Received:  stats.Received,
		Sent:      stats.Sent,
		Favorites: stats.Favorites,
		Unread:    stats.Unread,
	})
}

func (h RecordingHandler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

type uploadRequest struct {
	RecipientHandle string        `json:"recipient_handle" validate:"required"`
	AudioData       string        `json:"audio_data" validate:"required"`
	DurationSeconds float64       `json:"duration_seconds" validate:"gte=0"`
	Transformation  transformBody `json:"transformation"`
}

type transformBody struct {
	Type       string  `json:"type"`
	PitchShift float64 `json:"pitch_shift"`
	SpeedRate  float64 `json:"speed_rate"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

type listResponse struct {
	Recordings []recordingResponse `json:"recordings"`
}

// recordingResponse annotates a recording with the counterpart's public
// fields. Sender fields stay empty on anonymous recordings.
type recordingResponse struct {
	ID             int64     `json:"id"`
	SenderID       *int64    `json:"sender_id,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderEmail    string    `json:"sender_email,omitempty"`
	RecipientID    int64     `json:"recipient_id"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	AudioSize      int64     `json:"audio_size"`
	Duration       float64   `json:"duration_seconds"`
	Transformation string    `json:"transformation"`
	PitchShift     float64   `json:"pitch_shift"`
	SpeedRate      float64   `json:"speed_rate"`
	Read           bool      `json:"is_read"`
	Favorite       bool      `json:"is_favorite"`
	CreatedAt      time.Time `json:"created_at"`
}

func newRecordingResponse(rec models.Recording) recordingResponse {
	return recordingResponse{
		ID:             rec.ID,
		SenderID:       rec.SenderID,
		SenderName:     rec.SenderName,
		SenderEmail:    rec.SenderEmail,
		RecipientID:    rec.RecipientID,
		RecipientName:  rec.RecipientName,
		RecipientEmail: rec.RecipientEmail,
		AudioSize:      rec.AudioSize,
		Duration:       rec.Duration,
		Transformation: rec.Transform.Kind,
		PitchShift:     rec.Transform.PitchShift,
		SpeedRate:      rec.Transform.SpeedRate,
		Read:           rec.Read,
		Favorite:       rec.Favorite,
		CreatedAt:      rec.CreatedAt,
	}
}

type statsResponse struct {
	Received  int64 `json:"received"`
	Sent      int64 `json:"sent"`
	Favorites int64 `json:"favorites"`
	Unread    int64 `json:"unread"`
}
