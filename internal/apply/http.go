package apply

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/project"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/projects/{slug}/applies", h.ListApplies).Methods("GET")
	router.HandleFunc("/api/projects/{slug}/applies/apply", h.Apply).Methods("POST")
	router.HandleFunc("/api/projects/{slug}/applies/unapply", h.Unapply).Methods("POST")
	router.HandleFunc("/api/applies/{id}", h.SetStatus).Methods("PATCH")
}

func (h *Handler) ListApplies(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	applies, err := h.service.ListByProject(r.Context(), slug)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, applies)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var input ApplicantInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || h.validate.Struct(&input) != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.Info("apply requested", "project", slug)
	if _, err := h.service.Apply(r.Context(), slug, input); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"detail": "Successfully applied."})
}

type unapplyRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) Unapply(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var input unapplyRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || h.validate.Struct(&input) != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.Info("unapply requested", "project", slug)
	if err := h.service.Unapply(r.Context(), slug, input.Email); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"detail": "Successfully unapplied."})
}

type setStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid apply ID")
		return
	}

	var input setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || h.validate.Struct(&input) != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.Info("setting apply status", "apply_id", id, "status", input.Status)
	updated, err := h.service.SetStatus(r.Context(), id, input.Status)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyApplied):
		respondWithError(w, http.StatusConflict, "Already applied to this project")
	case errors.Is(err, ErrNotApplied):
		respondWithError(w, http.StatusBadRequest, "This user is not applied to this project")
	case errors.Is(err, ErrApplyNotFound):
		respondWithError(w, http.StatusNotFound, "Apply not found")
	case errors.Is(err, project.ErrProjectNotFound):
		respondWithError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, project.ErrRoleNotFound):
		respondWithError(w, http.StatusNotFound, "Role not found")
	case errors.Is(err, user.ErrUserNotFound):
		respondWithError(w, http.StatusBadRequest, "User not found")
	case errors.Is(err, ErrEmailRequired), errors.Is(err, ErrInvalidStatus):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAnonymousDisabled):
		respondWithError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.Error("internal error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
