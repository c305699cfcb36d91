package project

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
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
	router.HandleFunc("/api/projects", h.CreateProject).Methods("POST")
	router.HandleFunc("/api/projects/manageable", h.ListManageable).Methods("GET")
	router.HandleFunc("/api/projects/{slug}", h.GetProject).Methods("GET")
	router.HandleFunc("/api/projects/{slug}", h.UpdateProject).Methods("PATCH")
	router.HandleFunc("/api/projects/{slug}", h.DeleteProject).Methods("DELETE")
	router.HandleFunc("/api/projects/{slug}/close", h.CloseProject).Methods("POST")
	router.HandleFunc("/api/projects/{slug}/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/api/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/api/roles/{id}", h.DeleteRole).Methods("DELETE")
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var input CreateProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || h.validate.Struct(&input) != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.Info("creating project", "name", input.Name)
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	p, err := h.service.Get(r.Context(), slug)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var input UpdateProjectInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.Info("updating project", "slug", slug)
	updated, err := h.service.Update(r.Context(), slug, input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *Handler) CloseProject(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	h.logger.Info("closing project", "slug", slug)
	closed, err := h.service.Close(r.Context(), slug)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, closed)
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	h.logger.Info("deleting project", "slug", slug)
	if err := h.service.Delete(r.Context(), slug); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListManageable(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid owner ID")
		return
	}

	projects, err := h.service.ListManageable(r.Context(), ownerID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, projects)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var input RoleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || h.validate.Struct(&input) != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	role, err := h.service.CreateRole(r.Context(), slug, input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid role ID")
		return
	}

	var input RoleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || h.validate.Struct(&input) != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	role, err := h.service.UpdateRole(r.Context(), id, input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid role ID")
		return
	}

	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		respondWithError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, ErrRoleNotFound):
		respondWithError(w, http.StatusNotFound, "Role not found")
	case errors.Is(err, ErrOwnerNotFound):
		respondWithError(w, http.StatusBadRequest, "Owner not found")
	case errors.Is(err, ErrOrganizationRequired):
		respondWithError(w, http.StatusBadRequest, "Organization is required")
	case errors.Is(err, ErrInvalidDisponibility):
		respondWithError(w, http.StatusBadRequest, "Invalid disponibility")
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
