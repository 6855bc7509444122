package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/formloft/formloft/pkg/auth"
	"github.com/formloft/formloft/pkg/httputil"
	"github.com/formloft/formloft/pkg/observability"
)

// FormHandlers handles form and submission HTTP requests
type FormHandlers struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewFormHandlers creates a new form handlers instance
func NewFormHandlers(db *sql.DB, logger *observability.Logger) *FormHandlers {
	return &FormHandlers{db: db, logger: logger}
}

// Form is the API representation of a form definition
type Form struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	TenantID  int64     `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is the API representation of a form submission
type Submission struct {
	ID        int64     `json:"id"`
	FormID    int64     `json:"form_id"`
	OwnerID   string    `json:"owner_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// listForms handles GET /forms
func (h *FormHandlers) listForms(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, name, owner_id, tenant_id, created_at, updated_at
		FROM forms
		WHERE tenant_id = $1
		ORDER BY id`, principal.TenantID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list forms")
		httputil.WriteInternalError(w, err)
		return
	}
	defer rows.Close()

	forms := []Form{}
	for rows.Next() {
		var f Form
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerID, &f.TenantID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, forms)
}

// createForm handles POST /forms
func (h *FormHandlers) createForm(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	now := time.Now().UTC()
	form := Form{Name: req.Name, OwnerID: principal.Subject, TenantID: principal.TenantID, CreatedAt: now, UpdatedAt: now}
	err := h.db.QueryRowContext(r.Context(), `
		INSERT INTO forms (name, owner_id, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		form.Name, form.OwnerID, form.TenantID, now, now,
	).Scan(&form.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to create form")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, form)
}

// getForm handles GET /forms/{id}
func (h *FormHandlers) getForm(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var f Form
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, name, owner_id, tenant_id, created_at, updated_at
		FROM forms WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.OwnerID, &f.TenantID, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		httputil.WriteNotFound(w, "form not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, f)
}

// updateForm handles PATCH /forms/{id}
func (h *FormHandlers) updateForm(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	result, err := h.db.ExecContext(r.Context(), `
		UPDATE forms SET name = $1, updated_at = $2 WHERE id = $3`,
		req.Name, time.Now().UTC(), id)
	if err != nil {
		h.logger.WithError(err).Error("failed to update form")
		httputil.WriteInternalError(w, err)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		httputil.WriteNotFound(w, "form not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// getSubmission handles GET /submissions/{id}
func (h *FormHandlers) getSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var s Submission
	err := h.db.QueryRowContext(r.Context(), `
		SELECT id, form_id, owner_id, status, created_at, updated_at
		FROM submissions WHERE id = $1`, id,
	).Scan(&s.ID, &s.FormID, &s.OwnerID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		httputil.WriteNotFound(w, "submission not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, s)
}

// updateSubmission handles PATCH /submissions/{id}
func (h *FormHandlers) updateSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status == "" {
		httputil.WriteBadRequest(w, "status is required")
		return
	}

	result, err := h.db.ExecContext(r.Context(), `
		UPDATE submissions SET status = $1, updated_at = $2 WHERE id = $3`,
		req.Status, time.Now().UTC(), id)
	if err != nil {
		h.logger.WithError(err).Error("failed to update submission")
		httputil.WriteInternalError(w, err)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		httputil.WriteNotFound(w, "submission not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
