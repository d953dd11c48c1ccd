package handler

import (
	"net/http"
	"strconv"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/repository"
)

// ContactHandler exposes the recipient directory to the dashboard.
type ContactHandler struct {
	Repo repository.ContactRepositoryInterface
}

// ListContacts returns a page of contacts ordered by name.
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	contacts, total, err := h.Repo.List((page-1)*limit, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"contacts": contacts,
			"pagination": map[string]int{
				"page":        page,
				"limit":       limit,
				"total_count": total,
			},
		},
	})
}
