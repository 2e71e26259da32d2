package notebooks

import (
	"encoding/json"
	"errors"
	"net/http"
	"notebook-server/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// UnknownAuthor is recorded for saves whose token does not resolve.
const UnknownAuthor = "unknown"

type (
	SaveRequest struct {
		ID      string          `json:"id,omitempty"`
		Title   string          `json:"title"`
		Content json.RawMessage `json:"content"`
		Token   string          `json:"token"`
	}

	SaveResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	// Identity resolves an access token to a display name.
	Identity interface {
		DisplayName(token string) (string, error)
	}
)

// HandleList lists notebook summaries, most recently updated first.
func HandleList(store core.NotebookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notebooks, err := store.List(r.Context())
		if err != nil {
			logrus.WithField("error", err).Error("Failed to list notebooks")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list notebooks"})
			return
		}

		if notebooks == nil {
			notebooks = []*core.Notebook{}
		}

		render.JSON(w, r, notebooks)
	}
}

// HandleGet returns one notebook with its content.
func HandleGet(store core.NotebookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		notebook, err := store.Get(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, err, "Failed to get notebook")
			return
		}

		render.JSON(w, r, notebook)
	}
}

// HandleSave creates a notebook, or updates it when the request names an id.
// The author is taken from the request token; saves with a missing or invalid
// token are still accepted and attributed to UnknownAuthor.
func HandleSave(store core.NotebookStore, identity Identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithField("error", err).Error("Failed to decode request")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if len(req.Content) == 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "content is required"})
			return
		}

		who := UnknownAuthor
		if req.Token != "" {
			if name, err := identity.DisplayName(req.Token); err == nil {
				who = name
			} else {
				logrus.WithField("error", err).Debug("Ignoring unverifiable token on save")
			}
		}

		id, action, err := store.Save(r.Context(), &core.Notebook{
			ID:      req.ID,
			Title:   req.Title,
			Content: req.Content,
		}, who)
		if err != nil {
			writeStoreError(w, r, err, "Failed to save notebook")
			return
		}

		logrus.WithFields(logrus.Fields{
			"notebook_id": id,
			"action":      action,
			"who":         who,
		}).Info("Notebook saved")
		render.JSON(w, r, SaveResponse{ID: id, Status: "saved"})
	}
}

// HandleAudit lists the audit trail of one notebook, oldest first.
func HandleAudit(store core.NotebookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		entries, err := store.Audit(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, err, "Failed to list audit entries")
			return
		}

		if entries == nil {
			entries = []core.AuditEntry{}
		}

		render.JSON(w, r, entries)
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, core.ErrNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Not found"})
		return
	}

	logrus.WithField("error", err).Error(msg)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": msg})
}
