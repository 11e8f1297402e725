package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Handlers serves the /api/sessions surface from api/sessions.py.
type Handlers struct {
	store Store
}

func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// Register mounts the session routes on an existing mux.Router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.create).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.delete).Methods(http.MethodDelete)
}

type sessionView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Display   string `json:"display_time"`
}

func toView(s Session) sessionView {
	return sessionView{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
		Display:   RelativeDisplay(s.UpdatedAt, time.Now()),
	}
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	sess, err := h.store.CreateSession(r.Context(), body.Title)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toView(sess))
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListSessions(r.Context())
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	views := make([]sessionView, 0, len(list))
	for _, s := range list {
		views = append(views, toView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "malformed session id", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "malformed session id", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RelativeDisplay formats a timestamp relative to now, matching
// session_service.py's format_session_time: "Today at 03:04 PM",
// "Yesterday at 03:04 PM", a weekday name within the last week, else
// "Jan 02, 2006".
func RelativeDisplay(t, now time.Time) string {
	t = t.Local()
	now = now.Local()

	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()

	if ty == ny && tm == nm && td == nd {
		return "Today at " + t.Format("03:04 PM")
	}

	yesterday := now.AddDate(0, 0, -1)
	yy, ym, yd := yesterday.Date()
	if ty == yy && tm == ym && td == yd {
		return "Yesterday at " + t.Format("03:04 PM")
	}

	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Monday") + " at " + t.Format("03:04 PM")
	}

	return t.Format("Jan 02, 2006")
}
