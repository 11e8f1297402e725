package sessions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func newTestServer() (*memStore, *httptest.Server) {
	store := newMemStore()
	h := NewHandlers(store)
	r := mux.NewRouter()
	h.Register(r)
	return store, httptest.NewServer(r)
}

func TestCreateAndListSessions(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", strings.NewReader(`{"title":"my chat"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created sessionView
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	listResp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer listResp.Body.Close()
	var list []sessionView
	json.NewDecoder(listResp.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("got %+v", list)
	}
}

func TestListMessagesMalformedID(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/not-a-uuid/messages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListMessagesUnknownID(t *testing.T) {
	_, srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/" + "00000000-0000-0000-0000-000000000000" + "/messages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	store, srv := newTestServer()
	defer srv.Close()

	sess, _ := store.CreateSession(nil, "to delete")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+sess.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	if _, err := store.GetSession(nil, sess.ID); err != ErrNotFound {
		t.Errorf("expected session to be deleted, got err=%v", err)
	}
}

func TestRelativeDisplayToday(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 30, 0, 0, time.Local)
	got := RelativeDisplay(now.Add(-time.Hour), now)
	if !strings.HasPrefix(got, "Today at") {
		t.Errorf("got %q", got)
	}
}

func TestRelativeDisplayYesterday(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 30, 0, 0, time.Local)
	got := RelativeDisplay(now.AddDate(0, 0, -1), now)
	if !strings.HasPrefix(got, "Yesterday at") {
		t.Errorf("got %q", got)
	}
}

func TestRelativeDisplayOlderThanWeek(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 30, 0, 0, time.Local)
	got := RelativeDisplay(now.AddDate(0, 0, -30), now)
	if strings.Contains(got, "Today") || strings.Contains(got, "Yesterday") {
		t.Errorf("got %q, want a plain date", got)
	}
}

func TestTitleFromContentTruncates(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := TitleFromContent(long)
	if len([]rune(got)) != maxTitleRunes+3 {
		t.Errorf("got length %d", len([]rune(got)))
	}
}
