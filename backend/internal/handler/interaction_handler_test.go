package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"prompthub/backend/internal/repository"
	interactionsvc "prompthub/backend/internal/service/interaction"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newInteractionHandler(t *testing.T, db *gorm.DB) *InteractionHandler {
	t.Helper()

	service := interactionsvc.NewService(
		repository.NewPromptRepository(db),
		repository.NewUpvoteRepository(db),
		repository.NewBookmarkRepository(db),
		nil,
	)
	return NewInteractionHandler(service)
}

type toggleEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Upvoted    bool  `json:"upvoted"`
		Bookmarked bool  `json:"bookmarked"`
		Count      int64 `json:"count"`
	} `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeToggle(t *testing.T, w *httptest.ResponseRecorder) toggleEnvelope {
	t.Helper()
	var envelope toggleEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v\n%s", err, w.Body.String())
	}
	return envelope
}

func promptParams(id string) gin.Params {
	return gin.Params{{Key: "id", Value: id}}
}

func TestToggleUpvoteRequiresLogin(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h := newInteractionHandler(t, db)

	w := performRequest(t, h.ToggleUpvote, http.MethodPost, "/api/prompts/p1/upvote", "", promptParams("p1"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	envelope := decodeToggle(t, w)
	if envelope.Success || envelope.Error == nil || envelope.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("error envelope = %s", w.Body.String())
	}
}

func TestToggleUpvoteRoundTrip(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h := newInteractionHandler(t, db)

	w := performRequest(t, h.ToggleUpvote, http.MethodPost, "/api/prompts/p1/upvote", "viewer", promptParams("p1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", w.Code, w.Body.String())
	}
	envelope := decodeToggle(t, w)
	if !envelope.Success || !envelope.Data.Upvoted || envelope.Data.Count != 1 {
		t.Fatalf("first toggle = %s", w.Body.String())
	}

	w = performRequest(t, h.ToggleUpvote, http.MethodPost, "/api/prompts/p1/upvote", "viewer", promptParams("p1"))
	envelope = decodeToggle(t, w)
	if envelope.Data.Upvoted || envelope.Data.Count != 0 {
		t.Fatalf("second toggle = %s", w.Body.String())
	}
}

func TestToggleBookmarkUnknownPrompt(t *testing.T) {
	db := newTestDB(t)
	h := newInteractionHandler(t, db)

	w := performRequest(t, h.ToggleBookmark, http.MethodPost, "/api/prompts/missing/bookmark", "viewer", promptParams("missing"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	envelope := decodeToggle(t, w)
	if envelope.Success || envelope.Error == nil || envelope.Error.Code != "NOT_FOUND" {
		t.Fatalf("error envelope = %s", w.Body.String())
	}
}

func TestIncrementCopyAllowsAnonymous(t *testing.T) {
	db := newTestDB(t)
	seedFeedFixtures(t, db)
	h := newInteractionHandler(t, db)

	w := performRequest(t, h.IncrementCopy, http.MethodPost, "/api/prompts/p1/copy", "", promptParams("p1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\n%s", w.Code, w.Body.String())
	}

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Success bool `json:"success"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Success || !envelope.Data.Success {
		t.Fatalf("copy envelope = %s", w.Body.String())
	}

	w = performRequest(t, h.IncrementCopy, http.MethodPost, "/api/prompts/missing/copy", "", promptParams("missing"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
