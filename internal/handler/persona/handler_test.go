package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mharburg8/talk-to-your-inner-child/internal/auth"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	personaService "github.com/mharburg8/talk-to-your-inner-child/internal/service/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/storage"
	"github.com/mharburg8/talk-to-your-inner-child/internal/store"
)

func setupRouter() *chi.Mux {
	svc := personaService.NewService(store.NewMemoryStore(), storage.NewMemoryStore("", time.Hour), nil, logging.Nop{}, time.Hour)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get("X-Test-User"); id != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	New(svc, logging.Nop{}).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createPersona(t *testing.T, r http.Handler, user string) string {
	t.Helper()
	resp := do(r, http.MethodPost, "/personas", user,
		`{"label":"Me at 7","ageNumber":7,"tonePreset":"playful","contextPrompt":"First bike"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var body struct {
		Persona struct {
			ID string `json:"id"`
		} `json:"persona"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Persona.ID
}

func TestPersonaCRUD(t *testing.T) {
	r := setupRouter()
	id := createPersona(t, r, "u1")

	resp := do(r, http.MethodGet, "/personas", "u1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), id)

	resp = do(r, http.MethodGet, "/personas", "u2", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"personas":[]}`, resp.Body.String())

	resp = do(r, http.MethodPatch, "/personas/"+id, "u1", `{"label":"Me at seven"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"label":"Me at seven"`)
	assert.Contains(t, resp.Body.String(), `"ageNumber":7`)

	resp = do(r, http.MethodGet, "/personas/"+id, "u1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"media":[]`)

	resp = do(r, http.MethodDelete, "/personas/"+id, "u1", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(r, http.MethodGet, "/personas/"+id, "u1", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPersonaValidationAndOwnership(t *testing.T) {
	r := setupRouter()
	id := createPersona(t, r, "u1")

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
	}{
		{"age out of range", http.MethodPost, "/personas", "u1", `{"label":"x","ageNumber":0,"tonePreset":"gentle","contextPrompt":"c"}`, http.StatusBadRequest},
		{"bad tone", http.MethodPost, "/personas", "u1", `{"label":"x","ageNumber":5,"tonePreset":"angry","contextPrompt":"c"}`, http.StatusBadRequest},
		{"age is immutable", http.MethodPatch, "/personas/" + id, "u1", `{"ageNumber":30}`, http.StatusBadRequest},
		{"other user get", http.MethodGet, "/personas/" + id, "u2", "", http.StatusNotFound},
		{"other user delete", http.MethodDelete, "/personas/" + id, "u2", "", http.StatusNotFound},
		{"unauthenticated", http.MethodGet, "/personas", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(r, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, resp.Code, resp.Body.String())
		})
	}
}

func TestMediaUploadFlow(t *testing.T) {
	r := setupRouter()
	id := createPersona(t, r, "u1")

	resp := do(r, http.MethodPost, "/personas/"+id+"/media/upload-url", "u1",
		`{"mediaType":"voice_reference","mimeType":"audio/wav","fileName":"voice.wav"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var ticket personaService.UploadTicket
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ticket))
	assert.True(t, strings.HasPrefix(ticket.StorageKey, "persona-media/u1/"))
	assert.NotEmpty(t, ticket.UploadURL)
	assert.Equal(t, 3600, ticket.ExpiresIn)

	resp = do(r, http.MethodPost, "/personas/"+id+"/media/confirm", "u1",
		`{"mediaType":"voice_reference","mimeType":"audio/wav","storageKey":"`+ticket.StorageKey+`","durationSeconds":12.5}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"durationSeconds":12.5`)

	resp = do(r, http.MethodPost, "/personas/"+id+"/media/confirm", "u1",
		`{"mediaType":"voice_reference","mimeType":"audio/wav","storageKey":"persona-media/u2/1-x-voice.wav"}`)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = do(r, http.MethodGet, "/personas", "u1", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"voiceReference"`)
}
