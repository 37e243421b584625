package target

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHandler_List(t *testing.T) {
	t.Run("enabled only", func(t *testing.T) {
		repo := new(MockRepository)
		handler := NewHandler(NewService(repo))
		repo.On("ListEnabled", mock.Anything, nil, "dom-1", 0).Return([]Target{webhook(t, "dom-1")}, nil)

		req := httptest.NewRequest(http.MethodGet, "/domains/dom-1/targets", nil)
		req.SetPathValue("domainId", "dom-1")
		w := httptest.NewRecorder()

		handler.List(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)
		repo.AssertExpectations(t)
	})

	t.Run("all", func(t *testing.T) {
		repo := new(MockRepository)
		handler := NewHandler(NewService(repo))
		repo.On("ListByDomain", mock.Anything, nil, "dom-1", 20).Return([]Target(nil), nil)

		req := httptest.NewRequest(http.MethodGet, "/domains/dom-1/targets?all=true&limit=20", nil)
		req.SetPathValue("domainId", "dom-1")
		w := httptest.NewRecorder()

		handler.List(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, w.Body.String())
	})
}

func TestHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		repo := new(MockRepository)
		handler := NewHandler(NewService(repo))
		repo.On("Save", mock.Anything, nil, mock.Anything).Return(nil)

		body := `{"type":"linkedin","config":{"organization_id":"77","access_token":"tok"}}`
		req := httptest.NewRequest(http.MethodPost, "/domains/dom-1/targets", bytes.NewBufferString(body))
		req.SetPathValue("domainId", "dom-1")
		w := httptest.NewRecorder()

		handler.Create(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"type":"linkedin"`)
	})

	t.Run("invalid config", func(t *testing.T) {
		repo := new(MockRepository)
		handler := NewHandler(NewService(repo))

		body := `{"type":"webhook","config":{"url":"ftp://x"}}`
		req := httptest.NewRequest(http.MethodPost, "/domains/dom-1/targets", bytes.NewBufferString(body))
		req.SetPathValue("domainId", "dom-1")
		w := httptest.NewRecorder()

		handler.Create(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	})
}

func TestHandler_Toggle_NotFound(t *testing.T) {
	repo := new(MockRepository)
	handler := NewHandler(NewService(repo))
	repo.On("GetByID", mock.Anything, nil, "target-9").Return(Target{}, false, nil)

	req := httptest.NewRequest(http.MethodPost, "/domains/dom-1/targets/target-9/toggle", nil)
	req.SetPathValue("domainId", "dom-1")
	req.SetPathValue("id", "target-9")
	w := httptest.NewRecorder()

	handler.Toggle(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_UpdateConfigAndDelete(t *testing.T) {
	repo := new(MockRepository)
	handler := NewHandler(NewService(repo))
	repo.On("GetByID", mock.Anything, nil, "target-1").Return(webhook(t, "dom-1"), true, nil)
	repo.On("Save", mock.Anything, nil, mock.Anything).Return(nil)
	repo.On("Delete", mock.Anything, nil, "target-1").Return(nil)

	req := httptest.NewRequest(http.MethodPatch, "/domains/dom-1/targets/target-1/config", bytes.NewBufferString(`{"secret":"s3"}`))
	req.SetPathValue("domainId", "dom-1")
	req.SetPathValue("id", "target-1")
	w := httptest.NewRecorder()
	handler.UpdateConfig(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"secret":"s3"`)

	req = httptest.NewRequest(http.MethodDelete, "/domains/dom-1/targets/target-1", nil)
	req.SetPathValue("domainId", "dom-1")
	req.SetPathValue("id", "target-1")
	w = httptest.NewRecorder()
	handler.Delete(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandler_RejectsOversizedBody(t *testing.T) {
	huge := strings.Repeat("a", maxBodyBytes)

	t.Run("create", func(t *testing.T) {
		repo := new(MockRepository)
		handler := NewHandler(NewService(repo))

		body := `{"type":"webhook","config":{"url":"https://hooks.example.com","note":"` + huge + `"}}`
		req := httptest.NewRequest(http.MethodPost, "/domains/dom-1/targets", strings.NewReader(body))
		req.SetPathValue("domainId", "dom-1")
		w := httptest.NewRecorder()

		handler.Create(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "request body too large")
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update config", func(t *testing.T) {
		repo := new(MockRepository)
		handler := NewHandler(NewService(repo))

		body := `{"url":"https://hooks.example.com","note":"` + huge + `"}`
		req := httptest.NewRequest(http.MethodPatch, "/domains/dom-1/targets/target-1/config", strings.NewReader(body))
		req.SetPathValue("domainId", "dom-1")
		req.SetPathValue("id", "target-1")
		w := httptest.NewRecorder()

		handler.UpdateConfig(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
	})
}
