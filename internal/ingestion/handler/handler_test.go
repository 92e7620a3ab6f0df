package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

type fakeIngester struct {
	resp *ingestion.IngestResponse
	err  error
	got  *ingestion.IngestRequest
}

func (f *fakeIngester) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	f.got = req
	return f.resp, f.err
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chunks", strings.NewReader(body)))
	return rec
}

func TestIngestAccepted(t *testing.T) {
	f := &fakeIngester{resp: &ingestion.IngestResponse{Source: "hr.txt", Status: ingestion.StatusStored, Chunks: 3}}
	rec := post(New(f), `{"source":"hr.txt","text":"Leave is 20 days.","idempotency_key":"k1"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Chunks)
	assert.Equal(t, "k1", f.got.IdempotencyKey)
}

func TestIngestDuplicateIsOK(t *testing.T) {
	f := &fakeIngester{resp: &ingestion.IngestResponse{Source: "hr.txt", Status: ingestion.StatusDuplicate, Chunks: 3}}
	rec := post(New(f), `{"source":"hr.txt","text":"x","idempotency_key":"k1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRejectsBadInput(t *testing.T) {
	f := &fakeIngester{}
	rec := post(New(f), `{"source":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(New(f), `{"text":"no source"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body["error"])
	assert.Contains(t, body["fields"], "source")
	assert.Nil(t, f.got)
}

func TestIngestMapsErrors(t *testing.T) {
	f := &fakeIngester{err: apperrors.New(apperrors.ErrIdempotencyConflict, http.StatusConflict, "idempotency key already in use")}
	rec := post(New(f), `{"source":"a","text":"x","idempotency_key":"k"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "idempotency key already in use")
}
