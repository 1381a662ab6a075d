package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skaldhq/skald/internal/errors"
	"github.com/skaldhq/skald/pkg/jobstore"
	"github.com/skaldhq/skald/pkg/pipeline"
)

type fakeService struct {
	createTranscription func(ctx context.Context, ref string) (*jobstore.Record, error)
	createSummarization func(ctx context.Context, id string) (*jobstore.Record, error)
	getStatus           func(ctx context.Context, id string) (*jobstore.Record, error)
}

func (f *fakeService) CreateTranscription(ctx context.Context, ref string) (*jobstore.Record, error) {
	return f.createTranscription(ctx, ref)
}

func (f *fakeService) CreateSummarization(ctx context.Context, id string) (*jobstore.Record, error) {
	return f.createSummarization(ctx, id)
}

func (f *fakeService) GetStatus(ctx context.Context, id string) (*jobstore.Record, error) {
	return f.getStatus(ctx, id)
}

func testRouter(h *Jobs) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/transcriptions", h.CreateTranscription)
	r.Get("/v1/transcriptions/{id}", h.GetJob(jobstore.KindTranscription))
	r.Post("/v1/summaries", h.CreateSummarization)
	r.Get("/v1/summaries/{id}", h.GetJob(jobstore.KindSummarization))
	return r
}

func decodeErrorCode(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp.Error.Code
}

func TestCreateTranscription_JSONReference(t *testing.T) {
	var gotRef string
	svc := &fakeService{
		createTranscription: func(_ context.Context, ref string) (*jobstore.Record, error) {
			gotRef = ref
			return jobstore.NewRecord(jobstore.KindTranscription, ref), nil
		},
	}
	h := NewJobs(svc, t.TempDir(), 0)

	body := strings.NewReader(`{"source_ref":"s3://recordings/standup.m4a"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	testRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "s3://recordings/standup.m4a", gotRef)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "transcription", resp.Kind)
	assert.Equal(t, "pending", resp.Status)
	assert.Zero(t, resp.Progress)
	assert.Nil(t, resp.Output)
	assert.Nil(t, resp.Error)
}

func TestCreateTranscription_InvalidJSON(t *testing.T) {
	h := NewJobs(&fakeService{}, t.TempDir(), 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	testRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeBadRequest, decodeErrorCode(t, rec.Body))
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateTranscription_Upload(t *testing.T) {
	uploadDir := t.TempDir()
	var gotRef string
	svc := &fakeService{
		createTranscription: func(_ context.Context, ref string) (*jobstore.Record, error) {
			gotRef = ref
			return jobstore.NewRecord(jobstore.KindTranscription, ref), nil
		},
	}
	h := NewJobs(svc, uploadDir, 0)

	body, contentType := multipartBody(t, "file", "standup.mp3", []byte("audio bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	testRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, strings.HasPrefix(gotRef, "file://"), "got ref %q", gotRef)

	spooled := strings.TrimPrefix(gotRef, "file://")
	assert.Equal(t, ".mp3", filepath.Ext(spooled))
	data, err := os.ReadFile(spooled)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(data))
}

func TestCreateTranscription_UploadRejectsUnknownFormat(t *testing.T) {
	h := NewJobs(&fakeService{}, t.TempDir(), 0)

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	testRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, apperrors.CodeUnsupportedMedia, decodeErrorCode(t, rec.Body))
}

func TestCreateTranscription_UploadTooLarge(t *testing.T) {
	h := NewJobs(&fakeService{}, t.TempDir(), 64)

	body, contentType := multipartBody(t, "file", "big.mp3", bytes.Repeat([]byte{0x01}, 4096))
	req := httptest.NewRequest(http.MethodPost, "/v1/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	testRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apperrors.CodePayloadTooLarge, decodeErrorCode(t, rec.Body))
}

func TestCreateSummarization_MapsPreconditionErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"unknown transcription", jobstore.ErrNotFound, http.StatusNotFound, apperrors.CodeNotFound},
		{"not completed", pipeline.ErrNotCompleted, http.StatusConflict, apperrors.CodePreconditionFailed},
		{"wrong kind", pipeline.ErrNotTranscription, http.StatusConflict, apperrors.CodePreconditionFailed},
		{"empty transcript", pipeline.ErrEmptyTranscript, http.StatusConflict, apperrors.CodePreconditionFailed},
		{"blank id", pipeline.ErrEmptyReference, http.StatusBadRequest, apperrors.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				createSummarization: func(context.Context, string) (*jobstore.Record, error) {
					return nil, tt.err
				},
			}
			h := NewJobs(svc, t.TempDir(), 0)

			req := httptest.NewRequest(http.MethodPost, "/v1/summaries",
				strings.NewReader(`{"transcription_id":"some-id"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			testRouter(h).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, decodeErrorCode(t, rec.Body))
		})
	}
}

func TestGetJob(t *testing.T) {
	completed := jobstore.NewRecord(jobstore.KindTranscription, "talk.mp3")
	require.NoError(t, completed.MarkProcessing(0.02))
	completed.Complete("the transcript")

	svc := &fakeService{
		getStatus: func(_ context.Context, id string) (*jobstore.Record, error) {
			if id == completed.ID {
				return completed, nil
			}
			return nil, jobstore.ErrNotFound
		},
	}
	h := NewJobs(svc, t.TempDir(), 0)
	router := testRouter(h)

	t.Run("completed job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/transcriptions/"+completed.ID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, 1.0, resp.Progress)
		require.NotNil(t, resp.Output)
		assert.Equal(t, "the transcript", *resp.Output)
		assert.Nil(t, resp.Error)
	})

	t.Run("unknown id is not found, never failed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/transcriptions/nope", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apperrors.CodeNotFound, decodeErrorCode(t, rec.Body))
	})

	t.Run("kind mismatch reads as not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/summaries/"+completed.ID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWriteJobTimestamps(t *testing.T) {
	rec := jobstore.NewRecord(jobstore.KindTranscription, "a.mp3")
	w := httptest.NewRecorder()
	writeJob(w, http.StatusOK, rec)

	var resp JobResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.WithinDuration(t, time.Now(), resp.CreatedAt, time.Minute)
	assert.False(t, resp.UpdatedAt.Before(resp.CreatedAt))
}
