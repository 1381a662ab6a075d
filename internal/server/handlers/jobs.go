package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/skaldhq/skald/internal/errors"
	"github.com/skaldhq/skald/pkg/jobstore"
	"github.com/skaldhq/skald/pkg/pipeline"
)

// defaultMaxUploadBytes caps direct audio uploads at 200 MiB.
const defaultMaxUploadBytes = 200 << 20

// allowedAudioExtensions lists the upload formats the transcription provider
// accepts.
var allowedAudioExtensions = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".wav":  true,
	".webm": true,
}

// JobService is the coordinator surface the handlers need.
type JobService interface {
	CreateTranscription(ctx context.Context, sourceRef string) (*jobstore.Record, error)
	CreateSummarization(ctx context.Context, transcriptionID string) (*jobstore.Record, error)
	GetStatus(ctx context.Context, id string) (*jobstore.Record, error)
}

// JobResponse is the wire shape of a job record. Output and Error are null
// until set, so pollers can distinguish "empty result" from "no result yet".
type JobResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	InputRef  string    `json:"input_ref"`
	Output    *string   `json:"output"`
	Error     *string   `json:"error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateTranscriptionRequest is the JSON body for reference-based job
// creation.
type CreateTranscriptionRequest struct {
	SourceRef string `json:"source_ref"`
}

// CreateSummarizationRequest is the JSON body for summarization job
// creation.
type CreateSummarizationRequest struct {
	TranscriptionID string `json:"transcription_id"`
}

// Jobs serves the transcription and summarization endpoints.
type Jobs struct {
	svc            JobService
	uploadDir      string
	maxUploadBytes int64
}

// NewJobs builds the job handlers. uploadDir receives spooled direct
// uploads; empty disables multipart intake.
func NewJobs(svc JobService, uploadDir string, maxUploadBytes int64) *Jobs {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Jobs{svc: svc, uploadDir: uploadDir, maxUploadBytes: maxUploadBytes}
}

// CreateTranscription handles POST /v1/transcriptions. The audio arrives
// either as a JSON source reference or as a multipart upload spooled to
// local disk. Either way the response is 202 with the pending job.
func (h *Jobs) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "missing or invalid Content-Type")
		return
	}

	var ref string
	switch {
	case mediaType == "application/json":
		var req CreateTranscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "invalid JSON body")
			return
		}
		ref = req.SourceRef
	case strings.HasPrefix(mediaType, "multipart/"):
		ref, err = h.spoolUpload(w, r)
		if err != nil {
			// spoolUpload already wrote the response.
			return
		}
	default:
		apperrors.WriteError(w, http.StatusUnsupportedMediaType, apperrors.CodeUnsupportedMedia,
			fmt.Sprintf("unsupported Content-Type %q", mediaType))
		return
	}

	rec, err := h.svc.CreateTranscription(r.Context(), ref)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJob(w, http.StatusAccepted, rec)
}

// CreateSummarization handles POST /v1/summaries. The referenced
// transcription must exist and be completed; violations are rejected
// synchronously instead of producing a doomed job.
func (h *Jobs) CreateSummarization(w http.ResponseWriter, r *http.Request) {
	var req CreateSummarizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.svc.CreateSummarization(r.Context(), req.TranscriptionID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJob(w, http.StatusAccepted, rec)
}

// GetJob handles GET /v1/transcriptions/{id} and GET /v1/summaries/{id}.
// The kind in the path must match the record so a transcription ID polled
// on the summaries route reads as not found rather than leaking the other
// resource.
func (h *Jobs) GetJob(kind jobstore.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := h.svc.GetStatus(r.Context(), id)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		if rec.Kind != kind {
			apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound, "job not found")
			return
		}
		writeJob(w, http.StatusOK, rec)
	}
}

// spoolUpload saves the multipart "file" part under the upload directory and
// returns a file reference for the job. On any failure it writes the error
// response and returns a non-nil error.
func (h *Jobs) spoolUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	if h.uploadDir == "" {
		apperrors.WriteError(w, http.StatusUnsupportedMediaType, apperrors.CodeUnsupportedMedia,
			"direct uploads are disabled; send a JSON source_ref instead")
		return "", errors.New("uploads disabled")
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			apperrors.WriteError(w, http.StatusRequestEntityTooLarge, apperrors.CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUploadBytes))
			return "", err
		}
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest,
			`multipart form must include a "file" part`)
		return "", err
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedAudioExtensions[ext] {
		apperrors.WriteErrorDetails(w, http.StatusUnsupportedMediaType, apperrors.CodeUnsupportedMedia,
			fmt.Sprintf("unsupported audio format %q", ext),
			map[string]any{"allowed": allowedExtensionList()})
		return "", fmt.Errorf("unsupported extension %q", ext)
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternalError, "failed to store upload")
		return "", err
	}

	dstPath := filepath.Join(h.uploadDir, uuid.New().String()+ext)
	dst, err := os.Create(dstPath)
	if err != nil {
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternalError, "failed to store upload")
		return "", err
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		if isTooLarge(err) {
			apperrors.WriteError(w, http.StatusRequestEntityTooLarge, apperrors.CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", h.maxUploadBytes))
			return "", err
		}
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternalError, "failed to store upload")
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternalError, "failed to store upload")
		return "", err
	}

	return "file://" + dstPath, nil
}

// isTooLarge detects the MaxBytesReader limit. The multipart parser does not
// always preserve the error type, so the message is matched as a fallback.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func allowedExtensionList() []string {
	exts := make([]string, 0, len(allowedAudioExtensions))
	for ext := range allowedAudioExtensions {
		exts = append(exts, ext)
	}
	return exts
}

func writeJob(w http.ResponseWriter, status int, rec *jobstore.Record) {
	resp := JobResponse{
		ID:        rec.ID,
		Kind:      string(rec.Kind),
		Status:    string(rec.Status),
		Progress:  rec.Progress,
		InputRef:  rec.InputRef,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Output != "" {
		resp.Output = &rec.Output
	}
	if rec.Error != "" {
		resp.Error = &rec.Error
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// defaultErrorResponder maps domain errors to the standard envelope.
func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound, "job not found")
	case errors.Is(err, pipeline.ErrEmptyReference):
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeValidationError, err.Error())
	case errors.Is(err, pipeline.ErrNotTranscription),
		errors.Is(err, pipeline.ErrNotCompleted),
		errors.Is(err, pipeline.ErrEmptyTranscript):
		apperrors.WriteError(w, http.StatusConflict, apperrors.CodePreconditionFailed, err.Error())
	default:
		apperrors.WriteError(w, http.StatusInternalServerError, apperrors.CodeInternalError, "internal error")
	}
}
