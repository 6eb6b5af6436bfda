package handlers

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Brownie44l1/retina-api/internal/model"
)

//go:embed static/index.html
var indexHTML []byte

// Classifier ranks labels for an encoded image.
type Classifier interface {
	Classify(ctx context.Context, data []byte, topK int) ([]model.Prediction, error)
	Labels() []string
}

// Options configures request handling limits.
type Options struct {
	MaxUploadBytes int64
	DefaultTopK    int
}

type Handler struct {
	classifier Classifier
	opts       Options
}

func NewHandler(classifier Classifier, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 3
	}
	return &Handler{
		classifier: classifier,
		opts:       opts,
	}
}

// Routes wires every endpoint behind the shared middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Index)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/labels", h.Labels)
	mux.HandleFunc("/predict", h.Predict)
	return RequestID(AccessLog(CORS(mux)))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Labels exposes the class id to label mapping.
func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	labels := h.classifier.Labels()
	out := make(map[string]string, len(labels))
	for i, l := range labels {
		out[strconv.Itoa(i)] = l
	}
	writeJSON(w, http.StatusOK, out)
}

// Index serves the upload form.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	log := requestLogger(r)

	topK, err := h.parseTopK(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "top_k must be an integer")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided. Use 'file' as the form field name")
		return
	}
	defer file.Close()

	if !isImageContentType(header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "File must be an image")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	log.Debug("received file", "filename", header.Filename, "size", len(data), "top_k", topK)

	preds, err := h.classifier.Classify(r.Context(), data, topK)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidImage):
		log.Info("rejected upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, "Invalid image file")
		return
	case errors.Is(err, context.Canceled):
		log.Info("client went away before inference")
		return
	default:
		log.Error("prediction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Prediction failed")
		return
	}

	writeJSON(w, http.StatusOK, model.PredictionResponse{Predictions: preds})
}

func (h *Handler) parseTopK(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("top_k"))
	if raw == "" {
		return h.opts.DefaultTopK, nil
	}
	return strconv.Atoi(raw)
}

// isImageContentType accepts image/* and an absent type; clients that omit
// the part header still get their bytes sniffed by the decoder.
func isImageContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
