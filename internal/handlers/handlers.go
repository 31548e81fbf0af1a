package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucijabrocic/digit-recognizer/internal/metrics"
	"github.com/lucijabrocic/digit-recognizer/internal/model"
	"github.com/lucijabrocic/digit-recognizer/internal/page"
	"github.com/lucijabrocic/digit-recognizer/internal/preprocess"
	"github.com/lucijabrocic/digit-recognizer/internal/result"
	"github.com/lucijabrocic/digit-recognizer/internal/web"
)

const writeWait = 10 * time.Second

// ModelSource is the shared model handle. *model.Loader satisfies it.
type ModelSource interface {
	page.ModelSource
	Status() model.Status
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Digit       int                `json:"digit"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
	Top         []result.Bar       `json:"top"`
}

type Handler struct {
	models   ModelSource
	invoker  *model.Invoker
	metadata model.Metadata
	page     page.Config
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewHandler(models ModelSource, metadata model.Metadata, pageCfg page.Config, m *metrics.Metrics) *Handler {
	return &Handler{
		models:   models,
		invoker:  model.NewInvoker(metadata, m),
		metadata: metadata,
		page:     pageCfg,
		metrics:  m,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Register mounts the page, its WebSocket and the JSON endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.Index)
	mux.Handle("/static/", web.Static())
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("/health", EnableCORS(h.Health))
	mux.HandleFunc("/predict", EnableCORS(h.Predict))
	mux.HandleFunc("/predict/image", EnableCORS(h.PredictFromImage))
}

func EnableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := web.RenderIndex(w, web.PageData{
		Width:      h.page.Canvas.Width,
		Height:     h.page.Canvas.Height,
		BrushWidth: h.page.Canvas.BrushWidth,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render page")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"model":  string(h.models.Status()),
	})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	expectedSize := model.Elements(model.InputShape)
	if len(req.Image) != expectedSize {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)),
			http.StatusBadRequest)
		return
	}

	clf, ok := h.classifier(w)
	if !ok {
		return
	}

	in, err := model.TensorFromSlice(req.Image)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respond(w, clf, in)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form (10MB max)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := preprocess.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}
	log.Debug().
		Str("file", header.Filename).
		Str("format", format).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Received image")

	clf, ok := h.classifier(w)
	if !ok {
		return
	}
	h.respond(w, clf, preprocess.Preprocess(img))
}

// classifier writes 503 and reports false until the model is usable.
func (h *Handler) classifier(w http.ResponseWriter) (model.Classifier, bool) {
	clf, err := h.models.Model()
	switch {
	case errors.Is(err, model.ErrNotReady):
		http.Error(w, "Model is still loading", http.StatusServiceUnavailable)
		return nil, false
	case err != nil:
		http.Error(w, "Model failed to load", http.StatusServiceUnavailable)
		return nil, false
	}
	return clf, true
}

func (h *Handler) respond(w http.ResponseWriter, clf model.Classifier, in *model.Tensor) {
	probs, err := h.invoker.Predict(clf, in)
	if err != nil {
		log.Error().Err(err).Msg("Prediction error")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	view := result.Render(probs, h.page.TopK)
	predictions := make(map[string]float32, len(probs))
	for i, p := range probs {
		predictions[h.metadata.Classes[i]] = p
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PredictionResponse{
		Class:       h.metadata.Classes[view.Digit],
		Digit:       view.Digit,
		Confidence:  probs.Max(),
		Predictions: predictions,
		Top:         view.Bars,
	})
}

// WebSocket runs one page controller for the lifetime of the connection.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	logger := log.With().Str("session", uuid.NewString()).Logger()
	logger.Info().Str("remote", r.RemoteAddr).Msg("Page connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := page.New(h.page, h.models, h.invoker, &socketSink{conn: conn},
		page.WithMetrics(h.metrics), page.WithLogger(logger))
	go readEvents(ctx, cancel, conn, ctrl, logger)

	if err := ctrl.Run(ctx); err != nil {
		logger.Warn().Err(err).Msg("Page controller stopped")
	}
	logger.Info().Msg("Page disconnected")
}

func readEvents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, ctrl *page.Controller, logger zerolog.Logger) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("WebSocket read failed")
			}
			return
		}

		var ev page.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Debug().Err(err).Msg("Ignoring malformed page message")
			continue
		}
		if err := ctrl.Submit(ctx, ev); err != nil {
			return
		}
	}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// socketSink writes controller messages as JSON text frames. Only the
// controller's Run goroutine writes, so no lock is needed.
type socketSink struct {
	conn *websocket.Conn
}

func (s *socketSink) Emit(kind string, payload any) error {
	data, err := json.Marshal(envelope{Type: kind, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
