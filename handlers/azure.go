package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rateadjuster/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	// FunctionName is the route the Functions host invokes for the blob trigger.
	FunctionName = "ProductionRateAdjuster"
	// BlobBinding is the trigger binding name in function.json.
	BlobBinding = "blobContent"
)

// BlobProcessor is implemented by services.BlobProcessor.
type BlobProcessor interface {
	ProcessBlob(ctx context.Context, name string, content io.Reader) (*models.BlobReport, error)
}

// invocationRequest is the custom handler payload sent by the Functions host.
type invocationRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]json.RawMessage `json:"Metadata"`
}

type invocationResponse struct {
	Outputs     map[string]interface{} `json:"Outputs"`
	Logs        []string               `json:"Logs"`
	ReturnValue interface{}            `json:"ReturnValue"`
}

type reportSummary struct {
	Blob     string `json:"blob"`
	Adjusted int    `json:"adjusted"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// AzureFunctionHandler serves Azure Functions custom handler invocations.
type AzureFunctionHandler struct {
	processor BlobProcessor
	logger    *zap.Logger
}

func NewAzureFunctionHandler(processor BlobProcessor, logger *zap.Logger) *AzureFunctionHandler {
	return &AzureFunctionHandler{processor: processor, logger: logger}
}

// NewRouter returns the HTTP handler the Functions host talks to.
func NewRouter(h *AzureFunctionHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/"+FunctionName, h.HandleInvocation)

	return r
}

// HandleInvocation runs one blob trigger invocation.
func (h *AzureFunctionHandler) HandleInvocation(w http.ResponseWriter, r *http.Request) {
	var req invocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid invocation payload", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invocation payload"})
		return
	}

	content, err := bindingText(req.Data[BlobBinding])
	if err != nil {
		h.logger.Warn("Invalid blob binding", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	name := metadataString(req.Metadata, "name")
	if name == "" {
		name = metadataString(req.Metadata, "BlobTrigger")
	}

	started := time.Now()
	report, err := h.processor.ProcessBlob(r.Context(), name, strings.NewReader(content))
	if err != nil {
		h.logger.Error("Blob invocation failed", zap.String("blob", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, invocationResponse{
			Outputs: map[string]interface{}{},
			Logs:    []string{fmt.Sprintf("blob %s failed: %v", name, err)},
		})
		return
	}

	summary := reportSummary{
		Blob:     name,
		Adjusted: report.Adjusted,
		Skipped:  report.Skipped,
		Failed:   report.Failed,
	}
	writeJSON(w, http.StatusOK, invocationResponse{
		Outputs: map[string]interface{}{},
		Logs: []string{fmt.Sprintf("blob %s: %d adjusted, %d skipped, %d failed in %s",
			name, report.Adjusted, report.Skipped, report.Failed, time.Since(started).Round(time.Millisecond))},
		ReturnValue: summary,
	})
}

// bindingText decodes the trigger binding, which the host sends as a JSON string.
func bindingText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing %s binding", BlobBinding)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s binding must be a string", BlobBinding)
	}
	return s, nil
}

// metadataString reads a metadata value. The host JSON-encodes string values,
// so a value that still decodes to a JSON string literal is unwrapped once more.
func metadataString(metadata map[string]json.RawMessage, key string) string {
	raw, ok := metadata[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
