package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lattiq/sestemplates"
)

// Success messages returned by write operations.
const (
	msgCreated    = "Template created successfully"
	msgUpdated    = "Template updated successfully"
	msgDeleted    = "Template deleted successfully"
	msgSent       = "Email sent successfully"
	msgDuplicated = "Template duplicated successfully"
)

type itemsEnvelope struct {
	Items any `json:"items"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type messageEnvelope struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeItems(w http.ResponseWriter, items any) {
	writeJSON(w, http.StatusOK, itemsEnvelope{Items: items})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, dataEnvelope{Data: data})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, messageEnvelope{Message: message})
}

// writeError reports a failed operation. Every core failure maps to 500 with
// the user-visible message; rate limit rejections are written by the limiter.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: sestemplates.ErrorMessage(err)})
}
