package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lattiq/sestemplates"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	manager sestemplates.TemplateManager
}

type templateBody struct {
	TemplateName string `json:"template_name"`
	SubjectPart  string `json:"subject_part"`
	TextPart     string `json:"text_part"`
	HTMLPart     string `json:"html_part"`
	Region       string `json:"region"`
}

func (b templateBody) request() sestemplates.TemplateRequest {
	return sestemplates.TemplateRequest{
		Name:    b.TemplateName,
		Subject: b.SubjectPart,
		Text:    b.TextPart,
		HTML:    b.HTMLPart,
		Region:  b.Region,
	}
}

type sendBody struct {
	TemplateName string          `json:"template_name"`
	Source       string          `json:"source"`
	TemplateData json.RawMessage `json:"template_data"`
	ToAddress    string          `json:"to_address"`
	Region       string          `json:"region"`
}

type duplicateBody struct {
	SourceTemplateName string `json:"source_template_name"`
	TemplateName       string `json:"template_name"`
	Region             string `json:"region"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// templateData accepts either a JSON-encoded string or a JSON object and
// returns the text forwarded to the provider.
func templateData(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid template_data: %w", err)
		}
		return s, nil
	}
	return trimmed, nil
}

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := sestemplates.ListTemplatesRequest{
		Region:    q.Get("region"),
		NextToken: q.Get("next_token"),
	}

	if raw := q.Get("max_items"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			writeError(w, sestemplates.NewValidationError("max_items", "max_items must be a positive integer"))
			return
		}
		req.MaxItems = int(n)
	}

	list, err := h.manager.ListTemplates(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeItems(w, list)
}

func (h *handlers) getTemplate(w http.ResponseWriter, r *http.Request) {
	details, err := h.manager.GetTemplate(r.Context(), chi.URLParam(r, "template_name"), r.URL.Query().Get("region"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, details)
}

func (h *handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	if err := h.manager.CreateTemplate(r.Context(), body.request()); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, msgCreated)
}

func (h *handlers) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	if err := h.manager.UpdateTemplate(r.Context(), body.request()); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, msgUpdated)
}

func (h *handlers) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	err := h.manager.DeleteTemplate(r.Context(), chi.URLParam(r, "template_name"), r.URL.Query().Get("region"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, msgDeleted)
}

func (h *handlers) sendTemplate(w http.ResponseWriter, r *http.Request) {
	var body sendBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	data, err := templateData(body.TemplateData)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.manager.SendTemplate(r.Context(), sestemplates.SendTemplateRequest{
		Template:     body.TemplateName,
		Source:       body.Source,
		To:           body.ToAddress,
		TemplateData: data,
		Region:       body.Region,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Message: msgSent, MessageID: res.MessageID})
}

func (h *handlers) duplicateTemplate(w http.ResponseWriter, r *http.Request) {
	var body duplicateBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	err := h.manager.DuplicateTemplate(r.Context(), sestemplates.DuplicateTemplateRequest{
		SourceName: body.SourceTemplateName,
		Name:       body.TemplateName,
		Region:     body.Region,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, msgDuplicated)
}

func (h *handlers) regions(w http.ResponseWriter, _ *http.Request) {
	writeData(w, sestemplates.Regions())
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sestemplates.GetVersionInfo())
}
