package travel

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-agent/backend/internal/logger"
	"github.com/zhouzirui/travel-agent/backend/internal/middleware"
	travelModel "github.com/zhouzirui/travel-agent/backend/internal/model/travel"
	travelService "github.com/zhouzirui/travel-agent/backend/internal/service/travel"
	"github.com/zhouzirui/travel-agent/backend/pkg/utils"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

const (
	flashSuccess = "success"
	flashWarning = "warning"
	flashError   = "error"
)

type flash struct {
	Level   string
	Message string
}

type pageData struct {
	View      travelService.View
	Query     string
	Sender    string
	Receiver  string
	Subject   string
	SendEmail bool
	Flash     *flash
}

// Handler serves the travel form and its JSON counterpart.
type Handler struct {
	travelSvc *travelService.Service
	log       zerolog.Logger
}

// New creates the travel form handler.
func New(travelSvc *travelService.Service) *Handler {
	return &Handler{
		travelSvc: travelSvc,
		log:       logger.Component("handler"),
	}
}

// RegisterPages mounts the HTML form.
func (h *Handler) RegisterPages(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Post("/query", h.handleQueryForm)
	r.Post("/email", h.handleEmailForm)
}

// RegisterRoutes mounts the JSON API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleGetSession)
	r.Post("/query", h.handleQuery)
	r.Post("/email", h.handleEmail)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	view, err := h.travelSvc.State(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		h.log.Error().Err(err).Msg("load session")
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	data := newPageData(view)
	data.SendEmail = strings.EqualFold(r.URL.Query().Get("send_email"), "yes")
	h.renderPage(w, http.StatusOK, data)
}

func (h *Handler) handleQueryForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sessionID := middleware.SessionID(ctx)
	query := r.PostFormValue("query")

	view, err := h.travelSvc.SubmitQuery(ctx, sessionID, query)
	if err != nil {
		status, message := describeError(travelService.OpQuery, err)
		data := newPageData(h.currentView(r, view))
		data.Query = query
		data.Flash = &flash{Level: flashLevel(err), Message: message}
		h.renderPage(w, status, data)
		return
	}

	data := newPageData(view)
	data.Query = query
	h.renderPage(w, http.StatusOK, data)
}

func (h *Handler) handleEmailForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	req := travelModel.EmailRequest{
		From:    r.PostFormValue("sender"),
		To:      r.PostFormValue("receiver"),
		Subject: r.PostFormValue("subject"),
	}

	view, err := h.travelSvc.SendEmail(ctx, middleware.SessionID(ctx), req)
	if err != nil {
		status, message := describeError(travelService.OpEmail, err)
		data := newPageData(h.currentView(r, view))
		if req.From != "" {
			data.Sender = req.From
		}
		data.Receiver = req.To
		data.Subject = req.Subject
		data.SendEmail = true
		data.Flash = &flash{Level: flashLevel(err), Message: message}
		h.renderPage(w, status, data)
		return
	}

	data := newPageData(view)
	data.Flash = &flash{Level: flashSuccess, Message: "Email sent successfully!"}
	h.renderPage(w, http.StatusOK, data)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.travelSvc.State(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Query string `json:"query"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.travelSvc.SubmitQuery(r.Context(), middleware.SessionID(r.Context()), payload.Query)
	if err != nil {
		status, message := describeError(travelService.OpQuery, err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleEmail(w http.ResponseWriter, r *http.Request) {
	var payload travelModel.EmailRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.travelSvc.SendEmail(r.Context(), middleware.SessionID(r.Context()), payload)
	if err != nil {
		status, message := describeError(travelService.OpEmail, err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, view)
}

// currentView prefers the view returned with an error and falls back to a fresh load.
func (h *Handler) currentView(r *http.Request, view travelService.View) travelService.View {
	if view.SessionID != "" {
		return view
	}
	fresh, err := h.travelSvc.State(r.Context(), middleware.SessionID(r.Context()))
	if err != nil {
		h.log.Warn().Err(err).Msg("reload session after failure")
		return travelService.View{DefaultSubject: h.travelSvc.DefaultSubject()}
	}
	return fresh
}

// newPageData pre-fills the email form from the configured defaults.
func newPageData(view travelService.View) pageData {
	return pageData{
		View:     view,
		Sender:   view.DefaultSender,
		Receiver: view.DefaultReceiver,
		Subject:  view.DefaultSubject,
	}
}

func (h *Handler) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		h.log.Error().Err(err).Msg("render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn().Err(err).Msg("write page")
	}
}

// describeError maps a dispatcher error to an HTTP status and user-facing text.
func describeError(op string, err error) (int, string) {
	switch {
	case errors.Is(err, travelService.ErrEmptyQuery):
		return http.StatusBadRequest, "Please enter a travel query to get started."
	case errors.Is(err, travelService.ErrMissingEmailFields):
		return http.StatusBadRequest, "Please fill out all email fields."
	case errors.Is(err, travelService.ErrInvalidEmail):
		return http.StatusBadRequest, "Please enter a valid receiver email address."
	case errors.Is(err, travelService.ErrNoTravelInfo):
		return http.StatusConflict, "Run a travel query before sending an email."
	}

	var dispatchErr *travelService.DispatchError
	if errors.As(err, &dispatchErr) {
		if dispatchErr.Op == travelService.OpEmail {
			return http.StatusBadGateway, fmt.Sprintf("Error sending email: %v", dispatchErr.Err)
		}
		return http.StatusBadGateway, fmt.Sprintf("Error: %v", dispatchErr.Err)
	}

	if op == travelService.OpEmail {
		return http.StatusInternalServerError, fmt.Sprintf("Error sending email: %v", err)
	}
	return http.StatusInternalServerError, fmt.Sprintf("Error: %v", err)
}

func flashLevel(err error) string {
	if travelService.IsValidation(err) {
		return flashWarning
	}
	return flashError
}
