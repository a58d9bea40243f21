// Package httpapi exposes the review and quiz engine over HTTP. The surface
// is the narrow set of presentation calls: pool selection, answer
// submission, restart, the due set, box distribution, card grading, history
// reads and deck import.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studylab/leitner/internal/content"
	"github.com/studylab/leitner/internal/deck"
	"github.com/studylab/leitner/internal/history"
	"github.com/studylab/leitner/internal/leitner"
	"github.com/studylab/leitner/internal/quiz"
	"github.com/studylab/leitner/internal/review"
)

// Config holds the API's collaborators. Banks may be the raw store or the
// Redis-backed read-through cache; both satisfy deck.BankStore.
type Config struct {
	Reviewer  *review.Reviewer
	Cards     deck.CardStore
	Banks     deck.BankStore
	Scheduler *leitner.Scheduler
	Clock     leitner.Clock
	Progress  history.ProgressLog
	Mistakes  history.MistakeLog
	Importer  *content.Importer
}

// API routes presentation calls into the engine.
type API struct {
	reviewer *review.Reviewer
	cards    deck.CardStore
	banks    deck.BankStore
	sched    *leitner.Scheduler
	clock    leitner.Clock
	progress history.ProgressLog
	mistakes history.MistakeLog
	importer *content.Importer
	learners *registry
}

// New creates the API.
func New(cfg Config) *API {
	clock := cfg.Clock
	if clock == nil {
		clock = leitner.SystemClock{}
	}
	return &API{
		reviewer: cfg.Reviewer,
		cards:    cfg.Cards,
		banks:    cfg.Banks,
		sched:    cfg.Scheduler,
		clock:    clock,
		progress: cfg.Progress,
		mistakes: cfg.Mistakes,
		importer: cfg.Importer,
		learners: newRegistry(),
	}
}

// Routes mounts every endpoint on a new mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/quiz/select", a.handleSelectPool)
	mux.HandleFunc("POST /v1/quiz/answer", a.handleSubmitAnswer)
	mux.HandleFunc("POST /v1/quiz/restart", a.handleRestart)
	mux.HandleFunc("GET /v1/quiz/current", a.handleCurrent)
	mux.HandleFunc("POST /v1/review/mark", a.handleMark)
	mux.HandleFunc("GET /v1/subjects/{subject}/due", a.handleDueSet)
	mux.HandleFunc("GET /v1/subjects/{subject}/boxes", a.handleBoxDistribution)
	mux.HandleFunc("GET /v1/subjects/{subject}/mistakes", a.handleMistakes)
	mux.HandleFunc("GET /v1/subjects/{subject}/progress", a.handleProgress)
	mux.HandleFunc("GET /v1/progress", a.handleAllProgress)
	mux.HandleFunc("POST /v1/decks/import", a.handleImport)
	return mux
}

type selectRequest struct {
	Learner string `json:"learner"`
	Subject string `json:"subject"`
	Source  string `json:"source"` // "subject" or "hard"
}

type questionView struct {
	Index    int      `json:"index"`
	Total    int      `json:"total"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type sessionView struct {
	Learner  string        `json:"learner"`
	Subject  string        `json:"subject"`
	Source   string        `json:"source"`
	State    string        `json:"state"`
	Score    quiz.Score    `json:"score"`
	Question *questionView `json:"question,omitempty"`
}

// handleSelectPool starts a session over the chosen pool. While the
// learner's hard pool for the requested subject is active, it takes
// precedence over that subject's bank regardless of the requested source;
// pools built from other subjects are never consulted.
func (a *API) handleSelectPool(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	l := a.learners.getOrCreate(req.Learner)
	session := quiz.NewSession(quiz.SessionConfig{
		Subject:   req.Subject,
		Cards:     a.cards,
		Scheduler: a.sched,
		Clock:     a.clock,
		Progress:  a.progress,
		Mistakes:  a.mistakes,
	})

	pool := l.hardPool(req.Subject)
	source := req.Source
	if pool.Active() {
		source = "hard"
	}
	switch source {
	case "hard":
		session.SelectHardPool(pool)
	case "", "subject":
		source = "subject"
		items, err := a.banks.GetBank(r.Context(), req.Subject)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		session.SelectSubjectPool(items)
	default:
		writeError(w, http.StatusBadRequest, "source must be 'subject' or 'hard'")
		return
	}
	l.setSession(session)

	writeJSON(w, http.StatusOK, viewSession(l.id, session, req.Subject, source))
}

type answerRequest struct {
	Learner string `json:"learner"`
	Index   int    `json:"index"`
	Choice  string `json:"choice"`
}

type answerResponse struct {
	quiz.Result
	Next *questionView `json:"next,omitempty"`
}

func (a *API) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, ok := a.learners.get(req.Learner)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session for learner")
		return
	}
	session := l.getSession()
	if session == nil {
		writeError(w, http.StatusNotFound, "no active session for learner")
		return
	}

	result, err := session.SubmitAnswer(r.Context(), req.Index, req.Choice)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := answerResponse{Result: result}
	if item, idx, err := session.Current(); err == nil {
		resp.Next = &questionView{
			Index:    idx,
			Total:    session.Len(),
			Question: item.Question,
			Options:  item.Options,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type learnerRequest struct {
	Learner string `json:"learner"`
}

func (a *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req learnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, ok := a.learners.get(req.Learner)
	if !ok {
		writeError(w, http.StatusNotFound, "no active session for learner")
		return
	}
	session := l.getSession()
	if session == nil {
		writeError(w, http.StatusNotFound, "no active session for learner")
		return
	}
	if err := session.Restart(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(l.id, session, "", session.Source().String()))
}

func (a *API) handleCurrent(w http.ResponseWriter, r *http.Request) {
	l, ok := a.learners.get(r.URL.Query().Get("learner"))
	if !ok {
		writeError(w, http.StatusNotFound, "no active session for learner")
		return
	}
	session := l.getSession()
	if session == nil {
		writeError(w, http.StatusNotFound, "no active session for learner")
		return
	}
	writeJSON(w, http.StatusOK, viewSession(l.id, session, "", session.Source().String()))
}

type markRequest struct {
	Learner string `json:"learner"`
	Subject string `json:"subject"`
	CardID  string `json:"card_id"`
	Grade   string `json:"grade"` // "easy", "medium" or "hard"
}

type markResponse struct {
	Learner      string    `json:"learner"`
	Card         deck.Card `json:"card"`
	HardPoolSize int       `json:"hard_pool_size"`
}

func (a *API) handleMark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" || req.CardID == "" {
		writeError(w, http.StatusBadRequest, "subject and card_id are required")
		return
	}

	l := a.learners.getOrCreate(req.Learner)
	pool := l.hardPool(req.Subject)

	var card deck.Card
	var err error
	switch req.Grade {
	case "easy":
		card, err = a.reviewer.MarkEasy(r.Context(), req.Subject, req.CardID)
	case "medium":
		card, err = a.reviewer.MarkMedium(r.Context(), req.Subject, req.CardID)
	case "hard":
		var item deck.QuizItem
		item, err = a.reviewer.MarkHard(r.Context(), req.Subject, req.CardID, pool)
		if err == nil {
			card, err = a.cards.Get(r.Context(), req.Subject, item.SourceCardID)
		}
	default:
		writeError(w, http.StatusBadRequest, "grade must be 'easy', 'medium' or 'hard'")
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, markResponse{
		Learner:      l.id,
		Card:         card,
		HardPoolSize: pool.Len(),
	})
}

func (a *API) handleDueSet(w http.ResponseWriter, r *http.Request) {
	cards, err := a.reviewer.DueCards(r.Context(), r.PathValue("subject"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"due":   cards,
		"count": len(cards),
	})
}

func (a *API) handleBoxDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := a.reviewer.BoxDistribution(r.Context(), r.PathValue("subject"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boxes": dist})
}

func (a *API) handleMistakes(w http.ResponseWriter, r *http.Request) {
	records, err := a.mistakes.ListBySubject(r.Context(), r.PathValue("subject"), queryLimit(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mistakes": records})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	records, err := a.progress.ListBySubject(r.Context(), r.PathValue("subject"), queryLimit(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"summary": history.Summarize(records),
	})
}

func (a *API) handleAllProgress(w http.ResponseWriter, r *http.Request) {
	records, err := a.progress.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	var d content.Deck
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid deck body")
		return
	}
	if err := a.importer.Import(r.Context(), d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":   d.Subject,
		"cards":     len(d.Cards),
		"questions": len(d.Questions),
	})
}

func viewSession(learnerID string, session *quiz.Session, subject, source string) sessionView {
	if subject == "" {
		subject = session.Subject()
	}
	view := sessionView{
		Learner: learnerID,
		Subject: subject,
		Source:  source,
		State:   session.State().String(),
		Score:   session.Score(),
	}
	if item, idx, err := session.Current(); err == nil {
		view.Question = &questionView{
			Index:    idx,
			Total:    session.Len(),
			Question: item.Question,
			Options:  item.Options,
		}
	}
	return view
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps session errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, quiz.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeStoreError(w, err)
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deck.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, deck.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
