package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	"github.com/md-rashed-zaman/seqlog/libs/httpx"
	"github.com/md-rashed-zaman/seqlog/libs/subscription"
)

type EventAppender interface {
	AppendIf(ctx context.Context, events []eventstore.Event, cond eventstore.AppendCondition) (eventstore.SequenceNumber, error)
}

type StreamReader interface {
	Events(ctx context.Context, tc eventstore.TransactionContext) ([]eventstore.PersistedEvent, eventstore.SequenceNumber, error)
}

type Subscriptions interface {
	Submit(ctx context.Context, name string, cmd subscription.Command) (subscription.Status, error)
	Statuses(ctx context.Context) ([]subscription.Status, error)
}

type Handler struct {
	appender  EventAppender
	reader    StreamReader
	subs      Subscriptions
	validator eventstore.Validator
	logger    *slog.Logger
}

// New builds the API handler. validator may be nil to accept any event type.
func New(appender EventAppender, reader StreamReader, subs Subscriptions, validator eventstore.Validator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{appender: appender, reader: reader, subs: subs, validator: validator, logger: logger}
}

// Guards wrap route groups, typically with bearer auth. Nil guards allow all.
type Guards struct {
	Append  httpx.Middleware
	Operate httpx.Middleware
	Read    httpx.Middleware
}

func (h *Handler) Register(mux *http.ServeMux, g Guards) {
	guard := func(m httpx.Middleware, fn http.HandlerFunc) http.Handler {
		if m == nil {
			return fn
		}
		return m(fn)
	}
	mux.Handle("POST /v1/events", guard(g.Append, h.AppendEvents))
	mux.Handle("GET /v1/streams", guard(g.Read, h.GetStream))
	mux.Handle("GET /v1/subscriptions", guard(g.Read, h.ListSubscriptions))
	mux.Handle("GET /v1/subscriptions/{name}", guard(g.Read, h.GetSubscription))
	mux.Handle("POST /v1/subscriptions/{name}/commands/{command}", guard(g.Operate, h.SubmitCommand))
}

type identifierDTO struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type eventDTO struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type appendRequest struct {
	Identifiers             []identifierDTO `json:"identifiers"`
	EventTypes              []string        `json:"eventTypes"`
	ExpectedCurrentSequence int64           `json:"expectedCurrentSequence"`
	LockingPolicy           string          `json:"lockingPolicy"`
	Events                  []eventDTO      `json:"events"`
}

func (h *Handler) AppendEvents(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var ids []eventstore.DomainIdentifier
	for _, id := range req.Identifiers {
		if strings.TrimSpace(id.Name) == "" || strings.TrimSpace(id.ID) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "identifiers need name and id")
			return
		}
		did := eventstore.ID(eventstore.StateName(id.Name), eventstore.StateID(id.ID))
		if err := did.Validate(); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids = append(ids, did)
	}
	var types []eventstore.EventName
	for _, t := range req.EventTypes {
		types = append(types, eventstore.EventName(t))
	}
	policy, err := eventstore.ParseLockingPolicy(req.LockingPolicy)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	events := make([]eventstore.Event, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, eventstore.NewEvent(eventstore.EventName(e.Type), e.Payload))
	}
	if h.validator != nil {
		if err := h.validator.Validate(events); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	last, err := h.appender.AppendIf(r.Context(), events, eventstore.AppendCondition{
		Context:                 eventstore.NewContext(ids, types...),
		ExpectedCurrentSequence: eventstore.SequenceNumber(req.ExpectedCurrentSequence),
		LockingPolicy:           policy,
	})
	var mismatch *eventstore.SequenceMismatchError
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"lastSequence": last})
	case errors.As(err, &mismatch):
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":    "sequence mismatch",
			"expected": mismatch.Expected,
			"actual":   mismatch.Actual,
		})
	case errors.Is(err, eventstore.ErrNoEvents), errors.Is(err, eventstore.ErrInvalidEvent),
		errors.Is(err, eventstore.ErrInvalidIdentifier), errors.Is(err, eventstore.ErrUnknownLockingPolicy):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("append failed", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to append events")
	}
}

type persistedEventDTO struct {
	Sequence      int64           `json:"sequence"`
	Type          string          `json:"type"`
	Payload       map[string]any  `json:"payload"`
	DomainIDs     []string        `json:"domainIds"`
	Identifiers   []identifierDTO `json:"identifiers"`
	CausationID   int64           `json:"causationId"`
	CorrelationID int64           `json:"correlationId"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func identifiersOf(tokens []string) []identifierDTO {
	out := make([]identifierDTO, 0, len(tokens))
	for _, tok := range tokens {
		id, err := eventstore.ParseToken(tok)
		if err != nil {
			continue
		}
		out = append(out, identifierDTO{Name: string(id.Name), ID: string(id.ID)})
	}
	return out
}

// GetStream returns the events of the context given by repeated id=Name:ID
// and type=EventName query parameters.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var ids []eventstore.DomainIdentifier
	for _, raw := range q["id"] {
		id, err := eventstore.ParseIdentifier(raw)
		if err == nil {
			err = id.Validate()
		}
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "at least one id=Name:ID is required")
		return
	}
	var types []eventstore.EventName
	for _, t := range q["type"] {
		types = append(types, eventstore.EventName(t))
	}

	events, seq, err := h.reader.Events(r.Context(), eventstore.NewContext(ids, types...))
	if err != nil {
		h.logger.Error("read stream failed", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to read stream")
		return
	}
	out := make([]persistedEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, persistedEventDTO{
			Sequence:      int64(e.Sequence),
			Type:          string(e.Type),
			Payload:       e.Payload,
			DomainIDs:     e.DomainIDs,
			Identifiers:   identifiersOf(e.DomainIDs),
			CausationID:   int64(e.CausationID),
			CorrelationID: int64(e.CorrelationID),
			CreatedAt:     e.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sequence": seq, "events": out})
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.subs.Statuses(r.Context())
	if err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"subscriptions": statuses})
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, r.PathValue("name"), subscription.CommandShowStatus)
}

func (h *Handler) SubmitCommand(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, r.PathValue("name"), subscription.ParseCommand(r.PathValue("command")))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, name string, cmd subscription.Command) {
	st, err := h.subs.Submit(r.Context(), name, cmd)
	if err != nil {
		h.writeSubscriptionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) writeSubscriptionError(w http.ResponseWriter, r *http.Request, err error) {
	var cmdErr *subscription.CommandError
	switch {
	case errors.Is(err, subscription.ErrUnknownSubscription):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &cmdErr):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, subscription.ErrStopped), errors.Is(err, subscription.ErrNotStarted):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("subscription command failed", "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "subscription command failed")
	}
}
