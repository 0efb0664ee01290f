package httpapi

import (
	"encoding/json"
	stdErrors "errors"
	"final-draft/auth"
	"final-draft/domain"
	"final-draft/errors"
	"final-draft/services"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const maxBodyBytes = 1 << 20

// API serves the REST side of the chat: accounts, rooms and message history.
type API struct {
	auth services.IAuthService
	chat services.IChatService
	log  *slog.Logger
}

func NewAPI(authService services.IAuthService, chat services.IChatService, log *slog.Logger) *API {
	return &API{auth: authService, chat: chat, log: log}
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, err)
		return
	}
	token, err := a.auth.Register(r.Context(), body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token.String()})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginRequest
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, err)
		return
	}
	token, err := a.auth.Login(r.Context(), body)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.String()})
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.Logout(r.Context(), auth.Credential(r)); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	rooms, err := a.chat.ListRooms(r.Context(), identity.UserID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(rooms, toRoomDTO))
}

func (a *API) CreateDirectRoom(w http.ResponseWriter, r *http.Request) {
	var body createDirectRoomRequest
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, err)
		return
	}
	if err := auth.Validate(body); err != nil {
		a.writeError(w, err)
		return
	}
	identity := auth.IdentityFrom(r.Context())
	summary, created, err := a.chat.CreateDirectRoom(r.Context(), identity.UserID, body.RecipientID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, createdStatus(created), toRoomDTO(summary, 0))
}

func (a *API) CreateAssignmentRoom(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := strconv.ParseInt(mux.Vars(r)["assignment_id"], 10, 64)
	if err != nil {
		a.writeError(w, fmt.Errorf("%w: assignment_id must be an integer", errors.ErrInvalidRequest))
		return
	}
	body := createAssignmentRoomRequest{}
	if err = decode(w, r, &body); err != nil && !stdErrors.Is(err, io.EOF) {
		a.writeError(w, err)
		return
	}
	body.AssignmentID = assignmentID
	if err = auth.Validate(body); err != nil {
		a.writeError(w, err)
		return
	}
	identity := auth.IdentityFrom(r.Context())
	summary, created, err := a.chat.CreateAssignmentRoom(r.Context(), identity.UserID, body.AssignmentID, body.MemberIDs)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, createdStatus(created), toRoomDTO(summary, 0))
}

func (a *API) GetRoom(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	detail, err := a.chat.GetRoomDetail(r.Context(), identity.UserID, roomID(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomDetailDTO(detail))
}

// ListMessages pages backwards: pass the previous next_cursor as before.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	query, err := parseListMessagesQuery(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	var before *domain.MessageID
	if query.Before != nil {
		cursor := domain.MessageID(*query.Before)
		before = &cursor
	}

	identity := auth.IdentityFrom(r.Context())
	page, err := a.chat.GetMessages(r.Context(), identity.UserID, roomID(r), before, lo.FromPtr(query.Limit))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagePageDTO(page))
}

// PostMessage stores the message and broadcasts it to the live connections of the room.
func (a *API) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body postMessageRequest
	if err := decode(w, r, &body); err != nil {
		a.writeError(w, err)
		return
	}
	if err := auth.Validate(body); err != nil {
		a.writeError(w, err)
		return
	}
	identity := auth.IdentityFrom(r.Context())
	view, err := a.chat.PostMessage(r.Context(), identity, roomID(r), body.Content)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageDTO(view, 0))
}

func Up(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseListMessagesQuery(r *http.Request) (listMessagesQuery, error) {
	values := r.URL.Query()
	var query listMessagesQuery
	if raw := values.Get("before"); raw != "" {
		before, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return query, fmt.Errorf("%w: %q", errors.ErrInvalidCursor, raw)
		}
		query.Before = &before
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return query, fmt.Errorf("%w: limit %q", errors.ErrInvalidRequest, raw)
		}
		query.Limit = &limit
	}
	return query, auth.Validate(query)
}

func roomID(r *http.Request) domain.RoomID {
	return domain.RoomID(mux.Vars(r)["room_id"])
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// decode reports an empty body as an error that still matches io.EOF, so callers can accept one.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, io.EOF):
		return fmt.Errorf("%w: empty body: %w", errors.ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	message := err.Error()
	switch {
	case stdErrors.Is(err, errors.ErrPersistence):
		message = errors.ErrPersistence.Error()
	case status == http.StatusInternalServerError:
		a.log.Error("Request failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
