package httpapi_test

import (
	"bytes"
	"encoding/json"
	"final-draft/auth"
	"final-draft/domain"
	"final-draft/infrastructure/httpapi"
	"final-draft/repositories"
	"final-draft/runtime"
	"final-draft/services"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const secret = "router-test-secret-long-enough"

type apiFixture struct {
	t      *testing.T
	server *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	users, err := repositories.NewUserRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = users.Release()
		_ = db.Close()
	})
	sessions := repositories.NewSessionRepository(db, log)
	rooms := repositories.NewRoomRepository(db, log)
	messages := repositories.NewMessageRepository(db, log, nil)

	tokens := auth.NewTokenIssuer(secret)
	resolver := auth.NewSessionResolver(tokens, sessions, users, time.Second, log)
	chat := services.NewChatService(rooms, messages, users, runtime.NewRegistry(log, nil), nil, nil, log, 100)
	authService := services.NewAuthService(users, sessions, tokens, time.Hour, log)

	api := httpapi.NewAPI(authService, chat, log)
	server := httptest.NewServer(httpapi.NewRouter(api, resolver, httpapi.RouterConfig{AllowedOrigins: []string{"*"}}))
	t.Cleanup(server.Close)
	return &apiFixture{t: t, server: server}
}

func (f *apiFixture) do(method, path, token string, body any) (int, map[string]any) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	require.NoError(f.t, err)
	defer response.Body.Close()

	var decoded any
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	switch v := decoded.(type) {
	case map[string]any:
		return response.StatusCode, v
	case []any:
		return response.StatusCode, map[string]any{"items": v}
	default:
		return response.StatusCode, nil
	}
}

func (f *apiFixture) register(username string) (string, domain.UserID) {
	f.t.Helper()
	status, body := f.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   username,
		"email":      username + "@example.com",
		"password":   "ComplexPass123!",
		"first_name": username,
	})
	require.Equal(f.t, http.StatusCreated, status, body)
	token := body["token"].(string)
	claims, err := auth.NewTokenIssuer(secret).Parse(token)
	require.NoError(f.t, err)
	return token, claims.UserID
}

func TestRouter_Accounts(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	token, _ := f.register("alice")

	// Registering twice is a conflict
	status, _ := f.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "ComplexPass123!",
	})
	req.Equal(http.StatusConflict, status)

	// Weak passwords are refused before anything is stored
	status, body := f.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "weak", "email": "weak@example.com", "password": "simplebutlongenough",
	})
	req.Equal(http.StatusBadRequest, status)
	req.NotEmpty(body["error"])

	status, body = f.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "ComplexPass123!"})
	req.Equal(http.StatusOK, status)
	req.NotEmpty(body["token"])

	status, _ = f.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "WrongPass123!!"})
	req.Equal(http.StatusUnauthorized, status)

	// Logout revokes the credential
	status, _ = f.do(http.MethodGet, "/api/chat/rooms", token, nil)
	req.Equal(http.StatusOK, status)
	status, _ = f.do(http.MethodPost, "/api/auth/logout", token, nil)
	req.Equal(http.StatusNoContent, status)
	status, _ = f.do(http.MethodGet, "/api/chat/rooms", token, nil)
	req.Equal(http.StatusUnauthorized, status)
}

func TestRouter_Anonymous_Requests_Are_Rejected(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	status, body := f.do(http.MethodGet, "/api/chat/rooms", "", nil)
	req.Equal(http.StatusUnauthorized, status)
	req.Equal("authentication required", body["error"])

	status, _ = f.do(http.MethodGet, "/api/chat/rooms", "not-a-token", nil)
	req.Equal(http.StatusUnauthorized, status)

	status, body = f.do(http.MethodGet, "/up", "", nil)
	req.Equal(http.StatusOK, status)
	req.Equal("ok", body["status"])
}

func TestRouter_Direct_Room_Conversation(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	aliceToken, aliceID := f.register("alice")
	bobToken, bobID := f.register("bob")
	carolToken, _ := f.register("carol")

	// Given alice opens a conversation with bob
	status, room := f.do(http.MethodPost, "/api/chat/rooms", aliceToken, map[string]any{"recipient_id": bobID})
	req.Equal(http.StatusCreated, status)
	roomID := room["id"].(string)
	req.Equal(fmt.Sprintf("dm_%d_%d", aliceID, bobID), roomID)
	req.Equal(true, room["is_direct_message"])
	req.Len(room["members"], 2)

	// Opening it again returns the same room
	status, again := f.do(http.MethodPost, "/api/chat/rooms", bobToken, map[string]any{"recipient_id": aliceID})
	req.Equal(http.StatusOK, status)
	req.Equal(roomID, again["id"])

	status, _ = f.do(http.MethodPost, "/api/chat/rooms", aliceToken, map[string]any{"recipient_id": aliceID})
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodPost, "/api/chat/rooms", aliceToken, map[string]any{})
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodPost, "/api/chat/rooms", aliceToken, map[string]any{"recipient_id": 999})
	req.Equal(http.StatusNotFound, status)

	// When alice posts a message
	status, message := f.do(http.MethodPost, "/api/chat/rooms/"+roomID+"/messages", aliceToken, map[string]string{"content": "hi"})
	req.Equal(http.StatusCreated, status)
	req.Equal("hi", message["content"])
	req.Equal(roomID, message["room"])
	req.Equal("alice", message["sender"].(map[string]any)["username"])

	// Then bob sees it in the room detail and the room list
	status, detail := f.do(http.MethodGet, "/api/chat/rooms/"+roomID, bobToken, nil)
	req.Equal(http.StatusOK, status)
	req.Len(detail["messages"], 1)
	req.Equal("alice", detail["last_message"].(map[string]any)["sender_name"])

	status, list := f.do(http.MethodGet, "/api/chat/rooms", bobToken, nil)
	req.Equal(http.StatusOK, status)
	req.Len(list["items"], 1)

	// And carol is kept out
	status, _ = f.do(http.MethodGet, "/api/chat/rooms/"+roomID, carolToken, nil)
	req.Equal(http.StatusForbidden, status)
	status, _ = f.do(http.MethodPost, "/api/chat/rooms/"+roomID+"/messages", carolToken, map[string]string{"content": "let me in"})
	req.Equal(http.StatusForbidden, status)

	status, _ = f.do(http.MethodPost, "/api/chat/rooms/"+roomID+"/messages", aliceToken, map[string]string{"content": ""})
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodGet, "/api/chat/rooms/dm_404_405", aliceToken, nil)
	req.Equal(http.StatusNotFound, status)
}

func TestRouter_Message_Pagination(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	aliceToken, _ := f.register("alice")
	_, bobID := f.register("bob")
	_, room := f.do(http.MethodPost, "/api/chat/rooms", aliceToken, map[string]any{"recipient_id": bobID})
	path := "/api/chat/rooms/" + room["id"].(string) + "/messages"

	for i := 1; i <= 5; i++ {
		status, _ := f.do(http.MethodPost, path, aliceToken, map[string]string{"content": fmt.Sprintf("message %d", i)})
		req.Equal(http.StatusCreated, status)
	}

	// First page holds the newest messages
	status, page := f.do(http.MethodGet, path+"?limit=2", aliceToken, nil)
	req.Equal(http.StatusOK, status)
	req.Equal([]string{"message 5", "message 4"}, contents(page))
	cursor := page["next_cursor"]
	req.NotNil(cursor)

	status, page = f.do(http.MethodGet, fmt.Sprintf("%s?limit=2&before=%v", path, cursor), aliceToken, nil)
	req.Equal(http.StatusOK, status)
	req.Equal([]string{"message 3", "message 2"}, contents(page))

	status, page = f.do(http.MethodGet, fmt.Sprintf("%s?limit=2&before=%v", path, page["next_cursor"]), aliceToken, nil)
	req.Equal(http.StatusOK, status)
	req.Equal([]string{"message 1"}, contents(page))
	req.Nil(page["next_cursor"])

	status, _ = f.do(http.MethodGet, path+"?before=abc", aliceToken, nil)
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodGet, path+"?limit=-1", aliceToken, nil)
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodGet, path+"?limit=0", aliceToken, nil)
	req.Equal(http.StatusBadRequest, status)
}

func TestRouter_Assignment_Room(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	instructorToken, _ := f.register("instructor")
	studentToken, studentID := f.register("student")

	status, room := f.do(http.MethodPost, "/api/chat/assignments/9/room", instructorToken, map[string]any{"member_ids": []domain.UserID{studentID}})
	req.Equal(http.StatusCreated, status)
	req.Equal("assignment_9", room["id"])
	req.EqualValues(9, room["assignment"])
	req.Equal(false, room["is_direct_message"])

	status, _ = f.do(http.MethodGet, "/api/chat/rooms/assignment_9", studentToken, nil)
	req.Equal(http.StatusOK, status)

	status, _ = f.do(http.MethodPost, "/api/chat/assignments/nine/room", instructorToken, nil)
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodPost, "/api/chat/assignments/0/room", instructorToken, nil)
	req.Equal(http.StatusBadRequest, status)
	status, _ = f.do(http.MethodPost, "/api/chat/assignments/10/room", instructorToken, map[string]any{"member_ids": []int{0}})
	req.Equal(http.StatusBadRequest, status)
}

func TestRouter_Assignment_Room_Membership_Is_Closed(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	instructorToken, _ := f.register("instructor")
	_, studentID := f.register("student")
	outsiderToken, outsiderID := f.register("outsider")
	path := "/api/chat/assignments/9/room"

	// Given an assignment room created by the instructor
	status, _ := f.do(http.MethodPost, path, instructorToken, map[string]any{"member_ids": []domain.UserID{studentID}})
	req.Equal(http.StatusCreated, status)

	// When an outsider asks for the room, alone or with themselves as member
	status, _ = f.do(http.MethodPost, path, outsiderToken, nil)
	req.Equal(http.StatusForbidden, status)
	status, _ = f.do(http.MethodPost, path, outsiderToken, map[string]any{"member_ids": []domain.UserID{outsiderID}})
	req.Equal(http.StatusForbidden, status)

	// Then the outsider is still not a member
	status, _ = f.do(http.MethodGet, "/api/chat/rooms/assignment_9", outsiderToken, nil)
	req.Equal(http.StatusForbidden, status)
	status, _ = f.do(http.MethodPost, "/api/chat/rooms/assignment_9/messages", outsiderToken, map[string]string{"content": "let me in"})
	req.Equal(http.StatusForbidden, status)

	// A member can still bring the outsider in
	status, room := f.do(http.MethodPost, path, instructorToken, map[string]any{"member_ids": []domain.UserID{outsiderID}})
	req.Equal(http.StatusOK, status)
	req.Len(room["members"], 3)
	status, _ = f.do(http.MethodGet, "/api/chat/rooms/assignment_9", outsiderToken, nil)
	req.Equal(http.StatusOK, status)
}

func contents(page map[string]any) []string {
	var out []string
	for _, m := range page["messages"].([]any) {
		out = append(out, m.(map[string]any)["content"].(string))
	}
	return out
}
