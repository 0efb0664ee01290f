package e2e

import (
	"final-draft/auth"
	"final-draft/domain"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

type account struct {
	token string
	id    domain.UserID
}

func (s *testChatSuite) register(name string) account {
	// Unique per run so the scenario can be replayed against the same store
	username := name + uuid.NewString()[:8]
	var body struct {
		Token string `json:"token"`
	}
	status := s.Do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":   username,
		"email":      username + "@example.com",
		"password":   "ComplexPass123!",
		"first_name": name,
	}, &body)
	s.Require().Equal(http.StatusCreated, status)

	// The server signs the credential, the client only reads its user id
	var claims auth.SessionClaims
	_, _, err := jwt.NewParser().ParseUnverified(body.Token, &claims)
	s.Require().NoError(err)
	return account{token: body.Token, id: claims.UserID}
}

func (s *testChatSuite) TestDirectConversation() {
	var alice, bob, carol account
	var roomID string

	s.Run("Step 1: Register three users", func() {
		s.Step("Registering alice, bob and carol")
		alice, bob, carol = s.register("alice"), s.register("bob"), s.register("carol")
	})

	s.Run("Step 2: Alice opens a direct room with bob", func() {
		s.Step("Creating the room twice")
		var room map[string]any
		s.Require().Equal(http.StatusCreated, s.Do(http.MethodPost, "/api/chat/rooms", alice.token, map[string]any{"recipient_id": bob.id}, &room))
		roomID = room["id"].(string)
		expected, err := domain.DirectRoomID(alice.id, bob.id)
		s.Require().NoError(err)
		s.Require().Equal(string(expected), roomID)

		s.Require().Equal(http.StatusOK, s.Do(http.MethodPost, "/api/chat/rooms", bob.token, map[string]any{"recipient_id": alice.id}, &room))
		s.Require().Equal(roomID, room["id"])
	})

	s.Run("Step 3: Live messages reach both participants", func() {
		s.Step("Connecting and sending")
		aliceConn := s.Dial(roomID, alice.token)
		bobConn := s.Dial(roomID, bob.token)
		// The join completes after the handshake
		time.Sleep(200 * time.Millisecond)

		s.Require().NoError(aliceConn.WriteJSON(map[string]string{"message": "hi bob"}))
		s.Require().Equal("hi bob", s.ReadFrame(aliceConn)["message"])
		s.Require().Equal("hi bob", s.ReadFrame(bobConn)["message"])

		// A message posted over REST is pushed to live connections too
		s.Require().Equal(http.StatusCreated, s.Do(http.MethodPost, "/api/chat/rooms/"+roomID+"/messages", bob.token, map[string]string{"content": "hello alice"}, nil))
		s.Require().Equal("hello alice", s.ReadFrame(aliceConn)["message"])
	})

	s.Run("Step 4: Outsiders are refused", func() {
		s.Step("Carol tries to listen in")
		s.Require().Equal(4403, s.ReadCloseCode(s.Dial(roomID, carol.token)))
		s.Require().Equal(4401, s.ReadCloseCode(s.Dial(roomID, "not-a-token")))
		s.Require().Equal(http.StatusForbidden, s.Do(http.MethodGet, "/api/chat/rooms/"+roomID, carol.token, nil, nil))
	})

	s.Run("Step 5: History is readable over REST", func() {
		s.Step("Reading the last page")
		var page struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		s.Require().Equal(http.StatusOK, s.Do(http.MethodGet, fmt.Sprintf("/api/chat/rooms/%s/messages?limit=10", roomID), bob.token, nil, &page))
		s.Require().Len(page.Messages, 2)
		s.Require().Equal("hello alice", page.Messages[0].Content)
		s.Require().Equal("hi bob", page.Messages[1].Content)
	})
}
