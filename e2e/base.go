package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"final-draft/infrastructure/grpc/client"
	"final-draft/infrastructure/grpc/server"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type BaseSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// SetupSuite loads the environment configuration and waits for the server to be healthy.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("E2E_SERVER_ADDR is not set")
	}
	s.client = &http.Client{Timeout: 5 * time.Second}
	if s.Config.GrpcAddr != "" {
		s.waitForHealth()
	}
}

// Step prints a colorized header for one scenario step.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseSuite) waitForHealth() {
	marshaler := protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: true}
	conn, err := client.Dial(s.Config.GrpcAddr,
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)
			line := fmt.Sprintf("GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON && err == nil {
				line += " " + marshaler.Format(reply.(proto.Message))
			}
			s.T().Log(line)
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = client.WaitForHealth(ctx, conn, server.ChatService, logs.GetLoggerFromLevel(slog.LevelInfo))
	s.Require().NoError(err, "server never reported SERVING")
}

// Do sends a JSON request to the REST API and decodes the JSON answer into out when given.
func (s *BaseSuite) Do(method, path, token string, body, out any) int {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}
	request, err := http.NewRequest(method, "http://"+s.Config.ServerAddr+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	response, err := s.client.Do(request)
	s.Require().NoError(err)
	defer response.Body.Close()
	s.T().Logf("HTTP %s %s [%d] in %v", method, path, response.StatusCode, time.Since(start))

	if out != nil && response.StatusCode < 300 {
		s.Require().NoError(json.NewDecoder(response.Body).Decode(out))
	}
	return response.StatusCode
}

// Dial opens a chat connection the way a browser does, with the credential in the query.
func (s *BaseSuite) Dial(roomID, token string) *websocket.Conn {
	u := url.URL{
		Scheme:   "ws",
		Host:     s.Config.ServerAddr,
		Path:     fmt.Sprintf("/ws/chat/%s/", roomID),
		RawQuery: url.Values{"session_key": {token}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "dial "+strings.Split(u.String(), "?")[0])
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *BaseSuite) ReadFrame(conn *websocket.Conn) map[string]any {
	var frame map[string]any
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	s.Require().NoError(conn.ReadJSON(&frame))
	if s.Config.DebugJSON {
		s.T().Logf("WS frame %v", frame)
	}
	return frame
}

func (s *BaseSuite) ReadCloseCode(conn *websocket.Conn) int {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	s.Require().True(ok, "expected a close frame, got %v", err)
	return closeErr.Code
}
