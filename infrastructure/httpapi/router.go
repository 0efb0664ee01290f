package httpapi

import (
	"final-draft/auth"
	"final-draft/contract"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Optional, mounted on /metrics when set.
	Metrics http.Handler
	// Optional, mounted on /ws/chat/{room_id}/ when set.
	Gateway http.Handler
	// mux variable name the gateway reads the room id from.
	RoomVar string
}

// NewRouter mounts the REST API, the health endpoint and the WebSocket gateway.
// The gateway authenticates by itself because refusals there are close frames, not statuses.
func NewRouter(api *API, resolver contract.IdentityResolver, config RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/up", Up).Methods(http.MethodGet)
	if config.Metrics != nil {
		router.Handle("/metrics", config.Metrics).Methods(http.MethodGet)
	}
	if config.Gateway != nil {
		roomVar := config.RoomVar
		if roomVar == "" {
			roomVar = "room_id"
		}
		router.Handle(fmt.Sprintf("/ws/chat/{%s}/", roomVar), config.Gateway).Methods(http.MethodGet)
	}

	accounts := router.PathPrefix("/api/auth").Subrouter()
	accounts.HandleFunc("/register", api.Register).Methods(http.MethodPost)
	accounts.HandleFunc("/login", api.Login).Methods(http.MethodPost)
	accounts.HandleFunc("/logout", api.Logout).Methods(http.MethodPost)

	chat := router.PathPrefix("/api/chat").Subrouter()
	chat.Use(auth.Middleware(resolver))
	chat.HandleFunc("/rooms", api.ListRooms).Methods(http.MethodGet)
	chat.HandleFunc("/rooms", api.CreateDirectRoom).Methods(http.MethodPost)
	chat.HandleFunc("/assignments/{assignment_id}/room", api.CreateAssignmentRoom).Methods(http.MethodPost)
	chat.HandleFunc("/rooms/{room_id}", api.GetRoom).Methods(http.MethodGet)
	chat.HandleFunc("/rooms/{room_id}/messages", api.ListMessages).Methods(http.MethodGet)
	chat.HandleFunc("/rooms/{room_id}/messages", api.PostMessage).Methods(http.MethodPost)

	return cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)
}
