package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

const roomPattern = "{room:[A-Za-z0-9_]+}"

func NewRouter(ch *ChatHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/chat/"+roomPattern, ch.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/ws/chat/"+roomPattern+"/", ch.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/health", ch.Health).Methods(http.MethodGet)
	return r
}
