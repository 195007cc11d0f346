package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Response is the standard API response envelope
type Response struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteSuccess writes a success response envelope
func WriteSuccess(w http.ResponseWriter, statusCode int, data interface{}, message string) {
	WriteJSON(w, statusCode, Response{
		Status:  "success",
		Data:    data,
		Message: message,
	})
}
