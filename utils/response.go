package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/pkg/responses"
)

func HandleSuccess(w http.ResponseWriter, response models.ApiResponse) {
    writeJSON(w, http.StatusOK, response)
}

// HandleError maps API errors to their status code. Anything else is a 500
// with a generic message.
func HandleError(w http.ResponseWriter, err error) {
    statusCode := http.StatusInternalServerError
    errorMsg := "Internal Server Error"

    var apiErr responses.APIError
    if errors.As(err, &apiErr) {
        statusCode = apiErr.StatusCode()
        errorMsg = apiErr.Error()
    }

    writeJSON(w, statusCode, models.ErrorResponse(errorMsg))
}

func writeJSON(w http.ResponseWriter, status int, body models.ApiResponse) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(body)
}
