package api

import (
	"io"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apiError("request body could not be read", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if len(body) == 0 {
		return apiError("request body is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if err := codec.Unmarshal(body, out); err != nil {
		return apiWrapError(err, goerrors.CategoryBadInput, "request body is not valid JSON", http.StatusBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := codec.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
