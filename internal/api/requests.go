package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Spot-Canvas/gameledger/internal/validation"
)

const maxBodyBytes = 1 << 20

// AddUserRequest is the request body for POST /add_user.
type AddUserRequest struct {
	UserID   string  `json:"userid" validate:"required"`
	Wallet   *int64  `json:"wallet" validate:"required,gte=0"`
	Powerups []int64 `json:"powerups" validate:"required,len=6,dive,gte=0"`
}

// ReducePowerupsRequest is the request body for POST /reduce_powerups/{userid}.
type ReducePowerupsRequest struct {
	Powerups []int64 `json:"powerups" validate:"required,len=6,dive,gte=0"`
}

// ReduceScoreRequest is the request body for POST /reduce_score.
type ReduceScoreRequest struct {
	UserID string `json:"userid" validate:"required"`
	Score  int64  `json:"score" validate:"required,gt=0"`
}

// AddTransactionRequest is the request body for POST /add_transaction.
type AddTransactionRequest struct {
	Txn    string  `json:"txn" validate:"required"`
	Amount float64 `json:"amount" validate:"required"`
}

// decodeAndValidate reads a JSON body into v and validates it. On failure it
// writes a 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// pathParam returns the decoded URL parameter. chi matches on RawPath when
// the client escaped characters such as '@' or ':', leaving the segment
// encoded; otherwise the segment comes from the already decoded Path. On a
// malformed escape it writes a 400 response and returns false.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, true
	}
	v, err := url.PathUnescape(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return "", false
	}
	return v, true
}
