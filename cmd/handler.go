package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/internal/trace"
)

// maxRequestBytes caps the size of an inbound request body.
const maxRequestBytes = 64 << 20

// reconciler runs one reconciliation request.
type reconciler interface {
	Run(ctx context.Context, req *model.Request) *model.Response
}

// fileVerificationHandler decodes a reconciliation request and writes the
// engine's envelope. Requests that fail shape validation get a 400.
func fileVerificationHandler(engine reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := trace.Logger(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			log.Warn("read request body", zap.Error(err))
			writeValidationFailure(w)
			return
		}

		req, err := model.DecodeRequest(body)
		if err != nil {
			log.Warn("request failed validation", zap.Error(err))
			writeValidationFailure(w)
			return
		}

		writeJSON(w, http.StatusOK, engine.Run(r.Context(), req))
	}
}

func writeValidationFailure(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, model.ValidationFailure{
		Status:        model.StatusFailed,
		StatusMessage: model.MsgFieldsMissing,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}
