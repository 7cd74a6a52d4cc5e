package op

import (
	"context"
	"log/slog"
	"net/http"

	httphelper "github.com/idpserver/idp/pkg/http"
	"github.com/idpserver/idp/pkg/oidc"
)

// WriteError renders err as an OAuth error response with Cache-Control no-store.
// Errors that are not *oidc.Error become server_error. Parents and the
// description of fatal errors never reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	e := oidc.DefaultToServerError(err, err.Error())
	logError(r.Context(), endpoint, e)
	rejectedRequests.WithLabelValues(endpoint, string(e.ErrorType), e.Kind.String()).Inc()

	response := &oidc.Error{
		ErrorType:   e.ErrorType,
		Description: e.Description,
		State:       e.State,
	}
	if e.Kind == oidc.KindFatal {
		response.Description = "an internal error occurred"
	}
	httphelper.MarshalJSONNoStore(w, response, errorStatus(e))
}

func errorStatus(e *oidc.Error) int {
	switch {
	case e.Kind == oidc.KindFatal:
		return http.StatusInternalServerError
	case e.ErrorType == oidc.InvalidClient:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func logError(ctx context.Context, endpoint string, e *oidc.Error) {
	level := slog.LevelInfo
	switch e.Kind {
	case oidc.KindFatal:
		level = slog.LevelError
	case oidc.KindInvalidRequestObject:
		level = slog.LevelWarn
	}
	loggerFromContext(ctx).Log(ctx, level, "request rejected", "endpoint", endpoint, "error", e)
}
