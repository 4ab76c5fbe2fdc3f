package httpapi

import (
	"net/http"

	"github.com/fieldpulse/liveactivity/internal/platform/logging"
)

func NewRouter(handler *Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, handler)

	return RequestTracing(RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux))))
}

func registerRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)

	mux.HandleFunc("POST /v1/devices", handler.RegisterDevice)
	mux.HandleFunc("GET /v1/devices", handler.ListDevices)
	mux.HandleFunc("DELETE /v1/devices/{deviceID}", handler.UnregisterDevice)
	mux.HandleFunc("GET /v1/devices/{deviceID}", handler.GetSessionStatus)
	mux.HandleFunc("GET /v1/devices/{deviceID}/aggregate", handler.GetAggregate)
	mux.HandleFunc("POST /v1/devices/{deviceID}/session-token", handler.RegisterSessionToken)
	mux.HandleFunc("POST /v1/devices/{deviceID}/heartbeat", handler.Heartbeat)
	mux.HandleFunc("POST /v1/devices/{deviceID}/session/start", handler.StartSession)
	mux.HandleFunc("POST /v1/devices/{deviceID}/session/end", handler.EndSession)

	mux.HandleFunc("GET /v1/games", handler.ListGames)
	mux.HandleFunc("POST /v1/games/refresh", handler.RefreshGames)

	mux.HandleFunc("POST /v1/players/refresh", handler.RefreshPlayers)
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "panic recovered", "panic", rec)
				writeInternalError(r.Context(), w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
