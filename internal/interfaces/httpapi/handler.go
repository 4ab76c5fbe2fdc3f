package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/fieldpulse/liveactivity/internal/domain/schedule"
	"github.com/fieldpulse/liveactivity/internal/domain/subscription"
	"github.com/fieldpulse/liveactivity/internal/platform/logging"
	"github.com/fieldpulse/liveactivity/internal/usecase"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	lifecycle  *usecase.LifecycleService
	aggregator *usecase.AggregationService
	remote     *usecase.RemoteDataService
	logger     *logging.Logger
	validator  *validator.Validate
}

func NewHandler(
	lifecycle *usecase.LifecycleService,
	aggregator *usecase.AggregationService,
	remote *usecase.RemoteDataService,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		lifecycle:  lifecycle,
		aggregator: aggregator,
		remote:     remote,
		logger:     logger,
		validator:  validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerDeviceRequest struct {
	DeviceID          string `json:"device_id" validate:"required,max=128"`
	UserID            string `json:"user_id" validate:"required,max=64"`
	LeagueID          string `json:"league_id" validate:"required,max=64"`
	NotificationToken string `json:"notification_token" validate:"omitempty,max=512"`
	SessionStartToken string `json:"push_to_start_token" validate:"omitempty,max=512"`
}

func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RegisterDevice")
	defer span.End()

	var req registerDeviceRequest
	if err := h.decodeRequest(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.lifecycle.RegisterDevice(ctx, usecase.RegisterInput{
		DeviceID:          req.DeviceID,
		UserID:            req.UserID,
		LeagueID:          req.LeagueID,
		NotificationToken: req.NotificationToken,
		SessionStartToken: req.SessionStartToken,
	}); err != nil {
		h.logger.WarnContext(ctx, "device registration failed", "device_id", req.DeviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"device_id": req.DeviceID})
}

type sessionTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

func (h *Handler) RegisterSessionToken(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RegisterSessionToken")
	defer span.End()

	deviceID := r.PathValue("deviceID")

	var req sessionTokenRequest
	if err := h.decodeRequest(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.lifecycle.RegisterSessionToken(ctx, deviceID, req.Token); err != nil {
		h.logger.WarnContext(ctx, "session token registration failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"device_id": deviceID})
}

type heartbeatRequest struct {
	SessionActive bool `json:"session_active"`
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Heartbeat")
	defer span.End()

	deviceID := r.PathValue("deviceID")

	var req heartbeatRequest
	if err := h.decodeRequest(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.lifecycle.OnHeartbeat(ctx, deviceID, req.SessionActive); err != nil {
		h.logger.WarnContext(ctx, "heartbeat failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"device_id": deviceID})
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.StartSession")
	defer span.End()

	deviceID := r.PathValue("deviceID")
	if err := h.lifecycle.ForceStartSession(ctx, deviceID); err != nil {
		h.logger.WarnContext(ctx, "forced session start failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"device_id": deviceID, "state": string(subscription.StateActive)})
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.EndSession")
	defer span.End()

	deviceID := r.PathValue("deviceID")
	if err := h.lifecycle.ForceEndSession(ctx, deviceID); err != nil {
		h.logger.WarnContext(ctx, "forced session end failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"device_id": deviceID, "state": string(subscription.StateInactive)})
}

func (h *Handler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UnregisterDevice")
	defer span.End()

	deviceID := r.PathValue("deviceID")
	if err := h.lifecycle.Unregister(ctx, deviceID); err != nil {
		h.logger.WarnContext(ctx, "unregister failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"device_id": deviceID})
}

type deviceDTO struct {
	DeviceID         string `json:"device_id"`
	UserID           string `json:"user_id"`
	LeagueID         string `json:"league_id"`
	State            string `json:"state"`
	SessionStartedAt string `json:"session_started_at,omitempty"`
	LastUpdatedAt    string `json:"last_updated_at,omitempty"`
}

func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListDevices")
	defer span.End()

	devices, err := h.lifecycle.ListDevices(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list devices failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]deviceDTO, 0, len(devices))
	for _, device := range devices {
		items = append(items, deviceToDTO(device))
	}
	writeSuccess(ctx, w, http.StatusOK, items)
}

type sessionStatusDTO struct {
	DeviceID         string  `json:"device_id"`
	State            string  `json:"state"`
	SessionStartedAt string  `json:"session_started_at,omitempty"`
	LastUpdatedAt    string  `json:"last_updated_at,omitempty"`
	TotalPoints      float64 `json:"total_points"`
	ProjectedPoints  float64 `json:"projected_points"`
}

func (h *Handler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetSessionStatus")
	defer span.End()

	deviceID := r.PathValue("deviceID")
	status, err := h.lifecycle.Status(ctx, deviceID)
	if err != nil {
		h.logger.WarnContext(ctx, "session status failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, sessionStatusDTO{
		DeviceID:         status.DeviceID,
		State:            string(status.State),
		SessionStartedAt: formatTime(status.SessionStartedAt),
		LastUpdatedAt:    formatTime(status.LastUpdatedAt),
		TotalPoints:      status.Aggregate.ScoredTotal,
		ProjectedPoints:  status.Aggregate.ProjectedTotal,
	})
}

type aggregateDTO struct {
	DeviceID        string  `json:"device_id"`
	TotalPoints     float64 `json:"total_points"`
	ProjectedPoints float64 `json:"projected_points"`
	SnapshotBuiltAt string  `json:"snapshot_built_at,omitempty"`
}

func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetAggregate")
	defer span.End()

	deviceID := r.PathValue("deviceID")
	agg, err := h.aggregator.Aggregate(ctx, deviceID)
	if err != nil {
		h.logger.WarnContext(ctx, "aggregate lookup failed", "device_id", deviceID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, aggregateDTO{
		DeviceID:        deviceID,
		TotalPoints:     agg.ScoredTotal,
		ProjectedPoints: agg.ProjectedTotal,
		SnapshotBuiltAt: formatTime(h.aggregator.Snapshot().BuiltAt()),
	})
}

type gameDTO struct {
	Name      string   `json:"name"`
	Teams     []string `json:"teams"`
	StartTime string   `json:"start_time"`
	Status    string   `json:"status"`
}

func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListGames")
	defer span.End()

	games, err := h.remote.Games(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "list games failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, gamesToDTO(games))
}

func (h *Handler) RefreshGames(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RefreshGames")
	defer span.End()

	games, err := h.remote.RefreshGames(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "games refresh failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, gamesToDTO(games))
}

type playersRefreshDTO struct {
	TotalPlayers int `json:"total_players"`
}

// RefreshPlayers reloads the player reference catalog outside its daily TTL.
func (h *Handler) RefreshPlayers(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RefreshPlayers")
	defer span.End()

	if err := h.remote.RefreshCatalog(ctx); err != nil {
		h.logger.WarnContext(ctx, "player catalog refresh failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	catalog, err := h.remote.PlayerCatalog(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "player catalog lookup failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, playersRefreshDTO{TotalPlayers: len(catalog)})
}

func (h *Handler) decodeRequest(ctx context.Context, r *http.Request, out any) error {
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	if err := h.validator.StructCtx(ctx, out); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}

func deviceToDTO(device subscription.Device) deviceDTO {
	return deviceDTO{
		DeviceID:         device.DeviceID,
		UserID:           device.UserID,
		LeagueID:         device.LeagueID,
		State:            string(device.State),
		SessionStartedAt: formatTime(device.SessionStartedAt),
		LastUpdatedAt:    formatTime(device.LastUpdatedAt),
	}
}

func gamesToDTO(games []schedule.Game) []gameDTO {
	items := make([]gameDTO, 0, len(games))
	for _, game := range games {
		items = append(items, gameDTO{
			Name:      game.Name,
			Teams:     game.Teams,
			StartTime: formatTime(game.StartTime),
			Status:    game.Status,
		})
	}
	return items
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
