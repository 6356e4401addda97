// internal/delivery/statusapi/handlers.go
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"crypto-weather-sync/internal/infrastructure/api/cryptocompare"
	"crypto-weather-sync/internal/infrastructure/api/upstream"
	storage "crypto-weather-sync/internal/infrastructure/persistence/in_memory_storage"
	"crypto-weather-sync/pkg/logger"
)

const (
	defaultNotificationLimit = 20
	defaultHistoryDays       = 7
	maxHistoryDays           = 365
)

type handlers struct {
	deps Deps
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string          `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Checks map[string]bool `json:"checks,omitempty"`
}

type statusResponse struct {
	Sync       interface{}                       `json:"sync,omitempty"`
	Storage    storage.StorageStats              `json:"storage"`
	Components map[string]map[string]interface{} `json:"components,omitempty"`
}

type historyResponse struct {
	ID     string       `json:"id"`
	Days   int          `json:"days"`
	Stale  bool         `json:"stale"`
	Prices [][2]float64 `json:"prices"`
}

type newsResponse struct {
	Items     []cryptocompare.NewsItem `json:"items"`
	Stale     bool                     `json:"stale"`
	FetchedAt time.Time                `json:"fetched_at"`
}

// health - 200, пока нет терминального сбоя и все проверки проходят
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK

	if len(h.deps.Checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Checks = make(map[string]bool, len(h.deps.Checks))
		for name, check := range h.deps.Checks {
			ok := check(ctx)
			resp.Checks[name] = ok
			if !ok {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
	}

	if reason, failed := h.deps.Store.TerminalFailure(); failed {
		resp.Status = "degraded"
		resp.Reason = reason
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Storage: h.deps.Store.GetStats()}
	if h.deps.Status != nil {
		resp.Sync = h.deps.Status.Status()
	}
	if len(h.deps.Stats) > 0 {
		resp.Components = make(map[string]map[string]interface{}, len(h.deps.Stats))
		for name, stats := range h.deps.Stats {
			resp.Components[name] = stats()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) prices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Store.GetAllPrices())
}

func (h *handlers) coin(w http.ResponseWriter, r *http.Request) {
	coin, err := h.deps.Store.GetCoin(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, coin)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history source is not configured")
		return
	}

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxHistoryDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = v
	}

	id := chi.URLParam(r, "id")
	chart, stale, err := h.deps.History.History(r.Context(), id, days)
	if err != nil {
		code := http.StatusBadGateway
		if upstream.IsNotFound(err) || errors.Is(err, upstream.ErrInvalidRequest) {
			code = http.StatusNotFound
		}
		writeError(w, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{ID: id, Days: days, Stale: stale, Prices: chart.Prices})
}

func (h *handlers) news(w http.ResponseWriter, r *http.Request) {
	if h.deps.News == nil {
		writeError(w, http.StatusServiceUnavailable, "news source is not configured")
		return
	}

	res, err := h.deps.News.Latest(r.Context())
	if err != nil {
		logger.Warn("⚠️ statusapi: новости недоступны: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch news data. Please try again later.")
		return
	}

	writeJSON(w, http.StatusOK, newsResponse{Items: res.Items, Stale: res.Stale, FetchedAt: res.FetchedAt})
}

func (h *handlers) weather(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Store.GetAllWeather())
}

func (h *handlers) city(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.deps.Store.GetWeather(chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *handlers) notifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	writeJSON(w, http.StatusOK, h.deps.Store.RecentNotifications(limit))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("⚠️ HTTP: ошибка кодирования ответа: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}
