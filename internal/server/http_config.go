package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/events"
	"github.com/alfredjeanlab/datatable/internal/listing"
	"github.com/alfredjeanlab/datatable/internal/model"
)

// setConfigRequest is the JSON body for PUT /v1/configs/{key}.
type setConfigRequest struct {
	Value json.RawMessage `json:"value"`
}

// requireConfigure checks that the principal may manage config records.
func (s *Server) requireConfigure(w http.ResponseWriter, r *http.Request) bool {
	principal, _ := auth.FromContext(r.Context())
	if err := s.checker.Require(r.Context(), principal, ConfigCapability, listing.LevelSystem, 0); err != nil {
		s.fail(w, r, err)
		return false
	}
	return true
}

// handleSetConfig handles PUT /v1/configs/{key}.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireConfigure(w, r) {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	var req setConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateConfig(key, req.Value); err != nil {
		s.fail(w, r, err)
		return
	}

	config := &model.Config{
		Key:   key,
		Value: req.Value,
	}
	if err := s.store.SetConfig(r.Context(), config); err != nil {
		s.fail(w, r, err)
		return
	}
	s.configChanged(r, events.TopicConfigUpdated, key)

	writeSuccess(w, config)
}

// handleGetConfig handles GET /v1/configs/{key}.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireConfigure(w, r) {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	config, err := s.store.GetConfig(r.Context(), key)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeSuccess(w, config)
}

// handleListConfigs handles GET /v1/configs?namespace=...
func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	if !s.requireConfigure(w, r) {
		return
	}
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		writeError(w, http.StatusBadRequest, "namespace query parameter is required")
		return
	}

	configs, err := s.store.ListConfigs(r.Context(), namespace)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if configs == nil {
		configs = []*model.Config{}
	}

	writeSuccess(w, configs)
}

// handleDeleteConfig handles DELETE /v1/configs/{key}.
func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireConfigure(w, r) {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := s.store.DeleteConfig(r.Context(), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "config not found")
			return
		}
		s.fail(w, r, err)
		return
	}
	s.configChanged(r, events.TopicConfigDeleted, key)

	writeSuccess(w, []any{})
}

// configChanged drops the cached record and tells other instances.
func (s *Server) configChanged(r *http.Request, topic, key string) {
	s.options.invalidate(key)
	if err := s.publisher.Publish(r.Context(), topic, events.ConfigChanged{Key: key}); err != nil {
		s.logger.Warn("failed to publish config event", "topic", topic, "key", key, "err", err)
	}
}
