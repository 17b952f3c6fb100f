package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fpga-edge/drm-agent-go"
)

func (s *Server) setupAPIRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Route("/params", func(r chi.Router) {
		r.Get("/", s.handleListParams)
		r.Get("/{key}", s.handleGetParam)
	})

	r.Route("/mailbox", func(r chi.Router) {
		r.Get("/{index}", s.handleGetMailboxWord)
		r.Put("/{index}", s.handleSetMailboxWord)
	})

	r.Post("/activate", s.handleActivate)
	r.Post("/deactivate", s.handleDeactivate)
	r.Get("/report", s.handleReport)

	if s.hub != nil {
		r.Get("/events", s.hub.ServeWS)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": s.agent.State().String()})
}

var listedParams = []drmagent.ParameterKey{
	drmagent.ParamSessionID,
	drmagent.ParamLicenseType,
	drmagent.ParamCurrentFrequency,
	drmagent.ParamLicenseDuration,
	drmagent.ParamActivatorCount,
	drmagent.ParamSessionRunning,
	drmagent.ParamLicenseRunning,
	drmagent.ParamMeteringCounter,
	drmagent.ParamTokenState,
}

func (s *Server) handleListParams(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(listedParams))
	for _, key := range listedParams {
		v, err := s.agent.Get(key)
		if err != nil {
			out[string(key)] = nil
			continue
		}
		out[string(key)] = v
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	key := drmagent.ParameterKey(chi.URLParam(r, "key"))
	v, err := s.agent.Get(key)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

func (s *Server) handleGetMailboxWord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	v, err := s.agent.GetMailboxUserWord(index)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"index": index, "value": v})
}

func (s *Server) handleSetMailboxWord(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	var body struct {
		Value uint32 `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.agent.SetMailboxUserWord(index, body.Value); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"index": index, "value": body.Value})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resume bool `json:"resume"`
	}
	_ = decodeJSON(r, &body)
	if err := s.agent.Activate(r.Context(), body.Resume); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"state": s.agent.State().String()})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pause bool `json:"pause"`
	}
	_ = decodeJSON(r, &body)
	if err := s.agent.Deactivate(r.Context(), body.Pause); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"state": s.agent.State().String()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.agent.DumpControllerReport()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}
