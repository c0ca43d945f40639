package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/swexcamp/adventd/internal/feed"
	"github.com/swexcamp/adventd/internal/idgen"
	"github.com/swexcamp/adventd/internal/registry"
	"github.com/swexcamp/adventd/internal/storage"
)

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var dto AgentCreateDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateDTO(dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent := registry.Agent{Token: idgen.New(), Name: dto.Name}
	id, err := s.Registry.Agents().Create(r.Context(), agent)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if s.Feed != nil {
		s.Feed.Publish(feed.Event{Kind: feed.KindAgentRegistered, AgentID: id, AgentName: agent.Name})
	}

	// the only response that ever carries the token
	writeJSON(w, http.StatusCreated, AgentCreatedDTO{ID: id, Token: agent.Token})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	records, err := s.Registry.Agents().ReadAll(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	storage.SortByID(records)

	out := make([]AgentDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, AgentDTO{ID: rec.ID, Name: rec.Value.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReadAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	agent, err := s.Registry.Agents().Read(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AgentDTO{ID: id, Name: agent.Name})
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var dto AgentUpdateDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateDTO(dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	agent, ok := s.agentByToken(w, r, id, dto.Token)
	if !ok {
		return
	}
	if dto.Name != nil {
		agent.Name = *dto.Name
	}
	if err := s.Registry.Agents().Update(r.Context(), id, agent); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AgentDTO{ID: id, Name: agent.Name})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var dto AgentDeleteDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateDTO(dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := s.agentByToken(w, r, id, dto.Token); !ok {
		return
	}
	if err := s.Registry.Agents().Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// agentByToken loads the agent and checks the presented token, writing the
// failure response itself when the agent is missing or the token is wrong.
func (s *Server) agentByToken(w http.ResponseWriter, r *http.Request, agentID, token string) (registry.Agent, bool) {
	agent, err := s.Registry.Agents().Read(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownID) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			s.writeDomainError(w, err)
		}
		return registry.Agent{}, false
	}
	if token == "" || agent.Token != token {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return registry.Agent{}, false
	}
	return agent, true
}
