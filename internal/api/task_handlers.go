package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/swexcamp/adventd/internal/feed"
	"github.com/swexcamp/adventd/internal/registry"
)

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var dto TaskCreateDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.TaskType.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateDTO(dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.Registry.Tasks().Create(r.Context(), registry.Task{
		Name:     dto.Name,
		Kind:     dto.TaskType,
		Solution: dto.Solution,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]
	// no cascade: completions for this task are left orphaned
	if err := s.Registry.Tasks().Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) handleTasksForAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentID"]
	if _, ok := s.agentByToken(w, r, agentID, r.URL.Query().Get("token")); !ok {
		return
	}

	statuses, err := s.Registry.TasksForAgent(r.Context(), agentID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]TaskStatusDTO, 0, len(statuses))
	for _, status := range statuses {
		dto := TaskStatusDTO{ID: status.ID, Name: status.Name, Completed: status.Completed}
		if status.CompletedAt != nil {
			ts := status.CompletedAt.Unix()
			dto.Time = &ts
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOpenTask returns the task body (solution stripped) and starts or
// restarts the agent's attempt timer.
func (s *Server) handleOpenTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentID, taskID := vars["agentID"], vars["taskID"]
	agent, ok := s.agentByToken(w, r, agentID, r.URL.Query().Get("token"))
	if !ok {
		return
	}

	task, err := s.Registry.Tasks().Read(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if _, err := s.Timer.Open(r.Context(), taskID, agentID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if s.Feed != nil {
		s.Feed.Publish(feed.Event{
			Kind:      feed.KindTaskOpened,
			AgentID:   agentID,
			AgentName: agent.Name,
			TaskID:    taskID,
			TaskName:  task.Name,
		})
	}

	writeJSON(w, http.StatusOK, TaskDTO{Name: task.Name, TaskType: task.Kind})
}

func (s *Server) handleCheckTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	agentID, taskID := vars["agentID"], vars["taskID"]
	agent, ok := s.agentByToken(w, r, agentID, r.URL.Query().Get("token"))
	if !ok {
		return
	}

	task, err := s.Registry.Tasks().Read(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var dto CheckRequestDTO
	if err := decodeJSON(r.Body, &dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateDTO(dto); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	correct, err := s.Timer.Submit(r.Context(), taskID, agentID, dto.Solution, task.Solution)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if correct && s.Feed != nil {
		event := feed.Event{
			Kind:      feed.KindTaskCompleted,
			AgentID:   agentID,
			AgentName: agent.Name,
			TaskID:    taskID,
			TaskName:  task.Name,
		}
		if _, c, found, err := s.Registry.CompletionForPair(r.Context(), taskID, agentID); err == nil && found {
			event.BestTimeMS = c.BestTimeMS
		}
		s.Feed.Publish(event)
	}

	writeJSON(w, http.StatusOK, CheckResponseDTO{Correct: correct})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Registry.Leaderboard(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]LeaderboardEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, LeaderboardEntryDTO{
			AgentID:         entry.AgentID,
			Name:            entry.AgentName,
			Completed:       entry.Completed,
			TotalBestTimeMS: entry.TotalBestTimeMS,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
