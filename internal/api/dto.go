package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/swexcamp/adventd/internal/registry"
)

var validate = validator.New()

type AgentCreateDTO struct {
	Name string `json:"name" validate:"required,max=64"`
}

type AgentCreatedDTO struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type AgentDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AgentUpdateDTO struct {
	Token string  `json:"token" validate:"required"`
	Name  *string `json:"name,omitempty" validate:"omitempty,max=64"`
}

type AgentDeleteDTO struct {
	Token string `json:"token" validate:"required"`
}

type TaskCreateDTO struct {
	Name     string            `json:"name" validate:"required,max=64"`
	TaskType registry.TaskKind `json:"taskType"`
	Solution string            `json:"solution" validate:"required,max=32768"`
}

// TaskDTO is the task as agents see it: no solution, ever.
type TaskDTO struct {
	Name     string            `json:"name"`
	TaskType registry.TaskKind `json:"taskType"`
}

// TaskStatusDTO is one row of the tasks-for-agent listing. Time is the
// completion timestamp in unix seconds when completed.
type TaskStatusDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
	Time      *int64 `json:"time"`
}

type CheckRequestDTO struct {
	Solution string `json:"solution" validate:"max=32768"`
}

type CheckResponseDTO struct {
	Correct bool `json:"correct"`
}

type LeaderboardEntryDTO struct {
	AgentID         string `json:"agentId"`
	Name            string `json:"name"`
	Completed       int    `json:"completed"`
	TotalBestTimeMS int64  `json:"totalBestTimeInMs"`
}

// validateDTO runs the tag-based bounds checks and returns a human-readable
// reason for the first violation.
func validateDTO(dto any) error {
	err := validate.Struct(dto)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		f := invalid[0]
		switch f.Tag() {
		case "required":
			return fmt.Errorf("%s is required", f.Field())
		case "max":
			return fmt.Errorf("%s too long (must be <=%s)", f.Field(), f.Param())
		}
	}
	return fmt.Errorf("invalid request body")
}
