package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/seqfabric/batchbridge/internal/model"
)

// readManifest loads the ready-task list the engine hands over at the CLI
// boundary: a JSON array of tasks.
func readManifest(path string) ([]model.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	for i, task := range tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("manifest %s: task %d has no id", path, i)
		}
		if task.Command == "" {
			return nil, fmt.Errorf("manifest %s: task %s has no command", path, task.ID)
		}
	}
	return tasks, nil
}
