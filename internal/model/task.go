package model

// Task is one ready-to-run rule job handed over by the workflow engine.
// The engine owns it; the executor core only reads it.
type Task struct {
	// ID is the engine's opaque local job identifier.
	ID string `json:"id"`
	// Rule is the human-readable rule name, used in remote job names.
	Rule string `json:"rule"`
	// Command is the literal command line the remote container runs.
	Command string `json:"command"`

	CPUs      int `json:"cpus,omitempty"`
	MemoryMiB int `json:"memory_mib,omitempty"`
	GPUs      int `json:"gpus,omitempty"`

	// Outputs lists the artifacts the rule declares; the remote process
	// writes them to workflow storage itself.
	Outputs []string `json:"outputs,omitempty"`

	// Env carries extra environment variables for the remote container.
	Env map[string]string `json:"env,omitempty"`
}
