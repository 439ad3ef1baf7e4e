package overrides_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/seqfabric/batchbridge/internal/model"
	"github.com/seqfabric/batchbridge/internal/overrides"
)

func testTask() model.Task {
	return model.Task{
		ID:        "job-align-1",
		Rule:      "align",
		Command:   "snakemake --snakefile /work/Snakefile align/sample1.bam",
		CPUs:      2,
		MemoryMiB: 4096,
	}
}

func TestBuildCommandVerbatim(t *testing.T) {
	task := testTask()
	ov, err := overrides.Build(task, "main-queue", "main-def", overrides.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"/bin/bash", "-c", task.Command}
	if len(ov.Command) != len(want) {
		t.Fatalf("Command = %v, want %v", ov.Command, want)
	}
	for i := range want {
		if ov.Command[i] != want[i] {
			t.Errorf("Command[%d] = %q, want %q", i, ov.Command[i], want[i])
		}
	}
}

func TestBuildEnvironment(t *testing.T) {
	ov, err := overrides.Build(testTask(), "main-queue", "main-def", overrides.Options{
		Region:          "us-west-2",
		StorageProvider: "s3",
		StoragePrefix:   "s3://bucket/runs/abc",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantEnv := map[string]string{
		overrides.EnvJobQueue:        "main-queue",
		overrides.EnvJobDefinition:   "main-def",
		overrides.EnvRegion:          "us-west-2",
		overrides.EnvStorageProvider: "s3",
		overrides.EnvStoragePrefix:   "s3://bucket/runs/abc",
	}
	for k, want := range wantEnv {
		if got := ov.Env[k]; got != want {
			t.Errorf("Env[%q] = %q, want %q", k, got, want)
		}
	}
	if _, ok := ov.Env[overrides.EnvCoordinatorContext]; ok {
		t.Error("coordinator context flag set on a plain task override")
	}
}

func TestBuildCoordinatorContext(t *testing.T) {
	ov, err := overrides.Build(testTask(), "q", "d", overrides.Options{CoordinatorContext: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ov.Env[overrides.EnvCoordinatorContext]; got != "1" {
		t.Errorf("Env[%q] = %q, want %q", overrides.EnvCoordinatorContext, got, "1")
	}
}

func TestBuildTaskEnvMerged(t *testing.T) {
	task := testTask()
	task.Env = map[string]string{"SAMPLE": "s1"}
	ov, err := overrides.Build(task, "q", "d", overrides.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := ov.Env["SAMPLE"]; got != "s1" {
		t.Errorf("Env[SAMPLE] = %q, want %q", got, "s1")
	}
}

func TestContainerOverridesResources(t *testing.T) {
	ov, err := overrides.Build(testTask(), "q", "d", overrides.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	co := ov.ContainerOverrides()
	got := make(map[string]string)
	for _, rr := range co.ResourceRequirements {
		got[string(rr.Type)] = *rr.Value
	}
	if got["VCPU"] != "2" {
		t.Errorf("VCPU requirement = %q, want %q", got["VCPU"], "2")
	}
	if got["MEMORY"] != "4096" {
		t.Errorf("MEMORY requirement = %q, want %q", got["MEMORY"], "4096")
	}
	if _, ok := got["GPU"]; ok {
		t.Error("GPU requirement emitted for a task that declares none")
	}
}

func TestContainerOverridesNoDeclaredResources(t *testing.T) {
	task := testTask()
	task.CPUs = 0
	task.MemoryMiB = 0

	ov, err := overrides.Build(task, "q", "d", overrides.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if co := ov.ContainerOverrides(); len(co.ResourceRequirements) != 0 {
		t.Errorf("ResourceRequirements = %v, want none so definition defaults apply", co.ResourceRequirements)
	}
}

func TestContainerOverridesRoundTrip(t *testing.T) {
	ov, err := overrides.Build(testTask(), "q", "d", overrides.Options{Region: "us-east-1"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	co := ov.ContainerOverrides()

	env := make(map[string]string)
	for _, kv := range co.Environment {
		env[*kv.Name] = *kv.Value
	}
	if len(env) != len(ov.Env) {
		t.Fatalf("wire environment has %d entries, override has %d", len(env), len(ov.Env))
	}
	for k, v := range ov.Env {
		if env[k] != v {
			t.Errorf("wire env[%q] = %q, want %q", k, env[k], v)
		}
	}

	for i := 1; i < len(co.Environment); i++ {
		if *co.Environment[i-1].Name > *co.Environment[i].Name {
			t.Fatalf("wire environment not sorted: %q before %q",
				*co.Environment[i-1].Name, *co.Environment[i].Name)
		}
	}
}

func TestBuildRejectsOversizedPayload(t *testing.T) {
	task := testTask()
	task.Command = strings.Repeat("x", overrides.MaxPayloadBytes+1)

	_, err := overrides.Build(task, "q", "d", overrides.Options{})
	if !errors.Is(err, overrides.ErrOverrideTooLarge) {
		t.Fatalf("Build error = %v, want ErrOverrideTooLarge", err)
	}
}
