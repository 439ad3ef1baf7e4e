// Package overrides builds the per-submission payload applied on top of a
// fixed, externally provisioned job definition: container command,
// environment, and resource requirements.
package overrides

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"

	"github.com/seqfabric/batchbridge/internal/model"
)

// Environment variables injected into every remote container. A job spawned
// by the coordinator reads these to learn where to submit its own children,
// so the names are part of the override contract, not just local settings.
const (
	EnvCoordinatorContext = "BATCHBRIDGE_COORDINATOR_CONTEXT"
	EnvJobQueue           = "BATCHBRIDGE_JOB_QUEUE"
	EnvJobDefinition      = "BATCHBRIDGE_JOB_DEFINITION"
	EnvRegion             = "BATCHBRIDGE_REGION"
	EnvStorageProvider    = "BATCHBRIDGE_STORAGE_PROVIDER"
	EnvStoragePrefix      = "BATCHBRIDGE_STORAGE_PREFIX"
)

// MaxPayloadBytes is the SubmitJob request payload ceiling. Commands or
// environments that would push the override past it must be externalized by
// the caller; the builder never truncates.
const MaxPayloadBytes = 30 * 1024

// ErrOverrideTooLarge is returned when the built override would exceed
// MaxPayloadBytes.
var ErrOverrideTooLarge = errors.New("override payload exceeds submit request limit")

// Options carries the cross-cutting values every override embeds.
type Options struct {
	Region          string
	StorageProvider string
	StoragePrefix   string

	// CoordinatorContext marks the override as the coordinator's own,
	// setting the no-recursion flag in the container environment.
	CoordinatorContext bool
}

// Override is the immutable per-submission descriptor.
type Override struct {
	JobName       string
	Queue         string
	JobDefinition string
	Command       []string
	Env           map[string]string
	VCPUs         int
	MemoryMiB     int
	GPUs          int
}

// Build produces the override for one task submission. The task's command
// line is passed to the container verbatim; resource requirements are
// emitted only for dimensions the task actually declares, so job-definition
// defaults stay in effect otherwise.
func Build(task model.Task, queue, definition string, opts Options) (Override, error) {
	env := map[string]string{
		EnvJobQueue:      queue,
		EnvJobDefinition: definition,
	}
	if opts.Region != "" {
		env[EnvRegion] = opts.Region
	}
	if opts.StorageProvider != "" {
		env[EnvStorageProvider] = opts.StorageProvider
	}
	if opts.StoragePrefix != "" {
		env[EnvStoragePrefix] = opts.StoragePrefix
	}
	if opts.CoordinatorContext {
		env[EnvCoordinatorContext] = "1"
	}
	for k, v := range task.Env {
		env[k] = v
	}

	ov := Override{
		JobName:       model.NewJobName("snakejob", task.Rule),
		Queue:         queue,
		JobDefinition: definition,
		Command:       []string{"/bin/bash", "-c", task.Command},
		Env:           env,
		VCPUs:         task.CPUs,
		MemoryMiB:     task.MemoryMiB,
		GPUs:          task.GPUs,
	}

	if n := ov.payloadSize(); n > MaxPayloadBytes {
		return Override{}, fmt.Errorf("job %s: %d bytes: %w", task.ID, n, ErrOverrideTooLarge)
	}
	return ov, nil
}

// ContainerOverrides converts the override to the wire representation.
// Environment entries are sorted by name for a stable request payload.
func (o Override) ContainerOverrides() *types.ContainerOverrides {
	co := &types.ContainerOverrides{
		Command: o.Command,
	}

	names := make([]string, 0, len(o.Env))
	for k := range o.Env {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		co.Environment = append(co.Environment, types.KeyValuePair{
			Name:  aws.String(k),
			Value: aws.String(o.Env[k]),
		})
	}

	if o.VCPUs > 0 {
		co.ResourceRequirements = append(co.ResourceRequirements, types.ResourceRequirement{
			Type:  types.ResourceTypeVcpu,
			Value: aws.String(strconv.Itoa(o.VCPUs)),
		})
	}
	if o.MemoryMiB > 0 {
		co.ResourceRequirements = append(co.ResourceRequirements, types.ResourceRequirement{
			Type:  types.ResourceTypeMemory,
			Value: aws.String(strconv.Itoa(o.MemoryMiB)),
		})
	}
	if o.GPUs > 0 {
		co.ResourceRequirements = append(co.ResourceRequirements, types.ResourceRequirement{
			Type:  types.ResourceTypeGpu,
			Value: aws.String(strconv.Itoa(o.GPUs)),
		})
	}

	return co
}

// payloadSize approximates the serialized size of the override's variable
// parts: command strings plus environment names and values.
func (o Override) payloadSize() int {
	n := len(o.JobName)
	for _, c := range o.Command {
		n += len(c)
	}
	for k, v := range o.Env {
		n += len(k) + len(v)
	}
	return n
}
