package domain

import "time"

// ResourceKind is one resource dimension a ResourceQuota can bound.
type ResourceKind string

const (
	ResourceMemory          ResourceKind = "memory_mb"
	ResourceCPUPercent      ResourceKind = "cpu_percent"
	ResourceFileDescriptors ResourceKind = "file_descriptors"
	ResourceThreads         ResourceKind = "threads"
)

// ResourceLimit is the soft/hard bound pair for one resource kind. A soft
// breach warns; a hard breach terminates the monitored process.
type ResourceLimit struct {
	Soft           float64       `json:"soft_limit"`
	Hard           float64       `json:"hard_limit"`
	SampleInterval time.Duration `json:"sample_interval"`
}

// ResourceQuota is a named set of per-resource limits applied to a
// sandboxed process by the resource monitor (C3).
type ResourceQuota struct {
	Name   string                        `json:"name"`
	Limits map[ResourceKind]ResourceLimit `json:"limits"`
}

// DefaultQuota is a conservative quota used when a FunctionSpec does not
// name one explicitly.
func DefaultQuota() ResourceQuota {
	return ResourceQuota{
		Name: "default",
		Limits: map[ResourceKind]ResourceLimit{
			ResourceMemory:     {Soft: 128, Hard: 256, SampleInterval: 200 * time.Millisecond},
			ResourceCPUPercent: {Soft: 80, Hard: 100, SampleInterval: 200 * time.Millisecond},
		},
	}
}
