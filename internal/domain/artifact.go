package domain

import "time"

// Artifact is the output of compiling a FunctionSpec: a loadable shared
// library on disk, keyed by the content hash of the exact source bytes
// that produced it. Compilation is memoized on SourceHash — same hash,
// same Artifact.
type Artifact struct {
	FunctionName    string        `json:"function_name"`
	SourceHash      string        `json:"source_hash"` // 128-bit hex content digest
	Path            string        `json:"path"`         // {ScratchDir}/artifacts/{function}_{hash}.so (only the .so suffix is produced)
	CompileDuration time.Duration `json:"compile_duration"`
	CompiledAt      time.Time     `json:"compiled_at"`

	// Interpreted (JavaScript/Python/TypeScript) functions never run the
	// compiler; their "artifact" is just the source bytes themselves,
	// carried here so C4's compile-gate check is uniform across kinds.
	Interpreted bool   `json:"interpreted"`
	Source      string `json:"source,omitempty"`
}
