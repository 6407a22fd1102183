// Package compiler implements the FluxFaaS compile-and-cache component
// (C1): turning a domain.FunctionSpec's source into a loadable
// domain.Artifact, memoized on content hash.
package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/metrics"
	"github.com/fluxfaas/fluxfaas/internal/pkg/crypto"
	"github.com/fluxfaas/fluxfaas/internal/pkg/fsutil"
)

// Config controls scratch-directory placement, the cargo toolchain and
// eviction policy for the compiled-artifact cache.
type Config struct {
	ScratchDir      string
	CargoTargetDir  string
	CompileTimeout  time.Duration
	MaxCacheEntries int
	RedisAddr       string
}

// DefaultConfig returns the settings a standalone fluxfaasd process uses
// when none are supplied.
func DefaultConfig() Config {
	return Config{
		ScratchDir:      filepath.Join(os.TempDir(), "fluxfaas-compiler"),
		CompileTimeout:  30 * time.Second,
		MaxCacheEntries: 256,
	}
}

// cacheEntry is one memoized compile result plus its LRU recency marker.
type cacheEntry struct {
	artifact *domain.Artifact
	touched  time.Time
}

// Compiler turns function source into a domain.Artifact. One Compiler is
// shared by every pool in a process; its cache is keyed on the source
// hash alone, so functions with identical source share one entry, whose
// Artifact carries the FunctionName of whichever function stored it.
type Compiler struct {
	cfg   Config
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*cacheEntry // hash -> entry

	secondary secondaryCache // nil unless cfg.RedisAddr is set
}

// secondaryCache is the optional cross-process existence index.
type secondaryCache interface {
	Lookup(ctx context.Context, hash string) (path string, ok bool)
	Store(ctx context.Context, hash, path string) error
}

// New creates a Compiler. secondary may be nil; pass a Redis-backed
// implementation to share compiled artifacts across processes on the
// same node.
func New(cfg Config, secondary secondaryCache) *Compiler {
	if cfg.ScratchDir == "" {
		cfg = DefaultConfig()
	}
	os.MkdirAll(cfg.ScratchDir, 0o755)
	return &Compiler{
		cfg:       cfg,
		cache:     make(map[string]*cacheEntry),
		secondary: secondary,
	}
}

// CheckSupport reports whether the cargo toolchain required to compile
// Rust sources is available on PATH.
func (c *Compiler) CheckSupport() error {
	if _, err := exec.LookPath("cargo"); err != nil {
		return domain.NewError(domain.ErrToolchainMissing, "cargo not found on PATH")
	}
	return nil
}

// Compile returns the Artifact for spec, compiling it if the content
// hash has not been seen before. Concurrent calls for the same hash
// coalesce onto one compile.
func (c *Compiler) Compile(ctx context.Context, spec *domain.FunctionSpec) (*domain.Artifact, error) {
	hash := crypto.HashString(spec.Source)

	if !domain.NeedsCompilation(spec.ScriptKind) {
		return c.memoInterpreted(spec, hash), nil
	}

	if a := c.lookup(hash); a != nil {
		metrics.Global().RecordCompileCacheHit()
		return a, nil
	}

	result, err, _ := c.group.Do(hash, func() (interface{}, error) {
		if a := c.lookup(hash); a != nil {
			metrics.Global().RecordCompileCacheHit()
			return a, nil
		}
		if c.secondary != nil {
			if path, ok := c.secondary.Lookup(ctx, hash); ok {
				if _, statErr := os.Stat(path); statErr == nil {
					a := &domain.Artifact{
						FunctionName: spec.Name,
						SourceHash:   hash,
						Path:         path,
						CompiledAt:   time.Now(),
					}
					c.store(hash, a)
					metrics.Global().RecordCompileCacheHit()
					return a, nil
				}
			}
		}
		return c.compileRust(ctx, spec, hash)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Artifact), nil
}

func (c *Compiler) memoInterpreted(spec *domain.FunctionSpec, hash string) *domain.Artifact {
	a := &domain.Artifact{
		FunctionName: spec.Name,
		SourceHash:   hash,
		Interpreted:  true,
		Source:       spec.Source,
		CompiledAt:   time.Now(),
	}
	c.store(hash, a)
	return a
}

func (c *Compiler) lookup(hash string) *domain.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[hash]
	if !ok {
		return nil
	}
	e.touched = time.Now()
	return e.artifact
}

func (c *Compiler) store(hash string, a *domain.Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[hash] = &cacheEntry{artifact: a, touched: time.Now()}
	c.evictLocked()
}

// evictLocked drops the least-recently-touched entries once the cache
// exceeds MaxCacheEntries. Caller holds c.mu.
func (c *Compiler) evictLocked() {
	limit := c.cfg.MaxCacheEntries
	if limit <= 0 || len(c.cache) <= limit {
		return
	}
	oldestHash := ""
	var oldest time.Time
	for len(c.cache) > limit {
		oldestHash = ""
		for h, e := range c.cache {
			if oldestHash == "" || e.touched.Before(oldest) {
				oldestHash, oldest = h, e.touched
			}
		}
		if oldestHash == "" {
			return
		}
		delete(c.cache, oldestHash)
	}
}

// compileRust stages a cargo cdylib project for spec.Source and builds
// it in release mode under cfg.CompileTimeout.
func (c *Compiler) compileRust(ctx context.Context, spec *domain.FunctionSpec, hash string) (*domain.Artifact, error) {
	if err := c.CheckSupport(); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(c.cfg.ScratchDir, fmt.Sprintf("compile-%s-", spec.Name))
	if err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err)
	}
	defer os.RemoveAll(workDir)

	if err := stageCargoProject(workDir, spec.Source); err != nil {
		return nil, domain.Wrap(domain.ErrCompileFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CompileTimeout)
	defer cancel()

	start := time.Now()
	logging.Op().Info("compiling function", "function", spec.Name, "hash", hash)

	cmd := exec.CommandContext(ctx, "cargo", "build", "--release")
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "CARGO_TARGET_DIR="+c.targetDir(workDir))
	out, err := cmd.CombinedOutput()
	if err != nil {
		logging.Op().Error("compilation failed", "function", spec.Name, "output", string(out))
		return nil, domain.NewError(domain.ErrCompileFailed, string(out)).WithCause(err)
	}

	libPath := filepath.Join(c.targetDir(workDir), "release", cdylibName)
	finalPath := filepath.Join(c.cfg.ScratchDir, "artifacts", spec.Name+"_"+hash+cdylibSuffix)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err)
	}
	data, err := os.ReadFile(libPath)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCompileFailed, err)
	}
	if err := os.WriteFile(finalPath, data, 0o755); err != nil {
		return nil, domain.Wrap(domain.ErrInternal, err)
	}

	duration := time.Since(start)
	logging.Op().Info("compilation succeeded", "function", spec.Name, "duration", duration, "bytes", len(data))

	a := &domain.Artifact{
		FunctionName:    spec.Name,
		SourceHash:      hash,
		Path:            finalPath,
		CompileDuration: duration,
		CompiledAt:      time.Now(),
	}
	c.store(hash, a)
	if c.secondary != nil {
		c.secondary.Store(ctx, hash, finalPath)
	}
	return a, nil
}

func (c *Compiler) targetDir(workDir string) string {
	if c.cfg.CargoTargetDir != "" {
		return c.cfg.CargoTargetDir
	}
	return filepath.Join(workDir, "target")
}

// stageCargoProject writes a fixed cdylib manifest plus the ABI shim
// around the user's handler source.
func stageCargoProject(workDir, source string) error {
	files := map[string][]byte{
		"Cargo.toml":  []byte(cargoManifest),
		"src/lib.rs":  []byte(rustABIShim),
		"src/user.rs": []byte(source),
	}
	return fsutil.WriteTree(workDir, files)
}

const cargoManifest = `[package]
name = "flux_handler"
version = "0.1.0"
edition = "2021"

[lib]
crate-type = ["cdylib"]

[dependencies]
serde = { version = "1", features = ["derive"] }
serde_json = "1"
chrono = { version = "0.4", features = ["serde"] }

[profile.release]
lto = true
strip = true
`

// rustABIShim exposes flux_execute/flux_free_string over the user's
// handler(event: serde_json::Value) -> serde_json::Value function so C2
// can dlopen the cdylib and call a fixed two-symbol ABI.
const rustABIShim = `mod user;

use std::ffi::{CStr, CString};
use std::os::raw::c_char;

#[no_mangle]
pub extern "C" fn flux_execute(input: *const c_char) -> *mut c_char {
    let input_str = unsafe { CStr::from_ptr(input) }.to_string_lossy().into_owned();
    let event: serde_json::Value = serde_json::from_str(&input_str)
        .unwrap_or(serde_json::Value::Null);
    let result = user::handler(event);
    let out = serde_json::to_string(&result).unwrap_or_else(|_| "null".to_string());
    CString::new(out).unwrap().into_raw()
}

#[no_mangle]
pub extern "C" fn flux_free_string(s: *mut c_char) {
    if s.is_null() {
        return;
    }
    unsafe {
        drop(CString::from_raw(s));
    }
}
`

// Linux shared-object naming; the sandbox executor only ever runs on
// Linux hosts.
const cdylibName = "libflux_handler.so"
const cdylibSuffix = ".so"
