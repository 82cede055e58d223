// Package ipcguard checks that the functions an Electron-style API surface
// exports can cross a structured-clone boundary, and expands the renderer's
// API index into the stub object a preload bridge enumerates.
//
// # Pipeline
//
// ipcguard operates in two independent phases:
//
//  1. Check: every TypeScript module on the API surface is loaded into a
//     lazily resolved type graph. The parameters and return value of each
//     exported function are classified as serializable or not, and every
//     offending position becomes a diagnostic. Results are stored in SQLite
//     together with the content hashes of the modules the check read.
//
//  2. Expand: the API index module's default export, an object whose
//     shorthand properties name namespace imports, is rewritten so each
//     property becomes an object literal of empty function stubs, one per
//     exported function of the imported module.
//
// # Usage
//
//	cfg, err := config.LoadOrDefault("", ".")
//	if err != nil { ... }
//	e, err := ipcguard.New(cfg.Database, cfg)
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.CheckDirectory(ctx, cfg.Dir)
//	for _, d := range report.Diagnostics {
//		fmt.Println(d)
//	}
//
//	code, applied, err := e.Expand(ctx, "/abs/src/main/api/index.ts", src)
//
// # Incremental checking
//
// [Engine.CheckFiles] skips a file when its content hash, the configuration
// hash, and the hash of every module it depended on are all unchanged; its
// stored diagnostics are replayed into the report instead. Files whose
// dependencies are named in the call are re-checked as well.
//
// # Surfaces
//
// The API surface defaults to every path containing src/main/api/. A Risor
// script can replace it; see the internal/runtime package for the globals
// exposed to surface scripts.
package ipcguard
