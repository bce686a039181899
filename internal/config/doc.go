// Package config resolves the flat option set once at startup.
//
// Resolution order, later wins:
//
//  1. DefaultOptions
//  2. A YAML (.yaml, .yml) or TOML (.toml) file, chosen by extension
//  3. CHAINSHADOW_<OPTION> environment variables
//
// The result is validated once and projected into gating.Config,
// pipeline.RetryPolicy and a redactor. Nothing reads the environment after
// Load returns.
package config
