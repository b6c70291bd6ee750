// Package registry discovers installed mini-apps and reads their manifests.
//
// Each app lives in its own directory under the apps root and carries a
// manifest.json, manifest.yaml or manifest.toml naming its id, type, entry
// page and navigation allowlist.
package registry
