// Package preflight provides readiness checks for the paths and external
// services portkiller depends on. The CLI "portkiller doctor" command runs
// them and renders the results; learn uses CheckSystemDeps to warn about
// missing probe commands before it starts.
package preflight
