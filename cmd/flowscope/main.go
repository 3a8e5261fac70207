// Package main provides the flowscope CLI.
//
// The CLI supports:
//   - analyze: Analyze a workflow and its sub-workflows
//   - validate: Parse definitions and report structural warnings
//   - graph: Print a workflow's element graph with loop membership
//   - import: Copy definition files into the SQL source table
//   - status: Show recorded analysis runs
//   - doctor: Run health checks on the flow source and run store
//   - serve: Serve analyses over HTTP
//
// Usage:
//
//	flowscope [flags] <command>
//
// Commands that record or read runs (analyze --store, status, serve) need a
// store connection from --db or the store section of flowscope.yaml.
package main

func main() {
	Execute()
}
