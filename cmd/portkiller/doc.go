// Command portkiller learns human-friendly names for the processes that hold
// development ports.
//
// Sightings are fed to `portkiller learn` as JSON lines. Processes seen often
// enough are classified by the ICA service (or by keyword heuristics when it
// is unavailable) and stored in the knowledge file. The remaining commands
// inspect and maintain that file and the classification history.
package main
