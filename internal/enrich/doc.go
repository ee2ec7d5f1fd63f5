// Package enrich gathers extra detail about a listening process before it is
// sent for classification: the full command line and executable (ps), the
// working directory (lsof), Spotlight metadata for macOS app bundles (mdls)
// and compose/image labels for Docker containers (docker inspect).
//
// Every probe is best effort. A missing tool or failing command only leaves
// the corresponding fields empty.
package enrich
