// Package deps checks for the external commands portkiller relies on.
package deps
