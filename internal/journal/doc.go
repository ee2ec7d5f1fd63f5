// Package journal keeps a SQLite history of classification attempts so
// `portkiller history` can show what was learned, when, and from which
// source. Each learn run tags its rows with a session id.
package journal
