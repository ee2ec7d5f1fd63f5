// Package services holds shared pieces for the external integrations under
// it, chiefly the error markers and Wrap helper that let callers decide
// between retrying, falling back and reporting without inspecting messages.
package services
