// Package ica is the client for the ICA classification service.
//
// Analyze renders an AnalysisContext into a prompt, posts it to
// {ica_url}/api/v1/chat/stateless with the X-ICA-Service-Key and
// X-ICA-Service-Name headers, and decodes the model's reply. Replies are free
// text, so ExtractJSON locates the JSON object by brace matching (string and
// escape aware), falling back to a ```json fence or the first '{' in the
// text. Decoding is strict: any missing field or unknown category is an
// error, and callers fall back to the heuristic classifier.
//
// Requests time out after 30 seconds. Retries on 408, 429 and 5xx are
// available through WithRetryMaxAttempts but off by default.
package ica
