// Package apperr defines the typed error taxonomy shared by the hierarchy,
// grant, scope and directory packages.
//
// Every error carries a stable machine-readable kind plus a human message.
// Transport layers map kinds to status codes; stores and services construct
// errors with the New* helpers and callers branch with the Is* helpers or
// errors.As.
package apperr
