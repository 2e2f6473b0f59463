// Package auth provides service token generation and token file management.
//
// # Overview
//
// The API server authenticates requests with bearer service tokens mapped to
// actor ids in a YAML file. This package owns that file's lifecycle: it
// generates cryptographically random tokens, and it edits the file with an
// atomic replace so the server's file watcher reloads a complete document.
//
// # Token Format
//
// Tokens are 32 random bytes, base64url encoded with a fixed prefix:
//
//	orgscope_[base64url(32 random bytes)]
//
// The plaintext is shown once at issuance. Listings and logs only ever see
// the display prefix (orgscope_ plus the first 8 encoded characters) or the
// SHA256 hash:
//
//	generator := auth.NewTokenGenerator()
//	token, hash, prefix, err := generator.GenerateToken()
//	// token:  orgscope_xh2k... (hand to the operator, display once)
//	// hash:   sha256 hex, safe to log
//	// prefix: orgscope_xh2kq3Wd, safe to list
//
// # Token File
//
// TokenFile loads, edits, and saves the YAML file the server reads:
//
//	file, err := auth.LoadTokenFile("/etc/orgscope/tokens.yaml")
//	token, err := file.Issue(actorID)
//	removed := file.Revoke("orgscope_xh2kq3Wd")
//	err = file.Save() // temp file + rename, mode 0600
//
// # Related Packages
//
//   - pkg/middleware: resolves these tokens to actor ids on each request
//   - cmd/orgscope-admin: the CLI surface for issue, revoke, and list
package auth
