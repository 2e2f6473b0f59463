// Package cli provides the orgscope-admin command-line interface.
//
// # Overview
//
// This package implements the `orgscope-admin` tool operators use to prepare
// and inspect an orgscope deployment: apply schema migrations, seed a demo
// hierarchy, scan tree integrity, resolve one-off access decisions, and
// manage the service token file. It talks to the database directly and never
// goes through the HTTP API, so it also covers bootstrap tasks the API cannot
// perform, like creating the very first admin grant.
//
// # Commands
//
// migrate: apply all schema migrations
//
//	orgscope-admin migrate --db-url postgres://localhost/orgscope
//
// seed: populate a fresh database with a demo tree, users and a root admin
//
//	orgscope-admin seed \
//		--db-url postgres://localhost/orgscope \
//		--token-file /etc/orgscope/tokens.yaml
//
// integrity: run the whole-tree integrity scan and print the JSON report;
// exits non-zero when issues are found
//
//	orgscope-admin integrity --db-url postgres://localhost/orgscope
//
// check-access: resolve a single access decision without a running server
//
//	orgscope-admin check-access \
//		--actor 4ee0ba98-0b54-4a86-9d82-2b0a46333a15 \
//		--path acme.eng.platform
//
// token: manage the service token file the API authenticates against
//
//	orgscope-admin token issue --file tokens.yaml --actor <uuid>
//	orgscope-admin token revoke --file tokens.yaml --prefix orgscope_xh2kq3Wd
//	orgscope-admin token list --file tokens.yaml
//
// # Configuration
//
// Database URL:
//
//	export ORGSCOPE_POSTGRES_URL="postgres://localhost/orgscope?sslmode=disable"
//	# Or use --db-url flag
//
// Token file:
//
//	export ORGSCOPE_TOKEN_FILE="/etc/orgscope/tokens.yaml"
//	# Or use --file / --token-file flags
//
// # Related Packages
//
//   - pkg/hierarchy, pkg/grants, pkg/directory: the stores commands write to
//   - pkg/scope: the resolver behind check-access
//   - pkg/auth: token generation and token file editing
package cli
