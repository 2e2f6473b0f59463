// Package hierarchy implements the materialized-path organization tree.
//
// Each node carries a short code, a dot-joined path of ancestor codes and a
// level equal to its ancestor count. Ancestor/descendant reasoning is string
// prefix arithmetic on the path column, so subtree reads are range scans and
// never recursive traversals. Mutations that touch more than one row (subtree
// move, soft delete, restore) run in a single transaction so readers observe
// either the whole pre-state or the whole post-state.
package hierarchy
