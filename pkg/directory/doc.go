// Package directory stores the people hanging off the org tree and answers
// scope-filtered directory queries.
//
// QueryAccessibleUsers is the one read path that combines everything: it
// intersects arbitrary filters with the caller's access scope, never widens
// past it, and annotates every row with how it became visible (a direct
// grant at the user's node, inheritance from an ancestor grant, or
// self-access). A caller with no grants sees exactly their own row.
package directory
