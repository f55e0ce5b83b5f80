// Package classify scores message text and sender identities against a rule
// set and suggests the project (parent) and package (item) a new work item
// belongs to.
//
// Scoring runs in two phases. PARENT rules are scored first and every keyword
// they match is claimed; ITEM rules then only earn keyword credit for
// unclaimed keywords, and their score is also credited to the declared
// parent. A tie for the top score at either level yields an ambiguous result
// listing the tied candidates.
package classify
