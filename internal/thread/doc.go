// Package thread finds the open work item a message belongs to from its
// reply id and conversation id.
package thread
