// Package models defines the congregation data mirrored by the local store:
// entities of the territory and phone hierarchies, access tokens and their
// associations, the snapshot shapes delivered by the remote service, the
// active identity, access levels and mutations.
package models
