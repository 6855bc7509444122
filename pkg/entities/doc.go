// Package entities provides ownership lookups for the domain objects that
// ownership-scoped permissions can target. The authorization layer only
// needs to know who owns an entity, so the interface is deliberately
// narrow: fetch by type and id, ask if a user owns it.
package entities
