// Package session opens authenticated, site-scoped server sessions and
// guarantees that every opened session is signed out when its phase ends.
package session
