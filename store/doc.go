// Package store defines the persistence contract for refresh-token
// records, sessions, the access-token revocation list, and the
// append-only admin audit log. The engine never touches durable
// storage except through a [TokenStore].
package store
