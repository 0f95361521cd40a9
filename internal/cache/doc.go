// Package cache is the persistent, timestamped store of server-derived data the
// application reads while offline.
//
// Every logical key is stored durably as "cache:<key>" holding a JSON envelope
//
//	{"payload": <any JSON>, "cachedAt": <RFC3339>, "schemaVersion": "<v>"}
//
// Entries are replaced wholesale on Save and are never partially updated. Get
// treats an entry older than the caller's maxAge, or written under a different
// schema version, as absent and purges it.
//
// The cache is advisory. Storage failures are logged and swallowed so a broken
// cache degrades into cache misses instead of errors in the caller.
package cache
