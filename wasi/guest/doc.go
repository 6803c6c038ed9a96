// Package guest is the engine module's side of the sandbox ABI.
//
// Built for wasip1, it exports open_db, db_exec and db_query, reports every
// result through the host's deliver import, and reaches its storage through
// the storage_request import. Backend holds the platform-independent part
// and can be exercised on any platform.
package guest
