// Package tenant resolves a client identifier to its database target.
//
// Resolution is cache-aside: ConfigCache checks an expiring in-memory
// cache first and falls back to the durable configuration source,
// populating the cache with a TTL on the way out. A tenant without an
// active configuration row is ErrConfigNotFound, never a silent
// fallback to a default tenant.
//
// ConnectionRegistry layers live *sql.DB handles on top: one open
// connection per client id, created on first use from the resolved
// config, reused afterwards, and released via Close/CloseAll. It is
// the only process-wide mutable structure shared across workers, and
// all access goes through its locked get/close contract.
package tenant
