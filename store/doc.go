// Package store groups the persistence adapters for goGuard.MFAStore and
// goGuard.KeyStore.
//
//   - store/memory keeps everything in process; for tests and single-node dev.
//   - store/redisstore keeps records in Redis and seals MFA secrets at rest.
//   - store/pgstore keeps records in PostgreSQL through pgx.
//
// store/storetest holds the contract suite every adapter runs.
package store
