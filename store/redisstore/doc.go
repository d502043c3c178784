// Package redisstore implements goGuard.MFAStore and goGuard.KeyStore on Redis.
//
// # Key layout
//
//	<prefix>:mfa:<user>          HASH  tenant, secret (sealed), enabled, enrolled_at, disabled_at, last_counter
//	<prefix>:mfa:<user>:codes    SET   backup-code digests
//	<prefix>:key:<id>            HASH  client key record
//	<prefix>:keyhash:<hash>      STRING key id
//	<prefix>:tenant:<tenant>:keys SET  key ids
//
// Every read-check-write transition runs as one Lua script, so concurrent
// callers on different processes observe a single winner.
//
// MFA secrets pass through a secretbox.Sealer bound to the user id.
package redisstore
