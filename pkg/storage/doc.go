// Package storage defines the EAMS persistence contracts and directory records.
//
// # Interfaces
//
// Store combines UserStore (users and their company access grants) with DirectoryStore
// (companies, projects, applications). The postgres subpackage implements it on
// PostgreSQL through lib/pq.
//
// # Caching
//
// CachedUserStore wraps a Store and serves GetUser from two tiers:
//
//	L1: in-process expirable LRU (hashicorp/golang-lru)
//	L2: optional shared cache such as postgres.RedisUserCache
//
// Every user or grant write invalidates both tiers before returning.
//
// # Errors
//
// Implementations wrap ErrNotFound and ErrConflict so callers can use errors.Is.
package storage
