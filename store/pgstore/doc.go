// Package pgstore persists MFA enrollments and client keys in PostgreSQL.
//
// The schema lives in schema.sql and is applied by [Store.Migrate]. Backup
// codes are rows of their own so a consumption is a single DELETE. Tests
// run against the database named by GOGUARD_TEST_POSTGRES_DSN and are skipped
// when it is unset.
package pgstore
