// Package services implements the server's domain operations: building
// offline-work bundles and applying pushed mutations. The server is
// authoritative; it validates every transition again with the same workflow
// rules the devices use.
package services

import (
	"github.com/avolkov/seedtrack/internal/dbx"
	"github.com/avolkov/seedtrack/internal/server/repositories/applicators"
	"github.com/avolkov/seedtrack/internal/server/repositories/appliedmutations"
	"github.com/avolkov/seedtrack/internal/server/repositories/auditlog"
	"github.com/avolkov/seedtrack/internal/server/repositories/treatments"
)

// RepoSet bundles the repositories a service operation works with. Services
// construct one per transaction so every repository shares the same tx.
type RepoSet struct {
	Treatments  treatments.Repository
	Applicators applicators.Repository
	Audit       auditlog.Repository
	Applied     appliedmutations.Repository
}

// PostgresRepoSet builds the production RepoSet over db, which may be a plain
// connection or an open transaction.
func PostgresRepoSet(db dbx.DBTX) RepoSet {
	return RepoSet{
		Treatments:  treatments.NewPostgresRepository(db),
		Applicators: applicators.NewPostgresRepository(db),
		Audit:       auditlog.NewPostgresRepository(db),
		Applied:     appliedmutations.NewPostgresRepository(db),
	}
}
