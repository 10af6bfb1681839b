package migrations

import "embed"

// Schema files are compiled into the cohortd binary, one set per driver,
// so `cohortd migrate` needs no files on disk.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
