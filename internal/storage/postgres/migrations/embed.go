package migrations

import "embed"

// FS contains embedded Postgres migrations for arena storage. The same files
// provision a Supabase project, including the RPC functions the supabase
// backend calls for its transactional writes.
//
//go:embed *.sql
var FS embed.FS
