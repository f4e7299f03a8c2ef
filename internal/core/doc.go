// Package core provides the business logic for bulk content imports.
//
// This package is the heart of the importer, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// the CLI, or tests without modification.
//
// # Architecture
//
//   - Templates: immutable import schemas held by a [TemplateRegistry],
//     seeded from YAML with [LoadRegistry].
//   - Parsing: [Parse] turns CSV bytes into typed [RawRow] values, coercing
//     cells by column-name suffix (_array, _json, _boolean, _number).
//   - Validation: [Validate] checks rows against a template and rejects later
//     rows whose slug an earlier row already claimed.
//   - Jobs: [Service] owns the job state machine ([UpdateStatus]) and runs
//     one ordered row loop per job.
//   - Processing: one [RowProcessor] per [TargetType] maps a row to a draft
//     [ContentRecord], resolving slugs with a [SlugResolver].
//   - Ledger: every processed row gets exactly one [GeneratedPageRecord].
//   - Preview: [Service.Preview] is a dry run of parse, validate and slug
//     checks that writes nothing.
//
// # Job Flow
//
//  1. Client calls [Service.ImportFile], or CreateJob, StoreRows and Start
//  2. The loop validates the stored rows as one batch
//  3. Rows are handled in ascending row order; rejected rows and processor
//     failures are recorded as failed, never stopping the loop
//  4. Progress is broadcast to subscribers via [Service.SubscribeProgress]
//  5. The job ends completed, or failed if the content store circuit opens
//
// Pause stops the loop between rows. Resume starts a new loop that skips every
// row already in the ledger.
//
// # Concurrency
//
// Each job has a single worker. Running jobs are bounded by a [JobLimiter];
// per-job state is guarded by that job's own mutex.
package core
