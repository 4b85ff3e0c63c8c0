// Package deduplication finds records that several organizations hold for the
// same real-world entity and keeps one matching candidate per entity.
//
// # Overview
//
// A scan reads every tenant organization's contacts, companies and
// publications, groups them by a normalized match key and upserts one
// MatchingCandidate per group that passes the thresholds. The library
// organization and contacts without a media profile are left out.
//
//   - contacts are keyed by primary email, else by normalized name
//   - companies by name without legal form
//   - publications by website host, else by normalized title
//
// Candidates are written with an optimistic version check. A scan that loses
// the check reloads the candidate and reapplies its variants; operator
// reviews (Reviewer) use the same check, so a scan never overwrites a review
// and never moves a reviewed candidate back to pending.
//
// # Scans
//
// Only one scan runs at a time. The Scanner takes a lock.Locker lock before
// creating its ScanJob and returns ErrScanInProgress when the lock is held.
// Every job that was created is finalized, also when the scan fails, panics
// or its context is cancelled. Finalizing is retried until
// Config.FinalizeTimeout; a job that still cannot be written stays running
// and the next scan marks it failed once it is older than the lock TTL:
//
//	scanner, err := deduplication.NewScanner(store, merger, settingsSvc, locker,
//	    emitter, logger, deduplication.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	job, err := scanner.Scan(ctx, deduplication.Options{DevelopmentMode: true})
//	var scanErr *deduplication.ScanError
//	switch {
//	case errors.Is(err, deduplication.ErrScanInProgress):
//	    // someone else is scanning
//	case errors.As(err, &scanErr):
//	    // job.Status == types.JobFailed
//	}
//
// # Thresholds
//
// Groups spanning fewer than MinOrganizations organizations or scoring below
// MinScore are skipped. Development mode always uses DevMinScore and
// DevMinOrganizations so fixture datasets produce candidates; explicit
// overrides apply only outside development mode.
//
// # Library
//
// An Importer writes a candidate to the shared library, owned by a
// super_admin organization, and marks it imported. When a later scan changes
// an imported candidate, the Resolver set with Scanner.SetReconciler folds
// the new variants into the library record: empty fields are filled, clear
// majorities overwrite stale automatic values, and everything else opens a
// FieldConflict for review.
package deduplication
