// Package cloudsync is the optional object-storage sync layer from spec
// §4.11/§6: it mirrors a vault's encrypted operation log to a bucket under
// a flat key prefix so two devices that never connect directly can still
// converge, by each independently pushing to and pulling from the same
// bucket on a schedule.
//
// Layout under <prefix>/<vault>/: manifest.json, refs/HEAD,
// commits/<hash>.json, deltas/<ts>-<hash>.enc. Requests are signed with a
// hand-rolled canonical-request scheme styled on AWS SigV4 but distinct
// from it (see signer.go) — this is NOT real SigV4 and will not
// authenticate against an actual AWS endpoint.
package cloudsync
