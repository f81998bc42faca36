// Package stages invokes the four content-generation stage services over a
// uniform JSON-over-HTTP contract. Transient upstream failures are retried
// according to an injectable policy; any error that survives the policy is
// fatal to the calling run.
package stages
