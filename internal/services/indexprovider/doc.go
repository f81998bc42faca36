// Package indexprovider wraps the external retrieval index service behind a
// narrow create/attach contract. The pipeline treats every error from this
// package as recoverable: a run that cannot get an index proceeds without
// retrieval augmentation.
package indexprovider
