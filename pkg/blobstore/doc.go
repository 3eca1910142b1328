// Package blobstore implements peervault's content-addressed blob store:
// binary content is hashed with SHA-256, stored once under blob:<hexhash>,
// and reference-counted through blob-meta:<hexhash> so the garbage
// collector can reclaim content no file in the tree points to anymore.
package blobstore
