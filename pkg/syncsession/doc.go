// Package syncsession drives one peer's sync session through the state
// machine in the design spec: Opening -> Handshaking -> Catchup ->
// BlobCatchup -> Live -> Closing. A Session owns a pair of Streams (main
// control traffic plus a second stream dedicated to blob bytes, so a
// large blob transfer never head-of-line-blocks a document update) and
// drives them with pkg/syncproto frames against a pkg/document.Manager
// and pkg/blobstore.Store.
package syncsession
