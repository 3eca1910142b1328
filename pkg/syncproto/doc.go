// Package syncproto implements peervault's binary sync wire protocol: a
// length-framed, big-endian message set exchanged between two peers'
// syncsession state machines over a reliable byte stream.
//
// Every frame is `| u8 type | u64 timestamp (ms since epoch) | payload |`.
// Byte arrays inside a payload are length-prefixed, u32 for anything that
// can carry bulk content (snapshots, blob data, update batches) and u16
// for short strings and counts, matching the table in the design spec's
// sync wire protocol section.
package syncproto
