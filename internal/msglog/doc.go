// Package msglog holds the relay's bounded message log.
//
// Every message lives in two B-tree indexes: one ordered by sequence number,
// which is always append order, and one ordered by timestamp with ties kept
// in arrival order. When the log reaches capacity the message with the oldest
// timestamp is removed from both indexes before the new one goes in.
package msglog
