package storage

// Package storage provides the optional vote journal.
//
// Every cast (or failed) vote is appended as an audit record. The journal is
// write-mostly history for operators; it never gates the voting decision.
