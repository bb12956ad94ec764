// Package draft holds the in-memory value of one editing session and keeps
// it reconciled with the server and the local cache.
//
// A Session loads from the Local Draft Cache first and only then from the
// server. Edits never fail: they are merged into the value and an autosave
// timer is re-armed. At most one save is in flight per session. A version
// conflict stops autosaving until the caller picks a Resolution; nothing is
// merged automatically.
package draft
