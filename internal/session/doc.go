// Package session keeps remote client sessions alive for as long as they
// are wanted.
//
// # Overview
//
// Each session is an (id, key) identity bound to a remote endpoint. Once
// created it is connected, driven by a behavior scheduler, and reconnected
// after every drop until it is explicitly deleted.
//
// # Manager
//
// The Manager is the only entry point callers use:
//
//	reg := session.NewRegistry(logger)
//	mgr := session.NewManager(reg, dialer, session.WithLogger(logger))
//
// Key operations:
//
//   - Create(ctx, params): start a session, return its identity once live
//   - Delete(ctx, id, supplied, stored): check the key, then terminate
//   - IsLive(id): whether the session is connected right now
//   - Snapshot(ids): liveness for a batch of ids
//   - Close(ctx): terminate everything on shutdown
//
// # Supervisor
//
// Every session has one Supervisor running a single event loop. Dial
// results, connection callbacks, retry timers and termination requests are
// all posted to its mailbox and handled in order:
//
//	Connecting -> Live -> Disconnected -> Connecting -> ... -> Terminated
//
// A failure before the first Live rejects the create request. A drop after
// that waits ReconnectDelay and dials again with the same identity.
//
// Events carry the generation of the dial that produced them, so a late
// result or drop notice from an older connection is ignored, and a
// connection that completes after termination is closed immediately.
//
// # Registry
//
// The Registry is the liveness view: an entry exists exactly while the
// session's connection is up. Supervisors write it; queries read it.
package session
