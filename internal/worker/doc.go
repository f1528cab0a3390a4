// Package worker contains both sides of remote execution.
//
// On the orchestrator side, a Registry maps worker groups to Pools. A Pool
// bounds how many tasks run at once, selects members round-robin, and hands
// back a Future for every submitted Task. HTTPTransport is the client used to
// reach a member.
//
// On the worker side, Server exposes the unit and health endpoints and runs
// each step action through a Catalogue of Handlers.
package worker
