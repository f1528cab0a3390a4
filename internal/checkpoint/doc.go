// Package checkpoint persists DistributorIndex records so a large step can
// resume after the process stops.
//
// A record is addressed by the container namespace and a checkpoint key (the
// unique step id). The SQL store works against SQLite (the default, one file
// under the state directory) or PostgreSQL when several orchestrators share
// checkpoints. MemoryStore keeps records for the life of the process only.
package checkpoint
