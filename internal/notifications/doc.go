// Package notifications announces finished runs through ntfy.
//
// The topic comes from the [notifications] section of config.toml and the
// service degrades to a no-op when no topic is set. Runs are only announced
// when their status is at least as severe as the configured min_status.
package notifications
