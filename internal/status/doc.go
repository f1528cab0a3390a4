// Package status models work item outcomes: the ordered severity codes and
// the ItemStatus tree that step results are folded into.
package status
