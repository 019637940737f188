// Package tools provides reusable runtime helpers shared by the
// module's command-line utilities: process execution abstractions that
// can be swapped for a fake in tests.
package tools
