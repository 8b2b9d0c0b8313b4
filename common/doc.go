// Package common contains process-wide helpers shared by the launchpad binaries.
package common
