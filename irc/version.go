// Copyright (c) 2020 Shivaram Lingamneni
// Released under the MIT license

package irc

import "fmt"

const (
	// SemVer is the semantic version of relayd.
	SemVer = "0.4.0-unreleased"
)

var (
	// Ver is the full version of relayd, used in responses to clients.
	Ver = fmt.Sprintf("relayd-%s", SemVer)
	// Commit is the full git hash, if available
	Commit string
)

// initialize version strings (these are set in package main via linker flags)
func SetVersionString(version, commit string) {
	Commit = commit
	if version != "" {
		Ver = fmt.Sprintf("relayd-%s", version)
	} else if len(Commit) == 40 {
		Ver = fmt.Sprintf("relayd-%s-%s", SemVer, Commit[:16])
	}
}
