// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// assist is the project assistant: an HTTP service and a terminal client
// answering questions about a Jira project, its Bitbucket repositories and
// its Confluence documentation.
//
// Usage:
//
//	assist serve [--config assist.yaml]
//	assist ask "what is overdue?"
//	assist chat
//	assist classify "who is overloaded?"
//	assist jql --project PROJ "show high priority bugs"
//	assist sanitize --project PROJ 'project = PROJ LIMIT 5'
//	assist cache dump [--path /var/lib/assist/docs]
//
// Configuration comes from the optional YAML file and the environment
// (JIRA_*, BITBUCKET_*, CONFLUENCE_*, ASSIST_*).
package main

import (
	"os"

	"github.com/awnumar/memguard"
)

func main() {
	err := newRootCmd().Execute()
	// Wipe sealed credentials before exiting.
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}
