// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"regexp"
)

type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionPatterns is ordered most specific first: the Anthropic key must
// be tried before the generic "sk-" key.
var redactionPatterns = []redactionPattern{
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9]+-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:gemini_key]"},
	// Atlassian API tokens used for the issue tracker and docs host.
	{regexp.MustCompile(`ATATT[A-Za-z0-9_=-]{20,}`), "[REDACTED:atlassian_token]"},
	// Bitbucket app passwords.
	{regexp.MustCompile(`ATBB[A-Za-z0-9_=-]{20,}`), "[REDACTED:bitbucket_token]"},
	{regexp.MustCompile(`(Bearer|Basic)\s+[A-Za-z0-9._~+/=-]{10,}`), "$1 [REDACTED]"},
	{regexp.MustCompile(`(api_?key|token|password)=[^\s&"]{3,}`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(https?)://[^\s/:@]+:[^\s/@]+@`), "$1://[REDACTED]@"},
}

// SafeLogString redacts known credential formats from s.
//
// Description:
//
//	Pattern based: provider API keys, Atlassian tokens, Authorization header
//	values, key/token/password query parameters, and credentials embedded in
//	URLs. Anything that does not match a known format passes through.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}
