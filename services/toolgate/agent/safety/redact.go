// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"regexp"
)

// secretPattern pairs a credential shape with the label that replaces it.
type secretPattern struct {
	re    *regexp.Regexp
	label string
}

// secretPatterns is applied in order. Prefixed key formats come before the
// generic flag and assignment forms so a key is labelled by its issuer.
var secretPatterns = []secretPattern{
	{regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:openai_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:gemini_key]"},
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{30,}`), "[REDACTED:github_token]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED:aws_key]"},
	{regexp.MustCompile(`(?i)(authorization:\s*)?bearer\s+[A-Za-z0-9._~+/-]{10,}=*`), "[REDACTED:bearer_token]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|token|secret|api_key|apikey)=("[^"]*"|'[^']*'|[^\s&'"]+)`), "${1}=[REDACTED]"},
	{regexp.MustCompile(`(?i)(--password|--token)(=|\s+)\S+`), "${1}${2}[REDACTED]"},
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^\s/:@]+:[^\s/@]+@`), "${1}[REDACTED]@"},
}

// Redact replaces credential-shaped substrings of s with labelled
// placeholders. It is pattern based: secrets in unknown formats pass
// through unchanged.
//
// Thread Safety: Safe for concurrent use.
func Redact(s string) string {
	if s == "" {
		return s
	}
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.label)
	}
	return s
}
