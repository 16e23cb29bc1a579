package redact

import (
	"net/url"
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

var (
	// Token-ish sequences (API keys, JWT fragments, etc.).
	tokenPattern = regexp.MustCompile(`(?i)([a-z0-9_\-]{20,}|eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+)`)
	// Env keys whose values are always masked regardless of shape.
	secretKeyPattern = regexp.MustCompile(`(?i)(key|token|secret|password|passwd|credential|auth)`)
)

type Redactor struct {
	keys []string
}

// New returns a Redactor. Extra keys are treated as secret names in
// addition to the built-in pattern.
func New(keys ...string) *Redactor {
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}
	return &Redactor{keys: lowered}
}

func (r *Redactor) RedactString(input string) string {
	return tokenPattern.ReplaceAllString(input, mask)
}

func (r *Redactor) RedactMap(input map[string]any) map[string]any {
	output := map[string]any{}
	for k, v := range input {
		if r.secretKey(k) {
			output[k] = mask
			continue
		}
		output[k] = r.RedactValue(v)
	}
	return output
}

func (r *Redactor) RedactValue(input any) any {
	switch v := input.(type) {
	case string:
		return r.RedactString(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		redacted := make([]any, 0, len(v))
		for _, item := range v {
			redacted = append(redacted, r.RedactValue(item))
		}
		return redacted
	default:
		return input
	}
}

// RedactEnv masks the values of secret-looking keys and token-shaped values.
func (r *Redactor) RedactEnv(envs map[string]string) map[string]string {
	if envs == nil {
		return nil
	}
	out := make(map[string]string, len(envs))
	for k, v := range envs {
		if r.secretKey(k) {
			out[k] = mask
			continue
		}
		out[k] = r.RedactString(v)
	}
	return out
}

func (r *Redactor) secretKey(key string) bool {
	if secretKeyPattern.MatchString(key) {
		return true
	}
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if k == lower {
			return true
		}
	}
	return false
}

// URL strips userinfo and masks query values. Unparseable input is masked whole.
func URL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return mask
	}
	if u.User != nil {
		u.User = url.User(mask)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, mask)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
