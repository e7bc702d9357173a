// Package privacylog wraps slog handlers so secrets never reach log output
// and client identifiers are replaced by per-boot fingerprints.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var bootNonce = randomNonce()

// Policy decides which attribute keys are redacted and which are
// fingerprinted. Redact entries match as substrings of the lowercased key;
// Fingerprint entries match exactly.
type Policy struct {
	Redact      []string
	Fingerprint map[string]struct{}
}

var DefaultPolicy = Policy{
	Redact: []string{
		"private_key", "privkey", "mnemonic", "seed", "passphrase",
		"password", "secret", "token", "authorization",
	},
	Fingerprint: map[string]struct{}{
		"client_key":  {},
		"remote_addr": {},
		"client_ip":   {},
	},
}

type SanitizingHandler struct {
	next   slog.Handler
	policy Policy
}

func WrapHandler(next slog.Handler) slog.Handler {
	return WrapHandlerWithPolicy(next, DefaultPolicy)
}

func WrapHandlerWithPolicy(next slog.Handler, policy Policy) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next, policy: policy}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(h.policy.SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SanitizingHandler{next: h.next.WithAttrs(h.policy.sanitizeAttrs(attrs)), policy: h.policy}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name), policy: h.policy}
}

// SanitizeAttr applies the policy to attr, descending into groups. LogValuer
// values are resolved first so their fields are checked too.
func (p Policy) SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lowerKey := strings.ToLower(key)
	if p.redacts(lowerKey) {
		return slog.String(key, redactedValue)
	}
	if _, ok := p.Fingerprint[lowerKey]; ok {
		return slog.String(key+"_fp", FingerprintID(valueToString(attr.Value.Resolve())))
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		return slog.Attr{Key: key, Value: slog.GroupValue(p.sanitizeAttrs(value.Group())...)}
	}
	return slog.Attr{Key: key, Value: value}
}

// SanitizeArgs applies the default policy to alternating key/value args.
func SanitizeArgs(args ...any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			out = append(out, args[i])
			continue
		}
		attr := DefaultPolicy.SanitizeAttr(slog.Any(key, args[i+1]))
		i++
		out = append(out, attr)
	}
	return out
}

// FingerprintID is a stable per-process pseudonym for value.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func (p Policy) sanitizeAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, p.SanitizeAttr(attr))
	}
	return out
}

func (p Policy) redacts(key string) bool {
	for _, part := range p.Redact {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.000000000Z")
	default:
		return fmt.Sprint(v.Any())
	}
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
