// Package dialogue renders the seller's vernacular messages. The engine
// decides the price and tactic; this layer only wraps them in words. The
// LLM is an effect behind the Generator interface — a template-only
// implementation satisfies the same contract.
package dialogue

import (
	"regexp"
	"strings"
)

const maxBuyerMessageLen = 512

// Known prompt-injection shapes: role reversal, instruction override,
// delimiter spoofing.
var injectionPatterns = regexp.MustCompile(
	`(?i)(ignore\s+(all\s+)?previous|system\s*:|you\s+are\s+now|forget\s+(your|all)|` +
		`disregard\s+(above|instructions)|reveal\s+(the\s+)?(floor|cost|minimum)|` +
		"```|</?(system|assistant|instructions?)>)",
)

var controlChars = regexp.MustCompile(`[\x00-\x09\x0b-\x1f\x7f]`)

// SanitizeBuyerMessage truncates, strips control characters, and redacts
// injection attempts before the buyer text reaches a prompt. The second
// return reports whether anything was redacted.
func SanitizeBuyerMessage(msg string) (string, bool) {
	if r := []rune(msg); len(r) > maxBuyerMessageLen {
		msg = string(r[:maxBuyerMessageLen])
	}
	msg = controlChars.ReplaceAllString(msg, "")
	if injectionPatterns.MatchString(msg) {
		return "[message redacted]", true
	}
	return msg, false
}

var thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// StripReasoning extracts any chain-of-thought block from a model reply.
// Returns the visible message and the extracted reasoning.
func StripReasoning(message string) (visible, reasoning string) {
	matches := thinkBlock.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return message, ""
	}
	var parts []string
	for _, m := range matches {
		parts = append(parts, strings.TrimSpace(m[1]))
	}
	visible = strings.TrimSpace(thinkBlock.ReplaceAllString(message, ""))
	return visible, strings.Join(parts, "\n")
}

// Numbers with three or more digits, with or without a rupee prefix and
// thousands separators. Used to catch a model contradicting the engine's
// price in the rendered text.
var amountRe = regexp.MustCompile(`(?:₹|Rs\.?\s*)?(\d{1,3}(?:,\d{3})+|\d{3,})`)

// ExtractAmounts pulls the candidate price figures out of a message.
func ExtractAmounts(message string) []int64 {
	var out []int64
	for _, m := range amountRe.FindAllStringSubmatch(message, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		var v int64
		for _, c := range raw {
			v = v*10 + int64(c-'0')
		}
		out = append(out, v)
	}
	return out
}

// ContradictsPrice reports whether the message quotes an amount that is
// not one of the allowed figures (counter price, bundle totals, anchor).
func ContradictsPrice(message string, allowed ...int64) bool {
	for _, amt := range ExtractAmounts(message) {
		ok := false
		for _, a := range allowed {
			if amt == a {
				ok = true
				break
			}
		}
		if !ok {
			return true
		}
	}
	return false
}
