package privacy

import (
	"strings"

	"waflow/internal/constants"
)

// MaskPhone masks a phone number showing only the last 4 digits.
// "5491122223333" -> "*********3333"
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		rest := phone[1:]
		if len(rest) <= keep {
			return "+" + strings.Repeat("*", len(rest))
		}
		return "+" + strings.Repeat("*", len(rest)-keep) + rest[len(rest)-keep:]
	}

	if len(phone) <= keep {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-keep) + phone[len(phone)-keep:]
}

// MaskWaMessageID masks a Meta message id (wamid.<token>) keeping the prefix
// and the token tail for correlation
func MaskWaMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(messageID, "wamid."); ok {
		return "wamid." + maskTail(rest, 6)
	}
	return maskTail(messageID, 6)
}

// MaskToken masks a credential: tokens of up to 8 characters become "****",
// longer ones keep only their first four characters
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + strings.Repeat("*", 4)
}

func maskTail(s string, keep int) string {
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}
