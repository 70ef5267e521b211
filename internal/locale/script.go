// Package locale picks the reply language and holds the bilingual message
// catalog.
package locale

// Script is the writing system detected in a user's message.
type Script int

const (
	// ScriptOther is any left-to-right script; replies are in English.
	ScriptOther Script = iota
	// ScriptRTL is Hebrew; replies are in Hebrew.
	ScriptRTL
)

// Hebrew letters alef through tav.
const (
	rtlFirst = 'א'
	rtlLast  = 'ת'
)

// String returns the catalog column name for the script.
func (s Script) String() string {
	if s == ScriptRTL {
		return "rtl"
	}
	return "other"
}

// Detect returns ScriptRTL when text contains at least one Hebrew letter.
func Detect(text string) Script {
	for _, r := range text {
		if r >= rtlFirst && r <= rtlLast {
			return ScriptRTL
		}
	}
	return ScriptOther
}
