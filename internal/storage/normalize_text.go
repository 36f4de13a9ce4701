package storage

import (
	"golang.org/x/text/unicode/norm"
)

// NormalizeText converts free text that takes part in an exact-match lookup
// (song titles, artist names) to Unicode NFC.
//
// Song metadata and event logs come from different producers, so the same
// title can arrive precomposed in one and decomposed in the other. Both the
// insert side and the lookup side pass text through here, which keeps the
// SQL equality in song_select meaningful. Whitespace is left untouched.
func NormalizeText(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
