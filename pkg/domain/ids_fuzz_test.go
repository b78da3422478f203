//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseOwnerID tests that parsing never panics on arbitrary input and
// always returns either a valid ID or an error.
func FuzzParseOwnerID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE owners;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		ownerID, err := ParseOwnerID(input)

		if err == nil {
			roundTrip, err2 := ParseOwnerID(ownerID.String())
			if err2 != nil {
				t.Errorf("Valid ID failed round-trip: %v", err2)
			}
			if roundTrip != ownerID {
				t.Error("Round-trip changed ID value")
			}
		}

		if !utf8.ValidString(input) && err == nil {
			t.Error("Non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures all ID types have consistent behavior.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errOwner := ParseOwnerID(input)
		_, errPolicy := ParsePolicyID(input)
		_, errClaim := ParseClaimID(input)
		_, errRelease := ParseReleaseID(input)

		if errOwner == nil {
			if errPolicy != nil || errClaim != nil || errRelease != nil {
				t.Error("Inconsistent parsing across ID types")
			}
		}
		if errOwner != nil {
			if errPolicy == nil || errClaim == nil || errRelease == nil {
				t.Error("Inconsistent rejection across ID types")
			}
		}
	})
}
