package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lifekey/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseOwnerID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseOwnerID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseOwnerID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		ownerID, err := ParseOwnerID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, OwnerID(validUUID), ownerID)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	ownerID := OwnerID(uuid.New())
	recipientID := RecipientID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ OwnerID = recipientID   // compile error
	// var _ RecipientID = ownerID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(ownerID), uuid.UUID(recipientID))
}

// TestParseID_SecurityInvariants validates security-critical parsing rules.
// Parsing must reject attack vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE owners;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClaimID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestJSONRoundTrip verifies IDs serialize as canonical UUID strings, not as
// the underlying byte array, and parse back through the same validation as
// the Parse functions.
func TestJSONRoundTrip(t *testing.T) {
	t.Run("marshals as a quoted UUID string", func(t *testing.T) {
		u := uuid.New()
		out, err := json.Marshal(ClaimID(u))
		require.NoError(t, err)
		assert.Equal(t, `"`+u.String()+`"`, string(out))
	})

	t.Run("marshals inside a struct field", func(t *testing.T) {
		u := uuid.New()
		out, err := json.Marshal(struct {
			ID OwnerID `json:"id"`
		}{ID: OwnerID(u)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"`+u.String()+`"}`, string(out))
	})

	t.Run("unmarshals a valid UUID string", func(t *testing.T) {
		u := uuid.New()
		var got ReleaseID
		require.NoError(t, json.Unmarshal([]byte(`"`+u.String()+`"`), &got))
		assert.Equal(t, ReleaseID(u), got)
	})

	t.Run("unmarshal rejects the nil UUID", func(t *testing.T) {
		var got PolicyID
		err := json.Unmarshal([]byte(`"`+uuid.Nil.String()+`"`), &got)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unmarshal rejects malformed input", func(t *testing.T) {
		var got RecipientID
		err := json.Unmarshal([]byte(`"not-a-uuid"`), &got)
		require.Error(t, err)
	})
}

// TestParseConsistencyAcrossTypes ensures every ID type shares the same
// underlying validation.
func TestParseConsistencyAcrossTypes(t *testing.T) {
	for _, input := range []string{"", "invalid", uuid.Nil.String(), uuid.NewString()} {
		_, errOwner := ParseOwnerID(input)
		_, errPolicy := ParsePolicyID(input)
		_, errRecipient := ParseRecipientID(input)
		_, errItem := ParseVaultItemID(input)
		_, errAssignment := ParseAssignmentID(input)
		_, errClaim := ParseClaimID(input)
		_, errRelease := ParseReleaseID(input)

		accepted := errOwner == nil
		for _, err := range []error{errPolicy, errRecipient, errItem, errAssignment, errClaim, errRelease} {
			assert.Equal(t, accepted, err == nil, "inconsistent parsing for input %q", input)
		}
	}
}
