package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_TruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 5))
	assert.Equal(t, "ab...", TruncateString("abcdef", 2))
	assert.Equal(t, "", TruncateString("abcdef", 0))
}

func Test_IsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.True(t, IsValidUUID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8"))
	assert.False(t, IsValidUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c"))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("6ba7b810x9dad-11d1-80b4-00c04fd430c8"))
}

func Test_StringPtrEq(t *testing.T) {
	s := "x"
	assert.True(t, StringPtrEq(&s, "x"))
	assert.False(t, StringPtrEq(&s, "y"))
	assert.False(t, StringPtrEq(nil, "x"))
}

func Test_ValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("owner@example.com"))
	assert.NoError(t, ValidateEmail("first.last+tag@sub.example.co"))
	assert.EqualError(t, ValidateEmail(""), "email cannot be empty")
	assert.EqualError(t, ValidateEmail("not-an-email"), "the provided email is not valid")
	assert.EqualError(t, ValidateEmail("missing@tld@double.com"), "the provided email is not valid")
}
