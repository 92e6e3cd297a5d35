package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomPolicyNoFalseNegatives(t *testing.T) {
	policy := NewBloomPolicy(10)

	var keys [][]byte
	for i := 0; i < 500; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key-%04d", i)))
	}
	f := policy.CreateFilter(keys)

	for _, k := range keys {
		require.True(t, policy.KeyMayMatch(k, f), "every added key must match its own filter")
	}
}

func TestBloomPolicyMostNonMembersDontMatch(t *testing.T) {
	policy := NewBloomPolicy(10)

	var keys [][]byte
	for i := 0; i < 500; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key-%04d", i)))
	}
	f := policy.CreateFilter(keys)

	falsePositives := 0
	for i := 10000; i < 10500; i++ {
		if policy.KeyMayMatch([]byte(fmt.Sprintf("absent-%d", i)), f) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, 50, "false positive rate should stay well under 10%% at 10 bits/key")
}

func TestBloomPolicyKeyMayMatchRejectsEmptyFilter(t *testing.T) {
	policy := NewBloomPolicy(10)
	require.False(t, policy.KeyMayMatch([]byte("anything"), nil))
}

func TestBloomPolicyKeyMayMatchFailsOpenOnZeroBitFilter(t *testing.T) {
	policy := NewBloomPolicy(10)
	// Just the trailing k byte, no filter bytes: nothing to test against.
	require.True(t, policy.KeyMayMatch([]byte("anything"), []byte{byte(policy.k)}))
}
