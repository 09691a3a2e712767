package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrappedDefinitionsMatch(t *testing.T) {
	err := fmt.Errorf("settle challenge 9: %w", fmt.Errorf("%w: stored abc", SettlementHashMismatch))

	require.True(t, Is(err, SettlementHashMismatch))
	require.False(t, Is(err, SettlementHalted))
	require.Equal(t, KindIntegrity, KindOf(err))

	def, ok := As(err)
	require.True(t, ok)
	require.Equal(t, SettlementHashMismatch.Code, def.Code)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
	require.Equal(t, KindConflict, KindOf(AlreadyCheckedIn))
	require.Equal(t, KindTransient, KindOf(fmt.Errorf("%w: timeout", PayoutUnavailable)))
	require.Equal(t, KindNotFound, KindOf(HabitNotFound))
}

func TestLookup(t *testing.T) {
	require.Equal(t, MissingProof, Get(MissingProof.Code))

	unknown := Get("NOPE")
	require.Equal(t, "NOPE", unknown.Code)
	require.Equal(t, KindInternal, unknown.Kind)

	codes := map[string]bool{}
	for code := range Lookup {
		require.False(t, codes[code], code)
		codes[code] = true
	}
}

func TestSkip(t *testing.T) {
	err := fmt.Errorf("handle: %w", &SkipMessageError{Reason: "duplicate"})
	require.True(t, IsSkip(err))
	require.False(t, IsSkip(AlreadyCheckedIn))
	require.Contains(t, err.Error(), "duplicate")
}
