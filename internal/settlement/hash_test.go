package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
)

func TestInputHashIgnoresParticipantOrder(t *testing.T) {
	a := input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, participants(10, 3, 7))
	b := a
	b.Participants = []Participant{a.Participants[2], a.Participants[0], a.Participants[1]}

	require.Equal(t, InputHash(a), InputHash(b))
	require.Len(t, InputHash(a), 64)
}

func TestInputHashChangesWithCompletions(t *testing.T) {
	a := input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, participants(10, 3, 7))
	b := input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, participants(10, 4, 7))

	require.NotEqual(t, InputHash(a), InputHash(b))
}

func TestInputHashIgnoresFeeConfiguration(t *testing.T) {
	a := input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, participants(10, 3))
	b := a
	b.FeeBps = 500

	require.Equal(t, InputHash(a), InputHash(b))
}
