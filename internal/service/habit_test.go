package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

func TestHabitCreate(t *testing.T) {
	f := newFixture(t)
	svc := NewHabitService(f.deps)

	h, err := svc.Create(f.ctx, CreateHabitRequest{
		Name:              "  run  ",
		Frequency:         model.FrequencyDaily,
		ProofTypesAllowed: []model.ProofType{model.ProofTypePhoto, model.ProofTypeNote},
		UserID:            10,
		PerWeekTarget:     3,
	})
	require.NoError(t, err)
	require.Equal(t, "run", h.Name)
	require.Equal(t, model.VerificationSelf, h.VerificationMode)
	require.Equal(t, "photo,note", h.ProofTypesAllowed)
	require.Zero(t, h.PerWeekTarget)
	require.Zero(t, h.CurrentStreak)

	got, err := svc.Get(f.ctx, h.ID)
	require.NoError(t, err)
	require.Equal(t, h.ID, got.ID)
}

func TestHabitCreateValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewHabitService(f.deps)

	cases := []struct {
		name string
		req  CreateHabitRequest
	}{
		{"missing name", CreateHabitRequest{Frequency: model.FrequencyDaily, UserID: 1}},
		{"unknown frequency", CreateHabitRequest{Name: "x", Frequency: "hourly", UserID: 1}},
		{"custom without target", CreateHabitRequest{Name: "x", Frequency: model.FrequencyCustom, UserID: 1}},
		{"unknown proof type", CreateHabitRequest{Name: "x", Frequency: model.FrequencyDaily, UserID: 1, ProofTypesAllowed: []model.ProofType{"video"}}},
		{"missing owner", CreateHabitRequest{Name: "x", Frequency: model.FrequencyDaily}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(f.ctx, tc.req)
			require.ErrorIs(t, err, errors.InvalidRequest)
		})
	}
}

func TestHabitArchiveRejectsCheckIns(t *testing.T) {
	f := newFixture(t)
	svc := NewHabitService(f.deps)
	h := f.habit(10)

	_, err := svc.Archive(f.ctx, h.ID, 11)
	require.ErrorIs(t, err, errors.HabitNotOwned)

	archived, err := svc.Archive(f.ctx, h.ID, 10)
	require.NoError(t, err)
	require.True(t, archived.Archived)

	res, err := f.submit(h, f.day(0))
	require.ErrorIs(t, err, errors.HabitArchived)
	require.Equal(t, CheckInRejected, res.Status)

	_, err = svc.Get(f.ctx, 999)
	require.ErrorIs(t, err, errors.HabitNotFound)
}
