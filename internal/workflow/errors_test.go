package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/scheduling-ai/internal/session"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("pool exhausted")
	werr := transportErr(session.StageLookupPatient, cause)

	require.ErrorIs(t, werr, cause)
	assert.Equal(t, KindTransport, werr.Kind)
	assert.Equal(t, session.StageLookupPatient, werr.Stage)
	assert.Contains(t, werr.Error(), "lookup_patient")
}

func TestErrorRecoverable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, true},
		{KindNotFound, true},
		{KindConflict, true},
		{KindTransport, true},
		{KindUnrecoverable, false},
	}
	for _, tc := range cases {
		werr := stageErr(tc.kind, session.StageFindSlots, errors.New("x"))
		assert.Equal(t, tc.want, werr.Recoverable(), "kind %s", tc.kind)
	}
}
