package criteria

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldTriState(t *testing.T) {
	var p RulePatch
	require.NoError(t, json.Unmarshal([]byte(`{"alertMessage": "new", "jobpackType": null}`), &p))

	assert.True(t, p.AlertMessage.Set)
	require.NotNil(t, p.AlertMessage.Value)
	assert.Equal(t, "new", *p.AlertMessage.Value)

	assert.True(t, p.JobpackType.IsNull())

	assert.False(t, p.StructureGroup.Set)
	assert.False(t, p.ThresholdValue.Set)
}

func TestRulePatchKeepsAbsentFields(t *testing.T) {
	r := baseRule()
	r.JobpackType = "GVI"
	r.ElevationMin = f64(-5)

	var p RulePatch
	require.NoError(t, json.Unmarshal([]byte(`{"evaluationPriority": 7}`), &p))
	require.NoError(t, p.apply("test", r))

	assert.Equal(t, 7, r.EvaluationPriority)
	assert.Equal(t, "GVI", r.JobpackType)
	require.NotNil(t, r.ElevationMin)
	assert.Equal(t, -5.0, *r.ElevationMin)
}

func TestRulePatchNullClears(t *testing.T) {
	r := baseRule()
	r.JobpackType = "GVI"
	r.ElevationMin = f64(-5)
	r.CustomParameters = map[string]ParameterCondition{"depth": {Operator: OpGreaterThan, Value: f64(1)}}

	var p RulePatch
	require.NoError(t, json.Unmarshal([]byte(`{"jobpackType": null, "elevationMin": null, "customParameters": null}`), &p))
	require.NoError(t, p.apply("test", r))

	assert.Empty(t, r.JobpackType)
	assert.Nil(t, r.ElevationMin)
	assert.Nil(t, r.CustomParameters)
}

func TestRulePatchThresholdExclusivity(t *testing.T) {
	t.Run("value clears text", func(t *testing.T) {
		r := baseRule()
		r.ThresholdOperator = OpEqual
		r.ThresholdText = str("Minor")

		require.NoError(t, RulePatch{ThresholdValue: SetTo(2.5)}.apply("test", r))
		assert.Nil(t, r.ThresholdText)
		require.NotNil(t, r.ThresholdValue)
		assert.Equal(t, 2.5, *r.ThresholdValue)
		assert.Equal(t, OpEqual, r.ThresholdOperator)
	})

	t.Run("text clears value", func(t *testing.T) {
		r := baseRule()
		r.ThresholdOperator = OpGreaterThan
		r.ThresholdValue = f64(2)

		require.NoError(t, RulePatch{ThresholdText: SetTo("Major")}.apply("test", r))
		assert.Nil(t, r.ThresholdValue)
		require.NotNil(t, r.ThresholdText)
		assert.Equal(t, "Major", *r.ThresholdText)
	})

	t.Run("both in one patch", func(t *testing.T) {
		r := baseRule()
		err := RulePatch{ThresholdValue: SetTo(1.0), ThresholdText: SetTo("x")}.apply("test", r)
		assert.True(t, IsValidation(err))
	})
}

func TestProcedurePatchStatus(t *testing.T) {
	p := &Procedure{Status: StatusDraft}

	require.NoError(t, ProcedurePatch{Status: SetTo(StatusActive)}.apply("test", p))
	assert.Equal(t, StatusActive, p.Status)

	err := ProcedurePatch{Status: SetTo(ProcedureStatus("retired"))}.apply("test", p)
	assert.True(t, IsValidation(err))

	err = ProcedurePatch{Status: Null[ProcedureStatus]()}.apply("test", p)
	assert.True(t, IsValidation(err))
	assert.Equal(t, StatusActive, p.Status)
}
