package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []Status{Unknown, SettingUp, Ready, SetupFailed, NotInQuery, Skipped, Succeeded, Failed}
	allowed := map[[2]Status]bool{
		{Unknown, SettingUp}:     true,
		{Unknown, Skipped}:       true,
		{SettingUp, NotInQuery}:  true,
		{SettingUp, Skipped}:     true,
		{SettingUp, Ready}:       true,
		{SettingUp, SetupFailed}: true,
		{Ready, Succeeded}:       true,
		{Ready, Failed}:          true,
		{Ready, Skipped}:         true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, Unknown.Terminal())
	assert.False(t, SettingUp.Terminal())
	assert.False(t, Ready.Terminal())
	for _, s := range []Status{SetupFailed, NotInQuery, Skipped, Succeeded, Failed} {
		assert.True(t, s.Terminal(), s.String())
	}
	assert.Equal(t, "SETUP_FAILED", SetupFailed.String())
	assert.Equal(t, "INVALID", Status(99).String())
}

func TestResult(t *testing.T) {
	t.Parallel()

	assert.True(t, Ok().IsOk())
	assert.True(t, Ok().Valid())

	var zero Result
	assert.False(t, zero.Valid(), "zero Result is malformed")
	assert.False(t, Err(nil).Valid())

	r := Fail("sql", "query_error", map[string]any{"line": 3})
	assert.True(t, r.Valid())
	assert.False(t, r.IsOk())
	assert.Equal(t, "sql: query_error (line=3)", r.Error().Error())
}

func TestInvoke(t *testing.T) {
	t.Parallel()

	res := invoke(func() Result { return Result{} })
	assert.Equal(t, KindResult, res.Error().Kind)
	assert.Equal(t, CodeMissingResult, res.Error().Code)

	res = invoke(func() Result { panic("boom") })
	assert.Equal(t, KindException, res.Error().Kind)
	assert.Equal(t, "boom", res.Error().Details["panic"])

	assert.True(t, invoke(Ok).IsOk())
}

func TestParseStage(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"compile", "run"} {
		got, err := ParseStage(name)
		assert.NoError(t, err)
		assert.Equal(t, Stage(name), got)
	}

	_, err := ParseStage("setup")
	assert.ErrorContains(t, err, `unknown stage "setup"`)
}
