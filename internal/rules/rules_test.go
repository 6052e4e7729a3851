package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scenewatch/scenewatch/internal/config"
)

func TestCompileRejectsMalformedPattern(t *testing.T) {
	_, err := Compile([]config.RuleConfig{
		{Display: 0, Pattern: "([unclosed", Scene: "Broken"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid pattern")
}

func TestMatchIsCaseInsensitiveSubstring(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Display: 0, Pattern: "fleet management", Scene: "Logi-Only"},
	})
	require.NoError(t, err)

	scene, ok := set.Match(0, "FLEET MANAGEMENT Dashboard - Chrome")
	require.True(t, ok)
	require.Equal(t, "Logi-Only", scene)
}

func TestMatchRequiresDisplayEquality(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Display: 1, Pattern: ".*", Scene: "Secondary"},
	})
	require.NoError(t, err)

	_, ok := set.Match(0, "any title")
	require.False(t, ok)

	scene, ok := set.Match(1, "any title")
	require.True(t, ok)
	require.Equal(t, "Secondary", scene)
}

func TestMatchFirstDeclaredRuleWins(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Display: 0, Pattern: "Fleet Management", Scene: "Logi-Only"},
		{Display: 0, Pattern: ".*", Scene: "Default"},
	})
	require.NoError(t, err)

	scene, ok := set.Match(0, "Fleet Management Dashboard")
	require.True(t, ok)
	require.Equal(t, "Logi-Only", scene)

	scene, ok = set.Match(0, "Random Page")
	require.True(t, ok)
	require.Equal(t, "Default", scene)
}

func TestMatchMissIsNotAnError(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Display: 0, Pattern: "Dashboard", Scene: "Dash"},
	})
	require.NoError(t, err)

	scene, ok := set.Match(0, "Mail")
	require.False(t, ok)
	require.Empty(t, scene)
}

func TestRulesPreserveDeclarationOrder(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Display: 0, Pattern: "a", Scene: "A"},
		{Display: 0, Pattern: "b", Scene: "B"},
		{Display: 1, Pattern: "c", Scene: "C"},
	})
	require.NoError(t, err)

	compiled := set.Rules()
	require.Len(t, compiled, 3)
	require.Equal(t, "A", compiled[0].Scene)
	require.Equal(t, "B", compiled[1].Scene)
	require.Equal(t, "C", compiled[2].Scene)
	require.Equal(t, 3, set.Len())
}
