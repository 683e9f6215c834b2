package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/harken/internal/triage"
	"github.com/linnemanlabs/harken/internal/triage/rules"
)

// run executes harkenctl with args and stdin, returning stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeRules writes the built-in table with a custom version to a temp file.
func writeRules(t *testing.T, version string) string {
	t.Helper()
	rs := rules.Default()
	rs.Version = version
	b, err := yaml.Marshal(rs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd(viper.New())

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "classify")
	assert.Contains(t, names, "rules")
	assert.Contains(t, names, "departments")

	flag := cmd.PersistentFlags().Lookup("rules")
	require.NotNil(t, flag, "rules flag should exist")
	assert.Equal(t, "", flag.DefValue)
}

func TestClassify_Args(t *testing.T) {
	out, err := run(t, "", "classify", "The", "wifi", "is", "down", "in", "the", "library")
	require.NoError(t, err)

	assert.Contains(t, out, "technology")
	assert.Contains(t, out, "IT Support")
	assert.Contains(t, out, "low")
	assert.Contains(t, out, rules.Default().Version)
}

func TestClassify_StdinJSON(t *testing.T) {
	out, err := run(t, "The hostel mess food made my child sick, this is urgent!\n", "classify", "--json")
	require.NoError(t, err)

	var cls triage.Classification
	require.NoError(t, json.Unmarshal([]byte(out), &cls))
	assert.Equal(t, triage.SentimentNegative, cls.Sentiment)
	assert.Equal(t, triage.CategoryAccommodation, cls.Category)
	assert.Equal(t, triage.PriorityUrgent, cls.Priority)
	assert.Equal(t, "Hostel", cls.Department)
	assert.Equal(t, triage.StatusNew, cls.Status)
	assert.True(t, cls.Urgent)
}

func TestClassify_EmptyMessage(t *testing.T) {
	_, err := run(t, "   \n", "classify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message")
}

func TestClassify_RulesFlag(t *testing.T) {
	path := writeRules(t, "tuned-7")

	out, err := run(t, "", "--rules", path, "classify", "--json", "Thanks for the great bus service")
	require.NoError(t, err)

	var cls triage.Classification
	require.NoError(t, json.Unmarshal([]byte(out), &cls))
	assert.Equal(t, "tuned-7", cls.RulesVersion)
	assert.Equal(t, triage.SentimentPositive, cls.Sentiment)
	assert.Equal(t, triage.CategoryTransport, cls.Category)
}

func TestClassify_RulesEnv(t *testing.T) {
	t.Setenv("HARKEN_RULES", writeRules(t, "from-env"))

	out, err := run(t, "", "classify", "--json", "The wifi is down")
	require.NoError(t, err)
	assert.Contains(t, out, `"rules_version": "from-env"`)
}

func TestClassify_MissingRulesFile(t *testing.T) {
	_, err := run(t, "", "--rules", filepath.Join(t.TempDir(), "missing.yaml"), "classify", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load rules")
}

func TestRulesCheck(t *testing.T) {
	out, err := run(t, "", "rules", "check")
	require.NoError(t, err)
	assert.Contains(t, out, rules.Default().Version)
	assert.Contains(t, out, "Student Affairs")
	assert.Contains(t, out, "ok")

	out, err = run(t, "", "rules", "check", writeRules(t, "candidate-2"))
	require.NoError(t, err)
	assert.Contains(t, out, "candidate-2")
}

func TestRulesCheck_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\nunknown_key: true\n"), 0o600))

	_, err := run(t, "", "rules", "check", path)
	require.Error(t, err)

	_, err = run(t, "", "rules", "check", "a", "b")
	require.Error(t, err, "check takes at most one path")
}

func TestDepartments(t *testing.T) {
	out, err := run(t, "", "departments")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+len(rules.Default().Departments))
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, out, "IT Support")
	assert.Contains(t, out, "technology")
}
