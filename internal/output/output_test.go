package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("sent %d", 42)
	assert.Contains(t, out.String(), "sent 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_OnlyWhenVerbose(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("hidden")
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("shown")
	assert.Contains(t, out.String(), "shown")
}

func TestLevelColor_PassesThroughUnknown(t *testing.T) {
	assert.Equal(t, "DEFAULT", LevelColor("DEFAULT"))
}

func TestEventTypeColor_PassesThroughUnknown(t *testing.T) {
	assert.Equal(t, "CustomThing", EventTypeColor("CustomThing"))
}

func TestTable_RendersHeadersAndRows(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Type", "Count"})
	_ = table.Append([]string{"PreToolUse", "3"})
	_ = table.Render()

	assert.Contains(t, out.String(), "PreToolUse")
	assert.Contains(t, out.String(), "3")
}
