package logx

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNopImplementsLogger(t *testing.T) {
	var l Logger = Nop{}
	l.Trace("unused %d", 1)
	l.Critical("also unused")
}

func TestLogrusSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.TraceLevel)

	s := NewLogrusSink(base)
	s.Trace("walking block %d", 3)
	s.Information("arena ready")
	s.Critical("arena corrupted")

	out := buf.String()
	require.Contains(t, out, "walking block 3")
	require.Contains(t, out, "arena ready")
	require.Contains(t, out, "arena corrupted")
	require.Contains(t, out, "level=critical")
}

func TestNewLogrusSinkNilUsesStandard(t *testing.T) {
	s := NewLogrusSink(nil)
	require.NotNil(t, s.l)
}
