package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })
	testCases := []struct {
		level string
		want  logrus.Level
	}{
		{level: "debug", want: logrus.DebugLevel},
		{level: "WARN", want: logrus.WarnLevel},
		{level: "nonsense", want: logrus.InfoLevel},
	}
	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			SetLevel(tc.level)
			assert.Equal(t, tc.want, Logger.GetLevel())
			assert.Equal(t, tc.want, logrus.GetLevel())
		})
	}
}

func TestComponentLoggersShareFormatter(t *testing.T) {
	var buf bytes.Buffer
	Logger.SetOutput(&buf)
	t.Cleanup(func() { Logger.SetOutput(os.Stdout) })

	logrus.WithField("module", "rpc").Info("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), buf.String())
	assert.Equal(t, "rpc", line["module"])
	assert.Equal(t, "hello", line["msg"])
}
