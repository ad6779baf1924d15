package log_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logging.Level
		wantErr bool
	}{
		{"ERROR", logging.ERROR, false},
		{"warning", logging.WARNING, false},
		{"Notice", logging.NOTICE, false},
		{"info", logging.INFO, false},
		{"DEBUG", logging.DEBUG, false},
		{"CRITICAL", logging.CRITICAL, true},
		{"", logging.CRITICAL, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := log.ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBackend_WritesModuleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	b := log.NewWriter(&buf)
	b.GetLogger("circuit").Warningf("digest mismatch on %d", 17)
	require.Contains(t, buf.String(), "WARN circuit: digest mismatch on 17")
}

func TestBackend_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.log")
	b, err := log.New(path, "INFO", false)
	require.NoError(t, err)
	l := b.GetLogger("conn")
	l.Debug("hidden")
	l.Info("visible")
	require.NoError(t, b.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "INFO conn: visible")
	require.NotContains(t, string(raw), "hidden")

	_, err = log.New(path, "verbose", false)
	require.Error(t, err)
}
