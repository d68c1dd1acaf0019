package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(NewPrefixHandler(handler))
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := WithPrefix(WithPrefix(newTestLogger(&buf), "server"), "conn")
	logger.Info("accepted", "client", "127.0.0.1:1000")

	out := buf.String()
	if !strings.Contains(out, `msg="server.conn: accepted"`) {
		t.Errorf("expected nested prefix in message, got %q", out)
	}
	if strings.Contains(out, prefixKey) {
		t.Errorf("prefix attribute leaked into output: %q", out)
	}
	if !strings.Contains(out, "client=127.0.0.1:1000") {
		t.Errorf("expected client attribute, got %q", out)
	}
}

func TestWithPrefix_KeepsOtherAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := WithPrefix(newTestLogger(&buf), "proxy").With("upstream", "10.0.0.5:65000")
	logger.Debug("sent")

	out := buf.String()
	if !strings.Contains(out, `msg="proxy: sent"`) || !strings.Contains(out, "upstream=10.0.0.5:65000") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestProfile(t *testing.T) {
	var buf bytes.Buffer
	done := Profile(newTestLogger(&buf), "resolve", "domain", "example.com")
	done()

	out := buf.String()
	if !strings.Contains(out, "msg=resolve ") || !strings.Contains(out, `msg="resolve completed"`) || !strings.Contains(out, "took=") {
		t.Errorf("unexpected output %q", out)
	}
}
