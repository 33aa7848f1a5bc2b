package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestNew_FormatFollowsEnvironment(t *testing.T) {
	var buf bytes.Buffer
	log := newWithOutput(&buf, "info", "production")
	Component(log, "collector").WithField("snapshot_id", "s_1").Info("Snapshot ready")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("production output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["component"] != "collector" || entry["snapshot_id"] != "s_1" || entry["msg"] != "Snapshot ready" {
		t.Errorf("unexpected entry %v", entry)
	}

	buf.Reset()
	log = newWithOutput(&buf, "info", "development")
	log.Info("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("development output should be text, got %s", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	if got := newWithOutput(&buf, "DEBUG", "development").GetLevel(); got != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	if got := newWithOutput(&buf, "chatty", "development").GetLevel(); got != logrus.InfoLevel {
		t.Errorf("invalid level should fall back to info, got %v", got)
	}
}

func TestComponentFieldWithHook(t *testing.T) {
	log, hook := test.NewNullLogger()
	Component(log, "monitor").Warn("Checked recently, skipping")

	if len(hook.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(hook.Entries))
	}
	if hook.LastEntry().Data["component"] != "monitor" || hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("unexpected entry %+v", hook.LastEntry())
	}
}
