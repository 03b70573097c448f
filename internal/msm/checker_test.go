package msm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/clustermon/internal/mail"
	"github.com/MikeSquared-Agency/clustermon/internal/monitor"
	"github.com/MikeSquared-Agency/clustermon/internal/watermark"
)

type fakeNotifier struct {
	msgs []mail.Message
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChecker(cfg Config, n mail.Notifier) *Checker {
	c := NewChecker(cfg, n, discardLogger())
	c.now = func() time.Time { return testNow }
	return c
}

func setWatermark(t *testing.T, logPath string, at time.Time) string {
	t.Helper()
	sentinel := watermark.SentinelPath(logPath)
	if err := watermark.Touch(sentinel, at); err != nil {
		t.Fatalf("touch watermark: %v", err)
	}
	return sentinel
}

func TestCheck_NoWatermarkSendsAllAndCreatesWatermark(t *testing.T) {
	path := writeLog(t, "Oct 14 10:15:00 node01 MRMON[2211]: <MRMON044> Controller ID: 0 PD removed\n"+
		"Oct 14 10:16:00 node01 MRMON[2211]: Controller ID: 0 fan speed changed\n")
	n := &fakeNotifier{}
	c := newTestChecker(DefaultConfig("node01"), n)

	res, err := c.Check(context.Background(), Request{Path: path})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if len(n.msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(n.msgs))
	}
	msg := n.msgs[0]
	if msg.Subject != "MegaRAID messages" || msg.To != "root" || msg.From != "system_node01" {
		t.Errorf("unexpected envelope: %+v", msg)
	}
	wantBody := "Messages from MSM were found for Oct 14:\n\n" +
		"Oct 14 10:15:00 node01 MRMON[2211]: <MRMON044> Controller ID: 0 PD removed\n"
	if msg.Body != wantBody {
		t.Errorf("body = %q\nwant %q", msg.Body, wantBody)
	}

	mark, ok, err := watermark.Read(watermark.SentinelPath(path))
	if err != nil || !ok {
		t.Fatalf("watermark not created: ok=%v err=%v", ok, err)
	}
	if !mark.Equal(testNow) {
		t.Errorf("watermark = %v, want %v", mark, testNow)
	}
	if !res.Notified || !res.Touched || res.Windowed {
		t.Errorf("result flags = %+v", res)
	}
	if res.Alert == nil || res.Alert.Task != monitor.TaskMSM || len(res.Alert.Lines) != 1 {
		t.Errorf("alert = %+v", res.Alert)
	}
}

func TestCheck_WatermarkWindowsOldLines(t *testing.T) {
	mark := time.Date(2026, 10, 14, 11, 0, 0, 0, time.Local)
	path := writeLog(t, "Oct 14 10:58:00 node01 MRMON[2211]: old event\n"+
		"Oct 14 10:59:30 node01 MRMON[2211]: new event\n")
	setWatermark(t, path, mark)
	n := &fakeNotifier{}
	c := newTestChecker(DefaultConfig("node01"), n)

	res, err := c.Check(context.Background(), Request{Path: path})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(n.msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(n.msgs))
	}
	if strings.Contains(n.msgs[0].Body, "old event") {
		t.Errorf("old line should be outside the window:\n%s", n.msgs[0].Body)
	}
	if !strings.Contains(n.msgs[0].Body, "new event") {
		t.Errorf("new line missing:\n%s", n.msgs[0].Body)
	}
	if !res.Windowed || len(res.Lines) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestCheck_IncludeAllPastDayIgnoresWatermark(t *testing.T) {
	mark := time.Date(2026, 10, 14, 11, 0, 0, 0, time.Local)
	path := writeLog(t, "Oct 13 01:00:00 node01 MRMON[2211]: early yesterday\n"+
		"Oct 13 23:00:00 node01 MRMON[2211]: late yesterday\n"+
		"Oct 14 10:00:00 node01 MRMON[2211]: today\n")
	sentinel := setWatermark(t, path, mark)
	n := &fakeNotifier{}
	c := newTestChecker(DefaultConfig("node01"), n)

	res, err := c.Check(context.Background(), Request{Path: path, Day: 13, Month: 10, IncludeAll: true})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(n.msgs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(n.msgs))
	}
	body := n.msgs[0].Body
	if !strings.HasPrefix(body, "Messages from MSM were found for Oct 13:") {
		t.Errorf("unexpected header: %q", body)
	}
	if !strings.Contains(body, "early yesterday") || !strings.Contains(body, "late yesterday") {
		t.Errorf("full day expected:\n%s", body)
	}
	if strings.Contains(body, "today") {
		t.Errorf("other day leaked into batch:\n%s", body)
	}

	got, _, _ := watermark.Read(sentinel)
	if !got.Equal(mark) {
		t.Errorf("watermark changed to %v on past-day run", got)
	}
	if res.Touched || res.Filter.IsToday {
		t.Errorf("result = %+v", res)
	}
}

func TestCheck_PastDayWithoutIncludeAllDoesNotCreateWatermark(t *testing.T) {
	path := writeLog(t, "Oct 13 01:00:00 node01 MRMON[2211]: yesterday\n")
	c := newTestChecker(DefaultConfig("node01"), &fakeNotifier{})

	if _, err := c.Check(context.Background(), Request{Path: path, Day: 13, Month: 10}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, ok, _ := watermark.Read(watermark.SentinelPath(path)); ok {
		t.Error("past-day run must not create a watermark")
	}
}

func TestCheck_EmptyResultTouchPolicies(t *testing.T) {
	tests := []struct {
		name         string
		touchOnEmpty bool
		wantTouched  bool
	}{
		{"touches by default", true, true},
		{"skips touch when disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, "Oct 14 10:00:00 node01 kernel: nothing to see\n")
			cfg := DefaultConfig("node01")
			cfg.TouchOnEmpty = tt.touchOnEmpty
			n := &fakeNotifier{}
			c := newTestChecker(cfg, n)

			res, err := c.Check(context.Background(), Request{Path: path})
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if len(n.msgs) != 0 {
				t.Errorf("expected no notification, got %d", len(n.msgs))
			}
			_, ok, _ := watermark.Read(watermark.SentinelPath(path))
			if ok != tt.wantTouched || res.Touched != tt.wantTouched {
				t.Errorf("touched = %v (result %v), want %v", ok, res.Touched, tt.wantTouched)
			}
		})
	}
}

func TestCheck_IncludeAllTodayTouchPolicies(t *testing.T) {
	tests := []struct {
		name              string
		touchOnIncludeAll bool
		wantMark          time.Time
	}{
		{"touches by default", true, testNow},
		{"leaves watermark when disabled", false, time.Date(2026, 10, 14, 11, 0, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, "Oct 14 09:00:00 node01 MRMON[2211]: before watermark\n")
			sentinel := setWatermark(t, path, time.Date(2026, 10, 14, 11, 0, 0, 0, time.Local))
			cfg := DefaultConfig("node01")
			cfg.TouchOnIncludeAll = tt.touchOnIncludeAll
			n := &fakeNotifier{}
			c := newTestChecker(cfg, n)

			res, err := c.Check(context.Background(), Request{Path: path, IncludeAll: true})
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if len(n.msgs) != 1 || !strings.Contains(n.msgs[0].Body, "before watermark") {
				t.Errorf("include-all run should report the whole day, got %+v", n.msgs)
			}
			if res.Windowed {
				t.Error("include-all run must not be windowed")
			}
			got, _, _ := watermark.Read(sentinel)
			if !got.Equal(tt.wantMark) {
				t.Errorf("watermark = %v, want %v", got, tt.wantMark)
			}
		})
	}
}

func TestCheck_NotificationFailureLeavesWatermark(t *testing.T) {
	path := writeLog(t, "Oct 14 10:15:00 node01 MRMON[2211]: PD removed\n")
	n := &fakeNotifier{err: fmt.Errorf("relay refused: %w", monitor.ErrNotificationFailure)}
	c := newTestChecker(DefaultConfig("node01"), n)

	_, err := c.Check(context.Background(), Request{Path: path})
	if !errors.Is(err, monitor.ErrNotificationFailure) {
		t.Fatalf("expected ErrNotificationFailure, got %v", err)
	}
	if _, ok, _ := watermark.Read(watermark.SentinelPath(path)); ok {
		t.Error("watermark must not advance when the alert was not delivered")
	}
}

func TestCheck_InvalidMonthFailsBeforeIO(t *testing.T) {
	n := &fakeNotifier{}
	c := newTestChecker(DefaultConfig("node01"), n)

	_, err := c.Check(context.Background(), Request{Path: "/nonexistent/messages", Day: 1, Month: 13})
	if !errors.Is(err, monitor.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCheck_MissingLogIsCommandFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages")
	c := newTestChecker(DefaultConfig("node01"), &fakeNotifier{})

	_, err := c.Check(context.Background(), Request{Path: path})
	if !errors.Is(err, monitor.ErrCommandFailure) {
		t.Fatalf("expected ErrCommandFailure, got %v", err)
	}
	if _, ok, _ := watermark.Read(watermark.SentinelPath(path)); ok {
		t.Error("failed run must not create a watermark")
	}
}

func TestCheck_ConcurrentRunIsRejected(t *testing.T) {
	path := writeLog(t, "Oct 14 10:15:00 node01 MRMON[2211]: PD removed\n")
	lock, err := watermark.Acquire(context.Background(), watermark.SentinelPath(path), 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	cfg := DefaultConfig("node01")
	cfg.LockTimeout = 0
	n := &fakeNotifier{}
	c := newTestChecker(cfg, n)

	_, err = c.Check(context.Background(), Request{Path: path})
	if !errors.Is(err, watermark.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(n.msgs) != 0 {
		t.Error("locked run must not notify")
	}
}

func TestCheck_SkipsUnparseableLinesInWindow(t *testing.T) {
	path := writeLog(t, "Oct 14 10:15:00 node01 MRMON[2211]: fresh\n"+
		"Oct 14 xx:yy:zz node01 MRMON[2211]: broken stamp\n")
	setWatermark(t, path, time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local))
	n := &fakeNotifier{}
	c := newTestChecker(DefaultConfig("node01"), n)

	res, err := c.Check(context.Background(), Request{Path: path})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Skipped != 1 || len(res.Lines) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("node01")
	if cfg.Tolerance != 60*time.Second {
		t.Errorf("Tolerance = %v", cfg.Tolerance)
	}
	if !cfg.TouchOnEmpty || !cfg.TouchOnIncludeAll {
		t.Error("default touch policy should match the original script")
	}
	if cfg.From != "system_node01" {
		t.Errorf("From = %q", cfg.From)
	}

	// Exclusions are copied, not shared.
	cfg.Exclude[0] = "changed"
	if DefaultExclusions[0] != "fan speed" {
		t.Error("DefaultConfig must copy the exclusion list")
	}
}
