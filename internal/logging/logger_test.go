package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	emit := func(l Logger) {
		l.Errorf("e")
		l.Warnf("w")
		l.Infof("i")
		l.Debugf("d")
	}
	for level := LevelError; level <= LevelDebug; level++ {
		t.Run(level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			emit(NewLogger(&buf, level))
			out := buf.String()
			for l := LevelError; l <= LevelDebug; l++ {
				want := l <= level
				if got := strings.Contains(out, " "+l.String()+" "); got != want {
					t.Errorf("%s line present = %v, want %v\n%s", l, got, want, out)
				}
			}
		})
	}
}

func TestFatalfReachesHandler(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelError)

	var got string
	l.SetFatalHandler(func(msg string) { got = msg })
	l.Fatalf("%sappend to segment %d failed", NSWAL, 7)

	if got != "[wal] append to segment 7 failed" {
		t.Errorf("handler got %q", got)
	}
	if !strings.Contains(buf.String(), "FATAL [wal] append to segment 7 failed") {
		t.Errorf("output %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	Discard.Errorf("%d", 1)
	Discard.Warnf("%d", 1)
	Discard.Infof("%d", 1)
	Discard.Debugf("%d", 1)
	Discard.Fatalf("%d", 1)
}

func TestParseLevel(t *testing.T) {
	for l := LevelError; l <= LevelDebug; l++ {
		got, err := ParseLevel(strings.ToLower(l.String()))
		if err != nil || got != l {
			t.Errorf("ParseLevel(%q) = %v, %v", strings.ToLower(l.String()), got, err)
		}
	}
	if _, err := ParseLevel("LOUD"); err == nil {
		t.Error("ParseLevel(LOUD) succeeded")
	}
	if s := Level(99).String(); s != "Level(99)" {
		t.Errorf("Level(99) = %q", s)
	}
}

func TestOrDefault(t *testing.T) {
	var typedNil *DefaultLogger
	if !IsNil(typedNil) {
		t.Error("typed nil not detected")
	}
	if OrDefault(typedNil) == nil {
		t.Error("OrDefault returned nil")
	}
	if OrDefault(Discard) != Discard {
		t.Error("OrDefault replaced a usable logger")
	}
}

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, LevelInfo).Infof("%sflushed MemRowSet %d", NSFlush, 3)
	if !strings.Contains(buf.String(), "INFO [flush] flushed MemRowSet 3") {
		t.Errorf("line %q", buf.String())
	}
}
