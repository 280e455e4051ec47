package worker

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressPrint(t *testing.T) {
	tests := []struct {
		name                     string
		completed, total, failed int
		want                     []string
		absent                   []string
	}{
		{
			name:      "half way",
			completed: 5, total: 10, failed: 1,
			want:   []string{"[===============               ]", "5/10 tiles", "(1 failed)", "tiles/sec", "ETA:"},
			absent: []string{"Done in"},
		},
		{
			name:      "finished",
			completed: 4, total: 4,
			want:   []string{"[==============================]", "4/4 tiles", "Done in"},
			absent: []string{"ETA:", "failed"},
		},
		{
			name:   "empty batch",
			want:   []string{"0/0 tiles"},
			absent: []string{"ETA:", "Done in"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewProgress(&buf, tt.total, true)
			p.startTime = time.Now().Add(-8 * time.Second)

			p.Update(tt.completed, tt.total, tt.failed)

			out := buf.String()
			if !strings.HasPrefix(out, "\r") {
				t.Errorf("output should start with a carriage return: %q", out)
			}
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("missing %q in %q", s, out)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(out, s) {
					t.Errorf("unexpected %q in %q", s, out)
				}
			}
		})
	}
}

func TestProgressDoneEndsLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 2, true)
	p.Update(2, 2, 0)
	buf.Reset()

	p.Done()
	if out := buf.String(); !strings.HasSuffix(out, "\n") || !strings.Contains(out, "2/2 tiles") {
		t.Errorf("Done() wrote %q", out)
	}
}

func TestProgressQuiet(t *testing.T) {
	var buf bytes.Buffer

	for _, p := range []*Progress{NewProgress(&buf, 3, false), NewProgress(nil, 3, true)} {
		p.Callback()(3, 3, 1)
		p.Done()
		if p.completed != 3 || p.failed != 1 {
			t.Errorf("counters not recorded: completed=%d failed=%d", p.completed, p.failed)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("quiet progress wrote %q", buf.String())
	}
}

func TestProgressSummary(t *testing.T) {
	p := NewProgress(nil, 12, false)
	p.startTime = time.Now().Add(-4 * time.Second)
	p.Update(12, 12, 3)
	p.AddBytes(1536)
	p.AddBytes(1536)

	got := p.Summary()
	for _, want := range []string{"Rendered 9/12 tiles", "3 failed", "3.0 KiB", "in 4s", "3.0 tiles/sec"} {
		if !strings.Contains(got, want) {
			t.Errorf("Summary() = %q, missing %q", got, want)
		}
	}
}

func TestHumanFormats(t *testing.T) {
	durations := map[time.Duration]string{
		0:                             "0s",
		42 * time.Second:              "42s",
		(2*60 + 5) * time.Second:      "2m5s",
		3*time.Hour + 20*time.Minute:  "3h20m",
		25*time.Hour + 59*time.Second: "25h0m",
	}
	for d, want := range durations {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %s, want %s", d, got, want)
		}
	}

	sizes := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.5 KiB",
		3 * 1024 * 1024: "3.0 MiB",
		5 << 30:         "5.0 GiB",
	}
	for n, want := range sizes {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %s, want %s", n, got, want)
		}
	}
}
