package extraction

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
)

// fakeTools scripts ffmpeg, ffprobe and tesseract for tests. Commands that
// write a file (the last argument after -y) get that file created.
type fakeTools struct {
	mu       sync.Mutex
	calls    [][]string
	duration string
	showinfo string
	tsv      string
	fail     map[string]error // keyed by tool name or by a marker argument
}

func (f *fakeTools) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	for key, err := range f.fail {
		if name == key || slices.Contains(args, key) {
			return nil, []byte("boom"), err
		}
	}

	switch {
	case name == "ffprobe":
		return []byte(f.duration), nil, nil
	case name == "tesseract":
		return []byte(f.tsv), nil, nil
	case name == "ffmpeg" && slices.Contains(args, "null"):
		return nil, []byte(f.showinfo), nil
	case name == "ffmpeg":
		if i := slices.Index(args, "-y"); i >= 0 && i+1 < len(args) {
			if err := os.WriteFile(args[i+1], []byte("fake-media"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	return nil, nil, nil
}

func (f *fakeTools) callsTo(name string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

// seekTimes returns the -ss values passed to ffmpeg frame grabs.
func (f *fakeTools) seekTimes() []string {
	var out []string
	for _, c := range f.callsTo("ffmpeg") {
		if i := slices.Index(c, "-ss"); i >= 0 {
			out = append(out, c[i+1])
		}
	}
	return out
}

func newFakeMedia(t *testing.T, tools *fakeTools) *Media {
	t.Helper()
	return NewMedia("ffmpeg", "ffprobe", tools)
}

const showinfoTwoCuts = `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'meeting.mp4':
  Duration: 00:01:00.00, start: 0.000000, bitrate: 512 kb/s
[Parsed_showinfo_1 @ 0x7f9c1a] config in time_base: 1/12800, frame_rate: 25/1
[Parsed_showinfo_1 @ 0x7f9c1a] n:   0 pts: 256000 pts_time:20      duration:    512 duration_time:0.04    fmt:yuv420p
[Parsed_showinfo_1 @ 0x7f9c1a] n:   1 pts: 512000 pts_time:40.5    duration:    512 duration_time:0.04    fmt:yuv420p
frame=    2 fps=0.0 q=-0.0 Lsize=N/A time=00:00:40.54 bitrate=N/A speed= 180x
`

func joinArgs(c []string) string { return strings.Join(c, " ") }
