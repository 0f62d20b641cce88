// internal/desktop/parse.go
package desktop

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// wmctrl -lG: <id> <desktop> <x> <y> <w> <h> <host> <title...>
var wmctrlLine = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(-?\d+)\s+(-?\d+)\s+(-?\d+)\s+(\d+)\s+(\d+)\s+(\S+)\s*(.*)$`)

var (
	xpropPID       = regexp.MustCompile(`_NET_WM_PID\(CARDINAL\)\s*=\s*(\d+)`)
	xpropClass     = regexp.MustCompile(`WM_CLASS\(STRING\)\s*=\s*"([^"]*)"(?:,\s*"([^"]*)")?`)
	xpropActiveWin = regexp.MustCompile(`_NET_ACTIVE_WINDOW\(WINDOW\):\s*window id #\s*(0x[0-9a-fA-F]+)`)
)

type wmctrlRow struct {
	id       string
	desktop  int
	geometry schemas.Geometry
	host     string
	title    string
}

// parseWmctrl parses `wmctrl -lG` output, skipping sticky (-1 desktop) panels
// and any line it does not understand.
func parseWmctrl(out string) []wmctrlRow {
	var rows []wmctrlRow
	for _, line := range strings.Split(out, "\n") {
		m := wmctrlLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		desktop, _ := strconv.Atoi(m[2])
		if desktop < 0 {
			continue
		}
		x, _ := strconv.Atoi(m[3])
		y, _ := strconv.Atoi(m[4])
		w, _ := strconv.Atoi(m[5])
		h, _ := strconv.Atoi(m[6])
		rows = append(rows, wmctrlRow{
			id:       normalizeWindowID(m[1]),
			desktop:  desktop,
			geometry: schemas.Geometry{X: x, Y: y, Width: w, Height: h},
			host:     m[7],
			title:    strings.TrimSpace(m[8]),
		})
	}
	return rows
}

// parseWindowProps extracts the PID and WM_CLASS (instance, class) from xprop output.
func parseWindowProps(out string) (pid int, instance, class string) {
	if m := xpropPID.FindStringSubmatch(out); m != nil {
		pid, _ = strconv.Atoi(m[1])
	}
	if m := xpropClass.FindStringSubmatch(out); m != nil {
		instance, class = m[1], m[2]
	}
	return pid, instance, class
}

// parseActiveWindow returns the normalized id from `xprop -root _NET_ACTIVE_WINDOW`,
// or "" when nothing is focused.
func parseActiveWindow(out string) string {
	m := xpropActiveWin.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	id := normalizeWindowID(m[1])
	if id == normalizeWindowID("0x0") {
		return ""
	}
	return id
}

// normalizeWindowID renders ids in one canonical form so "0x3a00003" and
// "0x03a00003" compare equal.
func normalizeWindowID(id string) string {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(id))
	}
	return fmt.Sprintf("0x%08x", n)
}
