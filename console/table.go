package console

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"vmsim/frames"
)

var frameColumns = []struct {
	title string
	width int
}{
	{"FRAME", 5},
	{"PID", 5},
	{"PAGE", 5},
	{"AGE", 5},
	{"THREAD", 16},
}

// FrameTable renders the inverted page table, one frame per line. Free frames
// show a dash in every column. Thread names are cut to fit width cells.
func FrameTable(entries []frames.Entry, width int) string {
	var sb strings.Builder
	cells := make([]string, len(frameColumns))

	for i, col := range frameColumns {
		cells[i] = col.title
	}
	writeRow(&sb, cells, width)

	for n, e := range entries {
		cells[0] = strconv.Itoa(n)
		if !e.Owned() {
			for i := 1; i < len(cells); i++ {
				cells[i] = "-"
			}
		} else {
			cells[1] = strconv.Itoa(e.PID)
			cells[2] = strconv.Itoa(e.Page)
			cells[3] = strconv.Itoa(e.Age)
			cells[4] = "-"
			if e.Thread != nil {
				cells[4] = e.Thread.Name()
			}
		}
		writeRow(&sb, cells, width)
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, cells []string, width int) {
	var line strings.Builder
	for i, c := range cells {
		w := frameColumns[i].width
		if i > 0 {
			line.WriteString(" ")
		}
		line.WriteString(runewidth.FillRight(runewidth.Truncate(c, w, "…"), w))
	}
	row := strings.TrimRight(line.String(), " ")
	if width > 0 {
		row = runewidth.Truncate(row, width, "")
	}
	sb.WriteString(row)
	sb.WriteString("\n")
}
