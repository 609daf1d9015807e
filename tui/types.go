package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/rivo/tview"
)

const bytesPerRow = 16

// DecoderStats is the snapshot the tables render. The refresh goroutine
// writes it, the draw goroutine reads it.
type DecoderStats struct {
	mu     sync.RWMutex
	InSync bool
	demod.Stats
	MarkDB  float64
	SpaceDB float64
}

func (s *DecoderStats) Update(insync bool, stats demod.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InSync = insync
	s.Stats = stats
}

func (s *DecoderStats) SetTones(mark, space float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MarkDB, s.SpaceDB = mark, space
}

type LockTableData struct {
	tview.TableContentReadOnly
	stats *DecoderStats
}

type lockRow struct {
	label string
	value func(s *DecoderStats) string
}

func count(v uint64) string { return fmt.Sprintf("%d", v) }

var lockRows = []lockRow{
	{"Sync lock:", nil},
	{"Locks:", func(s *DecoderStats) string { return count(s.Locks) }},
	{"Locks lost:", func(s *DecoderStats) string { return count(s.LocksLost) }},
	{"Bytes Rx'd:", func(s *DecoderStats) string { return count(s.Bytes) }},
	{"Samples Rx'd:", func(s *DecoderStats) string { return count(s.SamplesIn) }},
	{"Samples dropped:", func(s *DecoderStats) string { return count(s.SampleOverflows) }},
	{"Bytes dropped:", func(s *DecoderStats) string { return count(s.ByteOverflows) }},
	{"Sink errors:", func(s *DecoderStats) string { return count(s.SinkErrors) }},
	{"Mark tone:", func(s *DecoderStats) string { return fmt.Sprintf("%.1f dB", s.MarkDB) }},
	{"Space tone:", func(s *DecoderStats) string { return fmt.Sprintf("%.1f dB", s.SpaceDB) }},
}

func (l *LockTableData) GetRowCount() int {
	return len(lockRows)
}

func (l *LockTableData) GetColumnCount() int {
	return 2
}

func (l *LockTableData) GetCell(row, column int) *tview.TableCell {
	if row < 0 || row >= len(lockRows) {
		return tview.NewTableCell("ERROR")
	}
	if column == 0 {
		return tview.NewTableCell(lockRows[row].label)
	}

	l.stats.mu.RLock()
	defer l.stats.mu.RUnlock()
	if row == 0 {
		color := tcell.ColorGreen
		if !l.stats.InSync {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(fmt.Sprintf("%v", l.stats.InSync)).SetTextColor(color)
	}
	return tview.NewTableCell(lockRows[row].value(l.stats))
}

// HexView is a byte sink keeping the last rows of decoded bytes for display.
type HexView struct {
	mu    sync.Mutex
	rows  int
	data  []byte
	total uint64
}

func NewHexView(rows int) *HexView {
	return &HexView{rows: max(rows, 1)}
}

func (h *HexView) ReceiveByte(b byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data = append(h.data, b)
	// drop whole rows so offsets stay aligned
	if limit := h.rows * bytesPerRow; len(h.data) > limit {
		drop := (len(h.data) - limit + bytesPerRow - 1) / bytesPerRow * bytesPerRow
		h.data = append(h.data[:0], h.data[drop:]...)
		h.total += uint64(drop)
	}
	return nil
}

// Text renders the kept bytes as offset, hex and printable columns.
func (h *HexView) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sb strings.Builder
	for off := 0; off < len(h.data); off += bytesPerRow {
		row := h.data[off:min(off+bytesPerRow, len(h.data))]
		fmt.Fprintf(&sb, "[lightskyblue]%08x[white] ", h.total+uint64(off))
		for i := 0; i < bytesPerRow; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, "%02x ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		printable := make([]byte, len(row))
		for i, b := range row {
			printable[i] = '.'
			if b >= 0x20 && b < 0x7f {
				printable[i] = b
			}
		}
		fmt.Fprintf(&sb, " [green]%s[white]\n", tview.Escape(string(printable)))
	}
	return sb.String()
}
