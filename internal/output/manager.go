package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/arcfetch/internal/utils"
	"golang.org/x/term"
)

const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// TaskOutput is the display state of one gallery.
type TaskOutput struct {
	ID          int
	Label       string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

type Manager struct {
	out         io.Writer
	live        bool // redraw in place; otherwise print one line per finished task
	outputs     map[int]*TaskOutput
	mutex       sync.RWMutex
	numLines    int
	maxStreams  int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	taskCount   int
	displayWg   sync.WaitGroup
	size        sizeFunc
}

// NewManager draws live status on stdout when it is a terminal.
func NewManager() *Manager {
	return NewManagerWithWriter(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func NewManagerWithWriter(out io.Writer, live bool) *Manager {
	return &Manager{
		out:         out,
		live:        live,
		outputs:     make(map[int]*TaskOutput),
		maxStreams:  5,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		size:        terminalSize(out),
	}
}

// Register adds a task in pending state and returns its ID.
func (m *Manager) Register(label string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.taskCount++
	now := time.Now()
	m.outputs[m.taskCount] = &TaskOutput{
		ID:          m.taskCount,
		Label:       label,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}
	return m.taskCount
}

func (m *Manager) update(id int, fn func(info *TaskOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *TaskOutput) {
		if info.Status == StatusPending {
			info.Status = StatusActive
			info.StartTime = time.Now()
		}
		info.Message = message
	})
}

func (m *Manager) width() int {
	w, _ := m.size()
	return w
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

func (m *Manager) AddStreamLine(id int, line string) {
	m.update(id, func(info *TaskOutput) {
		info.StreamLines = append(info.StreamLines, wrapText(line, m.width(), 2+4)...)
		if len(info.StreamLines) > m.maxStreams {
			info.StreamLines = info.StreamLines[len(info.StreamLines)-m.maxStreams:]
		}
	})
}

// SetProgress replaces the stream lines of a task with a progress bar.
func (m *Manager) SetProgress(id int, downloaded, total int64) {
	m.update(id, func(info *TaskOutput) {
		bar := progressBar(downloaded, total, 30)
		elapsed := time.Since(info.StartTime).Seconds()
		text := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(0, downloaded))), utils.FormatBytes(uint64(max(0, total))))
		info.StreamLines = []string{fmt.Sprintf("%s%s %s %s", bar, debugStyle.Render(text), StyleSymbols["bullet"], debugStyle.Render(utils.FormatSpeed(downloaded, elapsed)))}
	})
}

func (m *Manager) finish(id int, status, message string, err error) {
	var line string
	m.update(id, func(info *TaskOutput) {
		info.StreamLines = nil
		info.Complete = true
		info.Status = status
		info.Message = message
		info.Error = err
		if err != nil {
			m.errors = append(m.errors, ErrorReport{Label: info.Label, Error: err, Time: time.Now()})
		}
		if !m.live {
			line = m.renderLine(info, time.Now())
		}
	})
	if line != "" {
		fmt.Fprintln(m.out, line)
	}
}

func (m *Manager) Complete(id int, message string) {
	m.finish(id, StatusSuccess, message, nil)
}

func (m *Manager) Skip(id int, message string) {
	m.finish(id, StatusSkipped, message, nil)
}

func (m *Manager) ReportError(id int, err error) {
	m.finish(id, StatusError, fmt.Sprintf("Failed %s", m.label(id)), err)
}

func (m *Manager) label(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Label
	}
	return ""
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusSkipped:
		return warningStyle.Render(StyleSymbols["skip"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(message)
	case StatusError:
		return errorStyle.Render(message)
	case StatusSkipped:
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) renderLine(info *TaskOutput, now time.Time) string {
	elapsed := now.Sub(info.StartTime)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime)
	}
	message := info.Message
	if message == "" {
		message = info.Label
	}
	return fmt.Sprintf("%s%s %s %s", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.Round(time.Second).String()), styleMessage(info.Status, message))
}

func (m *Manager) sortTasks() (active, pending, completed []*TaskOutput) {
	all := make([]*TaskOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	for _, t := range all {
		switch {
		case t.Complete:
			completed = append(completed, t)
		case t.Status == StatusPending:
			pending = append(pending, t)
		default:
			active = append(active, t)
		}
	}
	return active, pending, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, height := m.size()
	availableLines := height - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	active, pending, completed := m.sortTasks()

	needed := len(completed) + 1
	for _, t := range active {
		needed += 1 + len(t.StreamLines)
	}
	if needed > availableLines {
		keep := max(availableLines-(needed-len(completed)), 0)
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}

	lineCount := 0
	now := time.Now()
	indent := strings.Repeat(" ", 2+4)
	for _, t := range append(completed, active...) {
		if lineCount >= availableLines {
			break
		}
		fmt.Fprintln(m.out, m.renderLine(t, now))
		lineCount++
		for _, line := range t.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
			lineCount++
		}
	}
	if len(pending) > 0 && lineCount < availableLines {
		fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(StatusPending), pendingStyle.Render(fmt.Sprintf("%d galleries waiting...", len(pending))))
		lineCount++
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	if !m.live {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

// StopDisplay draws the final state and prints the summary.
func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.ShowSummary()
}

// Counts returns the number of tasks per terminal status.
func (m *Manager) Counts() (succeeded, skipped, failed int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case StatusSuccess:
			succeeded++
		case StatusSkipped:
			skipped++
		case StatusError:
			failed++
		}
	}
	return succeeded, skipped, failed
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Gallery: %s", err.Label)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	succeeded, skipped, failed := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	total := len(m.outputs)
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+summaryStyle.Render(fmt.Sprintf("Completed %d of %d", succeeded, total)))
	if skipped > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+warningStyle.Render(fmt.Sprintf("Skipped %d of %d", skipped, total)))
	}
	if failed > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
