// Package stream forwards subprocess output to the Conductor line by line.
package stream

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/lapdev/wsagent/internal/api"
)

// Conductor receives build output lines. Implemented by the reverse RPC
// client of the connection that requested the build.
type Conductor interface {
	UpdateBuildRepoStdout(target api.BuildTarget, line string) error
	UpdateBuildRepoStderr(target api.BuildTarget, line string) error
}

// StderrLog is the captured stderr of a build, shared between the reader
// goroutine and the caller. The caller reads it only after the child has
// exited.
type StderrLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *StderrLog) append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

// Lines returns a copy of the captured lines.
func (l *StderrLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// String joins the captured lines for inclusion in error reports.
func (l *StderrLog) String() string {
	return strings.Join(l.Lines(), "\n")
}

// Forward detaches two goroutines that read the streams line by line,
// trim trailing whitespace, and push each line to the Conductor. Stderr
// lines are also captured in the returned log. The goroutines exit when
// their stream closes; Forward never waits for the child.
func Forward(stdout, stderr io.Reader, conductor Conductor, target api.BuildTarget) *StderrLog {
	if stdout != nil {
		go func() {
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := strings.TrimRight(scanner.Text(), " \t\r")
				_ = conductor.UpdateBuildRepoStdout(target, line)
			}
		}()
	}

	log := &StderrLog{}
	if stderr != nil {
		go func() {
			scanner := bufio.NewScanner(stderr)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := strings.TrimRight(scanner.Text(), " \t\r")
				_ = conductor.UpdateBuildRepoStderr(target, line)
				log.append(line)
			}
		}()
	}
	return log
}
