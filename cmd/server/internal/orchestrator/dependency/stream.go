package dependency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Stream is the stdout of a running local command.
//
// Reading to io.EOF and then calling Close reports the process exit status.
// Closing before EOF abandons the output: the process is killed and Close
// returns nil.
type Stream struct {
	reader  io.ReadCloser
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	cancel  context.CancelFunc
	started time.Time
	eof     bool
	closed  bool
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if errors.Is(err, io.EOF) {
		s.eof = true
	}
	return n, err
}

// Close releases the pipe and waits for the process.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()

	if !s.eof {
		if s.cmd.Process != nil {
			_ = syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL)
		}
		_ = s.cmd.Wait()
		return nil
	}

	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("%s exited with code %d: %s", s.cmd.Path, getExitCode(err), strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// Elapsed returns the time since the process started.
func (s *Stream) Elapsed() time.Duration {
	return time.Since(s.started)
}
