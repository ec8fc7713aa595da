package voice

import (
	"fmt"
	"io"
	"os/exec"
)

// AudioSource yields frames of float32 samples at 16 kHz mono, the shape a
// capture callback delivers. ReadFrame returns io.EOF when capture ends.
type AudioSource interface {
	ReadFrame() ([]float32, error)
	Close() error
}

// PCMReaderSource adapts a raw PCM16LE byte stream (a file, a pipe) into
// capture frames.
type PCMReaderSource struct {
	r io.ReadCloser
}

func NewPCMReaderSource(r io.ReadCloser) *PCMReaderSource {
	return &PCMReaderSource{r: r}
}

func (s *PCMReaderSource) ReadFrame() ([]float32, error) {
	buf := make([]byte, FrameSamples*2)
	n, err := io.ReadFull(s.r, buf)
	if n == 0 {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	return PCM16ToFloat32(buf[:n]), nil
}

func (s *PCMReaderSource) Close() error {
	return s.r.Close()
}

// ExecSource captures microphone audio by running an external recorder that
// writes raw PCM16LE 16 kHz mono to stdout, e.g. sox's rec or arecord.
type ExecSource struct {
	cmd *exec.Cmd
	pcm *PCMReaderSource
}

// DefaultRecordArgs invokes sox's rec in the format the relay expects.
var DefaultRecordArgs = []string{
	"rec", "-q",
	"-t", "raw",
	"-r", "16000",
	"-e", "signed",
	"-b", "16",
	"-c", "1",
	"-",
}

func NewExecSource(args []string) (*ExecSource, error) {
	if len(args) == 0 {
		args = DefaultRecordArgs
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %q: %w", args[0], err)
	}

	return &ExecSource{
		cmd: cmd,
		pcm: NewPCMReaderSource(stdout),
	}, nil
}

func (s *ExecSource) ReadFrame() ([]float32, error) {
	return s.pcm.ReadFrame()
}

func (s *ExecSource) Close() error {
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			return err
		}
	}
	return s.cmd.Wait()
}
