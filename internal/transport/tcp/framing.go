package tcp

import (
	"bufio"
	"io"

	"github.com/vovakirdan/linechat-server/internal/core"
)

// DefaultMaxFrameSize bounds a single line when no limit is configured.
const DefaultMaxFrameSize = 4096

// ErrFrameTooLarge is returned for lines longer than the configured limit.
var ErrFrameTooLarge = core.NewError(core.ErrCodeProtocol, "frame exceeds maximum size")

// lineReader reads newline-terminated frames. A trailing "\r" is dropped.
type lineReader struct {
	r   *bufio.Reader
	max int
}

func newLineReader(r io.Reader, max int) *lineReader {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	return &lineReader{r: bufio.NewReaderSize(r, max+2), max: max}
}

// ReadLine blocks until a full frame is available.
func (l *lineReader) ReadLine() (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := l.r.ReadLine()
		if err != nil {
			return "", err
		}
		buf = append(buf, chunk...)
		if len(buf) > l.max {
			return "", ErrFrameTooLarge
		}
		if !isPrefix {
			return string(buf), nil
		}
	}
}
