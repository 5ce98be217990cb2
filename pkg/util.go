package pkg

import (
	"errors"
	"io"
	"net/http"
	"os"

	"go.uber.org/multierr"
)

// ReadUserIP tries to get the original client IP from the standard
// forwarding headers, falling back to the remote address.
func ReadUserIP(r *http.Request) (string, error) {
	ipAddress := r.Header.Get("X-Real-Ip")
	if ipAddress == "" {
		ipAddress = r.Header.Get("X-Forwarded-For")
	}
	if ipAddress == "" {
		ipAddress = r.RemoteAddr
	}
	if ipAddress == "" {
		return "", errors.New("ip address not found")
	}
	return ipAddress, nil
}

// PathExists returns whether the given file or directory exists
func PathExists(path string, isDir bool) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if (isDir && stat.IsDir()) || (!isDir && !stat.IsDir()) {
		return true, nil
	}
	return false, err
}

// CombinedWriter writes the same bytes to all given writers, used to
// tee logs to stdout and the rotated log file.
type CombinedWriter struct {
	writers []io.Writer
}

func NewCombinedWriter(writers ...io.Writer) *CombinedWriter {
	return &CombinedWriter{
		writers: writers,
	}
}

func (cw *CombinedWriter) Write(p []byte) (n int, err error) {
	for _, w := range cw.writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Combine(err, werr)
			continue
		}
		n = written
	}
	return n, err
}
