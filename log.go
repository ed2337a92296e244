package ddnsclient

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

var discard = log.New(io.Discard, "", 0)

// NewConsoleLogger returns a logger that stamps each line with the local time as "[15:04:05] ".
func NewConsoleLogger(w io.Writer) *log.Logger {
	return log.New(&timestampWriter{w: w, now: time.Now}, "", 0)
}

type timestampWriter struct {
	w   io.Writer
	now func() time.Time
}

// Write is called once per log line; log.Logger serializes the calls.
func (t *timestampWriter) Write(p []byte) (int, error) {
	if _, err := fmt.Fprintf(t.w, "[%s] ", t.now().Format("15:04:05")); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

func (c *client) infof(format string, v ...any)  { c.logger.Printf("INFO: "+format, v...) }
func (c *client) errorf(format string, v ...any) { c.logger.Printf("ERROR: "+format, v...) }

func (c *client) debugf(format string, v ...any) {
	if c.debug {
		c.logger.Printf("DEBUG: "+format, v...)
	}
}

// logError logs err under context, along with the server's answer when there was one.
func (c *client) logError(context string, err error) {
	c.errorf("%s: %s", context, err)
	var se *StatusError
	if errors.As(err, &se) {
		c.errorf("Server response: status=%d data=%v", se.StatusCode, se.Body)
		c.debugf("Server response headers: %v", se.Header)
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		c.debugf("caused by: %s", cause)
	}
}

func minutes(d time.Duration) string {
	return fmt.Sprintf("%g", d.Minutes())
}
