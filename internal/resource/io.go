package resource

import (
	"context"
	"io"
)

// rateLimitedWriter wraps an io.Writer with the controller's IO limit.
type rateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *Controller
}

func (w *rateLimitedWriter) Write(p []byte) (n int, err error) {
	if err := w.rc.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// LimitWriter returns w throttled by rc, or w itself when no limit is set.
func LimitWriter(ctx context.Context, w io.Writer, rc *Controller) io.Writer {
	if !rc.IOLimited() {
		return w
	}
	return &rateLimitedWriter{ctx: ctx, w: w, rc: rc}
}
