package remote

import (
	"NiralaChat/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SendFile streams f as a multipart upload, reporting progress on every
// percentage change of the bytes handed to the transport.
func (c *Client) SendFile(ctx context.Context, conversationID string, f FileUpload, onProgress ProgressFunc) (model.Message, error) {
	if f.Body == nil {
		return model.Message{}, errors.New("remote: file body must not be nil")
	}
	if strings.TrimSpace(f.Name) == "" {
		return model.Message{}, errors.New("remote: file name must not be empty")
	}

	progress := newProgressReporter(f.Size, onProgress)
	progress.report(0)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pw.CloseWithError(writeMultipart(mw, f, progress))
	}()

	u := c.conversationURL(conversationID, "/files")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		wg.Wait()
		return model.Message{}, fmt.Errorf("remote: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(ctx, req, u)
	// Unblock the writer if the transport stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	wg.Wait()
	if err != nil {
		c.logger.Warn("file upload failed",
			zap.String("conversation_id", conversationID),
			zap.String("file", f.Name),
			zap.Error(err),
		)
		return model.Message{}, fmt.Errorf("remote: upload file: %w", err)
	}

	msg, err := decodeMessage(raw)
	if err != nil {
		return model.Message{}, err
	}
	progress.report(100)
	return msg, nil
}

func writeMultipart(mw *multipart.Writer, f FileUpload, progress *progressReporter) error {
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, &countingReader{r: f.Body, onRead: progress.add}); err != nil {
		return err
	}
	return mw.Close()
}

type countingReader struct {
	r      io.Reader
	onRead func(n int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.onRead(n)
	}
	return n, err
}

type progressReporter struct {
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	sent int64
	last int
}

func newProgressReporter(total int64, fn ProgressFunc) *progressReporter {
	return &progressReporter{total: total, fn: fn, last: -1}
}

func (p *progressReporter) add(n int) {
	if p.total <= 0 {
		return
	}
	p.mu.Lock()
	p.sent += int64(n)
	pct := int(p.sent * 100 / p.total)
	p.mu.Unlock()
	// The last percent is only reported once the server confirmed the upload.
	if pct >= 100 {
		pct = 99
	}
	p.report(pct)
}

func (p *progressReporter) report(pct int) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.fn(pct)
}
