package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/smazurov/failsafe/internal/version"
)

// Upload field names accepted by /upload.
const (
	ImageFirmware  = "firmware"
	ImageFIP       = "fip"
	ImageBL2       = "bl2"
	ImageGPT       = "gpt"
	ImageInitramfs = "initramfs"
)

// UploadRequest describes one image upload.
type UploadRequest struct {
	// Field is the form field naming the image kind, e.g. ImageFirmware.
	Field    string
	FileName string
	Body     io.Reader
	Size     int64
	// MTDLayout selects the partition layout to flash with; empty keeps
	// the server's default.
	MTDLayout string
	// Progress, when set, is called as bytes of the image are sent.
	Progress func(sent, total int64)
}

// UploadResult is the server's summary of a validated image.
type UploadResult struct {
	Size      string `json:"size"`
	MD5       string `json:"md5"`
	MTDLayout string `json:"mtd_layout,omitempty"`
}

// DoFlash asks the server to commit the uploaded image. A nil error means
// the server answered commit_accepted; any other answer is a *RejectedError.
func (c *Client) DoFlash(ctx context.Context) error {
	token, err := c.post(ctx, "/doflash", nil)
	if err == nil && token != TokenCommitAccepted {
		err = &RejectedError{Endpoint: "/doflash", Token: token}
	}
	observe("/doflash", err)
	return err
}

// Upload streams an image to /upload and returns the server's validation.
func (c *Client) Upload(ctx context.Context, ur UploadRequest) (*UploadResult, error) {
	if ur.Field == "" {
		ur.Field = ImageFirmware
	}
	if ur.FileName == "" {
		ur.FileName = ur.Field + ".bin"
	}

	// The server needs a Content-Length, so the multipart envelope is
	// rendered around the image instead of piping it.
	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	if _, err := mw.CreateFormFile(ur.Field, ur.FileName); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}

	var tail bytes.Buffer
	tail.WriteString("\r\n")
	tw := multipart.NewWriter(&tail)
	if err := tw.SetBoundary(mw.Boundary()); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	if ur.MTDLayout != "" {
		if err := tw.WriteField("mtd_layout", ur.MTDLayout); err != nil {
			return nil, fmt.Errorf("encode upload: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("encode upload: %w", err)
	}
	// tw.Close always prefixes the closing delimiter with CRLF; with no
	// parts written that doubles the one added above.
	tailBytes := tail.Bytes()
	if ur.MTDLayout == "" {
		tailBytes = tailBytes[2:]
	}

	image := &progressReader{r: ur.Body, total: ur.Size, progress: ur.Progress}
	body := io.MultiReader(&head, image, bytes.NewReader(tailBytes))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), body)
	if err != nil {
		return nil, &TransportError{Endpoint: "/upload", Cause: err}
	}
	req.ContentLength = int64(head.Len()) + ur.Size + int64(len(tailBytes))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.upload.Do(req)
	if err != nil {
		err = &TransportError{Endpoint: "/upload", Cause: err}
		observe("/upload", err)
		return nil, err
	}
	text, err := readBody("/upload", resp)
	if err == nil && text == TokenUploadFail {
		err = &RejectedError{Endpoint: "/upload", Token: text}
	}
	observe("/upload", err)
	if err != nil {
		return nil, err
	}

	result, err := ParseUploadResult(text)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Image validated", "field", ur.Field, "size", result.Size, "md5", result.MD5)
	return result, nil
}

// ParseUploadResult decodes an /upload answer. Newer servers reply with
// JSON, older ones with "size md5 [layout]".
func ParseUploadResult(text string) (*UploadResult, error) {
	if strings.HasPrefix(text, "{") {
		var raw struct {
			Size      json.Number `json:"size"`
			MD5       string      `json:"md5"`
			MTDLayout string      `json:"mtd_layout"`
		}
		if err := json.Unmarshal([]byte(text), &raw); err == nil {
			return &UploadResult{Size: raw.Size.String(), MD5: raw.MD5, MTDLayout: raw.MTDLayout}, nil
		}
	}

	parts := strings.Fields(text)
	if len(parts) < 2 {
		return nil, fmt.Errorf("unrecognized upload response %q", text)
	}
	result := &UploadResult{Size: parts[0], MD5: parts[1]}
	if len(parts) > 2 {
		result.MTDLayout = parts[2]
	}
	return result, nil
}

// SizeBytes returns the reported size as an integer, or -1 if unparsable.
func (r *UploadResult) SizeBytes() int64 {
	n, err := strconv.ParseInt(r.Size, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

type progressReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil {
		p.sent += int64(n)
		p.progress(p.sent, p.total)
	}
	return n, err
}
