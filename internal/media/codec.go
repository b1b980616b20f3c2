package media

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gemini-composer/internal/content"
)

var (
	ErrEmpty           = errors.New("image file is empty")
	ErrNotImage        = errors.New("file is not an image")
	ErrNothingToExport = errors.New("nothing to download yet")

	ErrNoImageToExport = fmt.Errorf("%w: no image", ErrNothingToExport)
	ErrNoTextToExport  = fmt.Errorf("%w: no text", ErrNothingToExport)
)

type Upload struct {
	Data     string
	MimeType string
}

// EncodeUpload turns raw file bytes into the base64 payload stored on an item.
// The declared MIME type wins; otherwise the bytes are sniffed.
func EncodeUpload(data []byte, declaredMime string) (Upload, error) {
	if len(data) == 0 {
		return Upload{}, ErrEmpty
	}

	mimeType := cleanMime(declaredMime)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = cleanMime(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Upload{}, errors.Wrap(ErrNotImage, mimeType)
	}

	return Upload{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}, nil
}

func Decode(data string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(stripDataURLPrefix(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode base64")
	}
	return b, nil
}

func DataURL(data, mimeType string) string {
	if mimeType = cleanMime(mimeType); mimeType == "" {
		mimeType = content.DefaultImageMime
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, data)
}

var dataURLRegex = regexp.MustCompile(`^data:([^;,]+)(;[^,]*)?,`)

// ParseDataURL accepts a data URL or a bare base64 payload; the latter gets
// fallbackMime.
func ParseDataURL(value, fallbackMime string) (Upload, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Upload{}, false
	}

	mimeType := fallbackMime
	if m := dataURLRegex.FindStringSubmatch(value); len(m) >= 2 {
		mimeType = m[1]
	} else if strings.HasPrefix(value, "data:") {
		return Upload{}, false
	}

	data := stripDataURLPrefix(value)
	if data == "" {
		return Upload{}, false
	}
	return Upload{Data: data, MimeType: cleanMime(mimeType)}, true
}

// Extension is the MIME subtype, "png" when there is none.
func Extension(mimeType string) string {
	mimeType = cleanMime(mimeType)
	if _, sub, ok := strings.Cut(mimeType, "/"); ok {
		sub = strings.TrimSpace(sub)
		if i := strings.IndexByte(sub, '+'); i > 0 {
			sub = sub[:i]
		}
		if sub != "" {
			return sub
		}
	}
	return "png"
}

func DownloadFilename(mimeType string, now time.Time) string {
	return fmt.Sprintf("image-%d.%s", now.UnixMilli(), Extension(mimeType))
}

type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Export produces the download for an item: the decoded image for image items,
// the raw text for text items.
func Export(item content.Item, now time.Time) (File, error) {
	if item.Type == content.TypeImage {
		if !item.HasImage() {
			return File{}, ErrNoImageToExport
		}
		data, err := Decode(item.ImageData)
		if err != nil {
			return File{}, err
		}
		mimeType := item.MimeType
		if mimeType == "" {
			mimeType = content.DefaultImageMime
		}
		return File{
			Name:     DownloadFilename(mimeType, now),
			MimeType: mimeType,
			Data:     data,
		}, nil
	}

	if !item.HasText() {
		return File{}, ErrNoTextToExport
	}
	return File{
		Name:     fmt.Sprintf("text-%d.txt", now.UnixMilli()),
		MimeType: "text/plain; charset=utf-8",
		Data:     []byte(item.Text),
	}, nil
}

func cleanMime(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	return value
}

func stripDataURLPrefix(value string) string {
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		return value[idx+1:]
	}
	return value
}
