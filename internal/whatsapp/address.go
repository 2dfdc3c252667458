package whatsapp

import (
	"net/url"
	"path"
	"strings"

	"escalafin-messaging/internal/conversation"
)

// FormatChatID converts a phone number into a WAHA chat id: non-digits are stripped,
// the country code is prefixed to bare 10-digit national numbers and suffix is appended.
func FormatChatID(phone, countryCode, suffix string) string {
	digits := conversation.NormalizeDigits(phone)
	if len(digits) == 10 {
		digits = countryCode + digits
	}
	return digits + suffix
}

var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
}

const defaultMimeType = "application/octet-stream"

// MimeTypeFor infers the MIME type of a media URL from its extension.
func MimeTypeFor(mediaURL string) string {
	ext := strings.ToLower(path.Ext(urlPath(mediaURL)))
	if m, ok := mimeByExtension[ext]; ok {
		return m
	}
	return defaultMimeType
}

// FileNameFor returns the last path segment of a media URL.
func FileNameFor(mediaURL string) string {
	name := path.Base(urlPath(mediaURL))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	return raw
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
