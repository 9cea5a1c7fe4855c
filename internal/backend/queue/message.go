package queue

import (
	"log/slog"
	"strconv"
	"strings"
)

const messageDelimiter = ","

// FormatWorkMessage encodes the work message consumed by the grain size worker.
// The url is not escaped; the worker splits on the delimiter.
func FormatWorkMessage(submissionID int64, imageURL string) string {
	if strings.Contains(imageURL, messageDelimiter) {
		slog.Warn("image url contains the message delimiter; worker parsing will be ambiguous",
			"submission_id", submissionID, "image_url", imageURL)
	}
	return strconv.FormatInt(submissionID, 10) + messageDelimiter + imageURL
}
