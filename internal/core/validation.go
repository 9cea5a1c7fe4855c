package core

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"mime"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/go-playground/validator"
)

// decoded image formats accepted for each allowed mime type
var allowedImageFormats = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return validate
}

// validationError turns validator output into an InvalidInput error naming the offending fields.
func validationError(err error) *Error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return newError(KindInvalidInput, err, "invalid input")
	}
	problems := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		problems = append(problems, fmt.Sprintf("%s failed %s", fieldError.Field(), fieldError.Tag()))
	}
	return newError(KindInvalidInput, nil, "invalid input: %s", strings.Join(problems, ", "))
}

// normalizeMimeType drops parameters and case so "image/PNG; q=1" matches the allow-list.
func normalizeMimeType(value string) string {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return mediaType
}

// checkImage decodes only the image header and verifies it matches the declared type.
func checkImage(data []byte, mimeType string) (image.Config, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("image could not be decoded: %w", err)
	}
	if expected := allowedImageFormats[mimeType]; format != expected {
		return image.Config{}, fmt.Errorf("image content is %s but declared as %s", format, mimeType)
	}
	return config, nil
}
