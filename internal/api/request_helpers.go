package api

import (
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/api/shared"
	"github.com/vietguard/vietguard-api/internal/domain"
	"github.com/vietguard/vietguard-api/internal/platform/scanapi"
	"github.com/vietguard/vietguard-api/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into req and validates it, writing a
// 400 response on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, req interface{}) bool {
	if err := shared.DecodeJSON(r, req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := v.Struct(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// getPathParam returns a required, non-blank path parameter.
func getPathParam(r *http.Request, paramName string) (string, error) {
	value := strings.TrimSpace(chi.URLParam(r, paramName))
	if value == "" {
		return "", domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}
	return value, nil
}

// clientAddress classifies the caller's address as IPv4 or IPv6.
func clientAddress(r *http.Request) domain.ClientAddress {
	ip := net.ParseIP(shared.ClientIP(r))
	switch {
	case ip == nil:
		return domain.ClientAddress{}
	case ip.To4() != nil:
		return domain.ClientAddress{IPv4: ip.String()}
	default:
		return domain.ClientAddress{IPv6: ip.String()}
	}
}

// multipartUpload is a parsed scan submission form.
type multipartUpload struct {
	MemberName string
	Upload     service.Upload
	file       multipart.File
	form       *multipart.Form
}

// Close releases the uploaded file and any temporary files.
func (u *multipartUpload) Close() {
	if u.file != nil {
		_ = u.file.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// formValue returns the first non-empty value among keys.
func formValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.FormValue(k)); v != "" {
			return v
		}
	}
	return ""
}

// parseUpload reads a multipart submission with a "file" part plus
// memberName and clientIp fields. Field names are accepted in the casing
// the scanning API itself uses too. The caller must Close the result.
func parseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*multipartUpload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}

	u := &multipartUpload{form: r.MultipartForm}
	u.MemberName = formValue(r, "memberName", "MemberName", "email")

	clientIP := formValue(r, "clientIp", "ClientIp")
	if clientIP == "" {
		clientIP = shared.ClientIP(r)
	} else if net.ParseIP(clientIP) == nil {
		u.Close()
		return nil, domain.NewValidationError("clientIp", "has invalid format", domain.ErrValidation)
	}

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		file, hdr, err = r.FormFile("File")
	}
	if err != nil {
		u.Close()
		if errors.Is(err, http.ErrMissingFile) {
			return nil, scanapi.ErrMissingFile
		}
		return nil, err
	}
	u.file = file

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" {
		contentType = scanapi.DefaultContentType
	}
	u.Upload = service.Upload{
		FileName:    hdr.Filename,
		ContentType: contentType,
		ClientIP:    clientIP,
		File:        file,
	}
	return u, nil
}

// handleUploadError writes the response for a failed parseUpload.
func handleUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge, "File is too large", err)
	case errors.Is(err, scanapi.ErrMissingFile):
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "File is required", err)
	case MapErrorToStatusCode(err) == http.StatusBadRequest:
		HandleAPIError(w, r, err, "")
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
	}
}
