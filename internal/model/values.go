package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/miniapp-auth/internal/apperror"
)

// PhotoURLPrefix is the only origin+path accepted for profile photos.
const PhotoURLPrefix = "https://t.me/i/userpic/"

// ValidationKind classifies why a value object could not be constructed.
type ValidationKind string

const (
	InvalidType   ValidationKind = "invalid_type"
	EmptyValue    ValidationKind = "empty_value"
	InvalidFormat ValidationKind = "invalid_format"
)

// ValidationError is returned by every value-object constructor.
// It matches apperror.ErrValidation through errors.Is.
type ValidationError struct {
	Field   string
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return apperror.ErrValidation
}

func invalid(field string, kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// =========================================================================
// UserID
// =========================================================================

// UserID is the Telegram user identifier. Always >= 0.
type UserID int64

func NewUserID(v int64) (UserID, error) {
	if v < 0 {
		return 0, invalid("id", InvalidFormat, "must be >= 0, got %d", v)
	}
	return UserID(v), nil
}

// ParseUserID parses a decimal string, as found in a token subject.
func ParseUserID(s string) (UserID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalid("id", EmptyValue, "must not be empty")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid("id", InvalidType, "must be an integer, got %q", s)
	}
	return NewUserID(v)
}

func (id UserID) Int64() int64 { return int64(id) }

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// =========================================================================
// Required and optional strings
// =========================================================================

// FirstName is required and non-blank. The original (untrimmed) text is kept.
type FirstName struct {
	value string
}

func NewFirstName(s string) (FirstName, error) {
	if strings.TrimSpace(s) == "" {
		return FirstName{}, invalid("first_name", EmptyValue, "is required")
	}
	return FirstName{value: s}, nil
}

func (n FirstName) String() string { return n.value }

// optional is the shared shape of every optional value object: absent, or
// present with a validated value.
type optional struct {
	value string
	set   bool
}

func (o optional) Value() (string, bool) { return o.value, o.set }

func (o optional) String() string { return o.value }

// Ptr returns nil when absent; the returned pointer is a fresh copy.
func (o optional) Ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func (o optional) IsSet() bool { return o.set }

func newOptionalName(field string, s *string) (optional, error) {
	if s == nil {
		return optional{}, nil
	}
	if strings.TrimSpace(*s) == "" {
		return optional{}, invalid(field, EmptyValue, "must not be blank when provided")
	}
	return optional{value: *s, set: true}, nil
}

type LastName struct{ optional }

func NewLastName(s *string) (LastName, error) {
	o, err := newOptionalName("last_name", s)
	return LastName{o}, err
}

type Username struct{ optional }

func NewUsername(s *string) (Username, error) {
	o, err := newOptionalName("username", s)
	return Username{o}, err
}

// LanguageCode is an optional two-letter code such as "en".
type LanguageCode struct{ optional }

func NewLanguageCode(s *string) (LanguageCode, error) {
	if s == nil {
		return LanguageCode{}, nil
	}
	v := *s
	if utf8.RuneCountInString(v) != 2 {
		return LanguageCode{}, invalid("language_code", InvalidFormat, "must be exactly 2 letters, got %q", v)
	}
	for _, r := range v {
		if !unicode.IsLetter(r) {
			return LanguageCode{}, invalid("language_code", InvalidFormat, "must be exactly 2 letters, got %q", v)
		}
	}
	return LanguageCode{optional{value: v, set: true}}, nil
}

// PhotoURL is an optional https URL on the Telegram userpic CDN.
type PhotoURL struct{ optional }

func NewPhotoURL(s *string) (PhotoURL, error) {
	if s == nil {
		return PhotoURL{}, nil
	}
	v := *s
	u, err := url.Parse(v)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return PhotoURL{}, invalid("photo_url", InvalidFormat, "must be an absolute https URL")
	}
	if !strings.HasPrefix(v, PhotoURLPrefix) {
		return PhotoURL{}, invalid("photo_url", InvalidFormat, "must start with %s", PhotoURLPrefix)
	}
	return PhotoURL{optional{value: v, set: true}}, nil
}
