package cookies

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Codec converts a typed value to and from its cookie string.
type Codec[T any] struct {
	Encode func(T) (string, error)
	Decode func(string) (T, error)
}

// JSON stores a value as a JSON document, matching cookies written with
// JSON.stringify.
func JSON[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		Decode: func(s string) (T, error) {
			var v T
			err := json.Unmarshal([]byte(s), &v)
			return v, err
		},
	}
}

// String stores the value verbatim.
func String() Codec[string] {
	return Codec[string]{
		Encode: func(v string) (string, error) { return v, nil },
		Decode: func(s string) (string, error) { return s, nil },
	}
}

// Int stores a base-10 integer.
func Int() Codec[int] {
	return Codec[int]{
		Encode: func(v int) (string, error) { return strconv.Itoa(v), nil },
		Decode: strconv.Atoi,
	}
}

// Key is a named, typed cookie with its own lifetime and validation.
type Key[T any] struct {
	Name  string
	TTL   time.Duration
	Codec Codec[T]
	// Validate rejects decoded values that do not fit the key's schema.
	Validate func(T) error
}

// Get reads and decodes the key. A missing cookie, an undecodable value, or
// a value failing validation all read as absent; the latter two are logged.
func (k Key[T]) Get(j Jar) (T, bool) {
	var zero T
	raw, ok := j.Get(k.Name)
	if !ok || raw == "" {
		return zero, false
	}
	v, err := k.decode(raw)
	if err != nil {
		zap.L().Warn("cookies: ignoring malformed value",
			zap.String("cookie", k.Name),
			zap.Error(err),
		)
		return zero, false
	}
	return v, true
}

func (k Key[T]) decode(raw string) (T, error) {
	var zero T
	s, err := url.PathUnescape(raw)
	if err != nil {
		return zero, eris.Wrap(err, "cookies: unescape")
	}
	v, err := k.Codec.Decode(s)
	if err != nil {
		return zero, eris.Wrap(err, "cookies: decode")
	}
	if k.Validate != nil {
		if err := k.Validate(v); err != nil {
			return zero, eris.Wrap(err, "cookies: validate")
		}
	}
	return v, nil
}

// Set validates, encodes, and writes the key with path "/" and the key's TTL.
func (k Key[T]) Set(j Jar, v T) error {
	if k.Validate != nil {
		if err := k.Validate(v); err != nil {
			return eris.Wrapf(err, "cookies: set %s", k.Name)
		}
	}
	s, err := k.Codec.Encode(v)
	if err != nil {
		return eris.Wrapf(err, "cookies: encode %s", k.Name)
	}
	j.Set(&http.Cookie{
		Name:    k.Name,
		Value:   encodeURIComponent(s),
		Path:    "/",
		Expires: time.Now().Add(k.TTL),
		MaxAge:  int(k.TTL / time.Second),
	})
	return nil
}

// Clear expires the cookie.
func (k Key[T]) Clear(j Jar) {
	j.Set(&http.Cookie{Name: k.Name, Value: "", Path: "/", MaxAge: -1})
}

// encodeURIComponent escapes s the way the browser helper does, so values
// round-trip with cookies the site writes itself.
func encodeURIComponent(s string) string {
	return url.PathEscape(s)
}
