// Package extract implements the typed extractor catalog (component E):
// accessors that materialise handler parameters from a RequestView,
// short-circuiting a tuple of extractors on the first error. Field-level
// constraint validation beyond type coercion is delegated to
// go-playground/validator/v10.
package extract

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/archimedes-run/archimedes/inject"
	"github.com/archimedes-run/archimedes/middleware"
	"github.com/go-playground/validator/v10"
)

// Source is where an extraction failure originated.
type Source string

const (
	SourcePath        Source = "path"
	SourceQuery       Source = "query"
	SourceBody        Source = "body"
	SourceHeader      Source = "header"
	SourceContentType Source = "content-type"
	SourceOther       Source = "other"
)

// Kind is the failure category, mapped to an HTTP status by the invoker.
type Kind string

const (
	KindMissing              Kind = "missing"
	KindInvalidType          Kind = "invalid-type"
	KindValidation           Kind = "validation"
	KindDeserialization      Kind = "deserialization"
	KindPayloadTooLarge      Kind = "payload-too-large"
	KindUnsupportedMediaType Kind = "unsupported-media-type"
	KindCustom               Kind = "custom"
)

// Error is the common extraction failure shape every extractor maps into.
type Error struct {
	ErrSource Source
	ErrKind   Kind
	Field     string
	Message   string
}

func (e *Error) Error() string { return e.Message }

// Status maps an extraction failure kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.ErrKind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindCustom:
		return http.StatusInternalServerError
	default: // missing, invalid-type, deserialization
		return http.StatusBadRequest
	}
}

const defaultMaxJSONBytes = 1 << 20 // 1 MiB

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Extractor is a single accessor: given a RequestView, produce T or an
// *Error. Tuple composition is modeled as a Go function composing several
// Extractor calls in order, short-circuiting on the first error — there is
// no separate tuple type since Go lacks variadic generics over types.
type Extractor[T any] func(req *middleware.RequestView) (T, *Error)

// Path deserialises the path-parameter map into T via a decode function
// supplied by the caller (generated from the operation's path template at
// registration time).
func Path[T any](decode func(params map[string]string) (T, error)) Extractor[T] {
	return func(req *middleware.RequestView) (T, *Error) {
		var zero T
		v, err := decode(req.PathParams)
		if err != nil {
			return zero, &Error{ErrSource: SourcePath, ErrKind: KindInvalidType, Message: err.Error()}
		}
		return v, nil
	}
}

// Query deserialises the URL query string into T.
func Query[T any](decode func(values url.Values) (T, error)) Extractor[T] {
	return func(req *middleware.RequestView) (T, *Error) {
		var zero T
		values, err := url.ParseQuery(strings.TrimPrefix(queryString(req.URI), "?"))
		if err != nil {
			return zero, &Error{ErrSource: SourceQuery, ErrKind: KindDeserialization, Message: "malformed query string"}
		}
		v, err := decode(values)
		if err != nil {
			return zero, &Error{ErrSource: SourceQuery, ErrKind: KindDeserialization, Message: err.Error()}
		}
		return v, nil
	}
}

func queryString(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[i:]
	}
	return ""
}

// JSONOptions configures a Json extractor instance.
type JSONOptions struct {
	MaxBytes int
}

// Json parses and validates a JSON request body into T, size-limited to 1
// MiB by default (configurable per-type at registration).
func Json[T any](opts JSONOptions) Extractor[T] {
	max := opts.MaxBytes
	if max <= 0 {
		max = defaultMaxJSONBytes
	}
	return func(req *middleware.RequestView) (T, *Error) {
		var zero T
		if len(req.Body) == 0 {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindMissing, Message: "request body is empty"}
		}
		if len(req.Body) > max {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindPayloadTooLarge, Message: "request body exceeds size limit"}
		}
		var v T
		if err := json.Unmarshal(req.Body, &v); err != nil {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindDeserialization, Message: err.Error()}
		}
		if err := structValidator.Struct(v); err != nil {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindValidation, Message: err.Error()}
		}
		return v, nil
	}
}

// Form parses a URL-encoded body into T.
func Form[T any](decode func(values url.Values) (T, error)) Extractor[T] {
	return func(req *middleware.RequestView) (T, *Error) {
		var zero T
		if len(req.Body) == 0 {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindMissing, Message: "request body is empty"}
		}
		if len(req.Body) > defaultMaxJSONBytes {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindPayloadTooLarge, Message: "request body exceeds size limit"}
		}
		values, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindDeserialization, Message: "malformed form body"}
		}
		v, err := decode(values)
		if err != nil {
			return zero, &Error{ErrSource: SourceBody, ErrKind: KindDeserialization, Message: err.Error()}
		}
		return v, nil
	}
}

// RawBody hands back the body bytes unmodified; it never fails.
func RawBody(req *middleware.RequestView) ([]byte, *Error) {
	return req.Body, nil
}

// BodyString decodes the body as UTF-8 text.
func BodyString(req *middleware.RequestView) (string, *Error) {
	if !utf8.Valid(req.Body) {
		return "", &Error{ErrSource: SourceBody, ErrKind: KindInvalidType, Message: "body is not valid UTF-8"}
	}
	return string(req.Body), nil
}

// Header extracts a single header value parsed into T via decode.
func Header[T any](name string, decode func(value string) (T, error)) Extractor[T] {
	return func(req *middleware.RequestView) (T, *Error) {
		var zero T
		raw := req.Header.Get(name)
		if raw == "" {
			return zero, &Error{ErrSource: SourceHeader, ErrKind: KindMissing, Field: name, Message: "header " + name + " is required"}
		}
		v, err := decode(raw)
		if err != nil {
			return zero, &Error{ErrSource: SourceHeader, ErrKind: KindInvalidType, Field: name, Message: err.Error()}
		}
		return v, nil
	}
}

// Cookies returns a name→value map parsed from the Cookie header.
func Cookies(req *middleware.RequestView) (map[string]string, *Error) {
	out := make(map[string]string)
	header := http.Header{"Cookie": req.Header.Values("Cookie")}
	r := &http.Request{Header: header}
	for _, c := range r.Cookies() {
		out[c.Name] = c.Value
	}
	return out, nil
}

// MultipartField is one field of a lazily-iterated multipart body.
type MultipartField struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// Multipart parses a multipart/form-data body into a sequence of fields.
func Multipart(req *middleware.RequestView) ([]MultipartField, *Error) {
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, &Error{ErrSource: SourceContentType, ErrKind: KindUnsupportedMediaType, Message: "expected multipart content type"}
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, &Error{ErrSource: SourceContentType, ErrKind: KindUnsupportedMediaType, Message: "multipart boundary missing"}
	}

	reader := multipart.NewReader(strings.NewReader(string(req.Body)), boundary)
	var fields []MultipartField
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{ErrSource: SourceBody, ErrKind: KindCustom, Message: "multipart protocol error: " + err.Error()}
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, &Error{ErrSource: SourceBody, ErrKind: KindCustom, Message: "multipart protocol error: " + err.Error()}
		}
		fields = append(fields, MultipartField{
			Name:        part.FormName(),
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return fields, nil
}

// Reflect builds an Extractor[T] by inspecting T's struct tags instead of
// requiring a hand-written decode function per operation — the native
// typed handler flavour's reflection-based path. A field tagged
// `path:"name"` is filled from the path parameter "name", `query:"name"`
// from the query string (absent means left at its zero value), and
// `header:"Name"` from the request header. Any field with none of those
// tags is treated as a JSON body field and filled by unmarshalling the
// request body into T as a whole; at most one body shape is supported per
// T, matching encoding/json's own single-pass unmarshal semantics. Struct
// tag validation is still enforced afterward via go-playground/validator,
// the same as Json[T].
func Reflect[T any]() Extractor[T] {
	typ := reflect.TypeOf(*new(T))
	hasBodyFields := false
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		_, path := f.Tag.Lookup("path")
		_, query := f.Tag.Lookup("query")
		_, header := f.Tag.Lookup("header")
		if !path && !query && !header {
			hasBodyFields = true
		}
	}

	return func(req *middleware.RequestView) (T, *Error) {
		var out T
		v := reflect.ValueOf(&out).Elem()

		if hasBodyFields && len(req.Body) > 0 {
			if err := json.Unmarshal(req.Body, &out); err != nil {
				return out, &Error{ErrSource: SourceBody, ErrKind: KindDeserialization, Message: err.Error()}
			}
		}

		var query url.Values
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			field := v.Field(i)

			if name, ok := f.Tag.Lookup("path"); ok {
				raw, present := req.PathParams[name]
				if !present {
					return out, &Error{ErrSource: SourcePath, ErrKind: KindMissing, Field: name, Message: "path parameter " + name + " is required"}
				}
				if err := assignString(field, raw); err != nil {
					return out, &Error{ErrSource: SourcePath, ErrKind: KindInvalidType, Field: name, Message: err.Error()}
				}
				continue
			}
			if name, ok := f.Tag.Lookup("query"); ok {
				if query == nil {
					var err error
					query, err = url.ParseQuery(strings.TrimPrefix(queryString(req.URI), "?"))
					if err != nil {
						return out, &Error{ErrSource: SourceQuery, ErrKind: KindDeserialization, Message: "malformed query string"}
					}
				}
				raw := query.Get(name)
				if raw == "" {
					continue
				}
				if err := assignString(field, raw); err != nil {
					return out, &Error{ErrSource: SourceQuery, ErrKind: KindInvalidType, Field: name, Message: err.Error()}
				}
				continue
			}
			if name, ok := f.Tag.Lookup("header"); ok {
				raw := req.Header.Get(name)
				if raw == "" {
					return out, &Error{ErrSource: SourceHeader, ErrKind: KindMissing, Field: name, Message: "header " + name + " is required"}
				}
				if err := assignString(field, raw); err != nil {
					return out, &Error{ErrSource: SourceHeader, ErrKind: KindInvalidType, Field: name, Message: err.Error()}
				}
			}
		}

		if err := structValidator.Struct(out); err != nil {
			return out, &Error{ErrSource: SourceBody, ErrKind: KindValidation, Message: err.Error()}
		}
		return out, nil
	}
}

// assignString coerces a string into the given settable field, covering the
// scalar kinds struct tags realistically bind to (string/int/uint/bool/float).
func assignString(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return &Error{ErrKind: KindInvalidType, Message: "unsupported field kind for reflective binding: " + field.Kind().String()}
	}
	return nil
}

// Inject resolves a shared singleton of type T from the Container.
func Inject[T any](req *middleware.RequestView) (T, *Error) {
	var zero T
	if req.Container == nil {
		return zero, &Error{ErrSource: SourceOther, ErrKind: KindMissing, Message: "no container attached to request"}
	}
	v, err := inject.Resolve[T](req.Container)
	if err != nil {
		return zero, &Error{ErrSource: SourceOther, ErrKind: KindMissing, Message: err.Error()}
	}
	return v, nil
}

// Option converts an extractor's failure into a nil pointer rather than
// aborting the tuple.
func Option[T any](e Extractor[T]) Extractor[*T] {
	return func(req *middleware.RequestView) (*T, *Error) {
		v, err := e(req)
		if err != nil {
			return nil, nil
		}
		return &v, nil
	}
}

// Result hands the handler an explicit (value, error) pair instead of
// aborting the tuple on extractor failure.
type Result[T any] struct {
	Value T
	Err   *Error
}

func AsResult[T any](e Extractor[T]) Extractor[Result[T]] {
	return func(req *middleware.RequestView) (Result[T], *Error) {
		v, err := e(req)
		return Result[T]{Value: v, Err: err}, nil
	}
}
