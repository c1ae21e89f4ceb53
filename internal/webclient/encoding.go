package webclient

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

// codec converts between Go strings and the wire charset of one call.
// A nil enc means UTF-8, which needs no conversion.
type codec struct {
	name string
	enc  encoding.Encoding
}

func lookupCodec(label, fallback string) (codec, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = fallback
	}
	if label == "" {
		label = DefaultEncoding
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return codec{}, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, label)
	}
	if name == "utf-8" {
		return codec{name: name}, nil
	}
	return codec{name: name, enc: enc}, nil
}

func (c codec) encode(s string) (string, error) {
	if c.enc == nil {
		return s, nil
	}
	out, err := c.enc.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("encode to %s: %w", c.name, err)
	}
	return out, nil
}

func (c codec) decode(b []byte) (string, error) {
	if c.enc == nil {
		return string(b), nil
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode from %s: %w", c.name, err)
	}
	return string(out), nil
}

// encodeValues percent-encodes params in the codec's charset. Keys without
// values are dropped.
func (c codec) encodeValues(params url.Values) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	if c.enc == nil {
		return params.Encode(), nil
	}
	converted := make(url.Values, len(params))
	for k, vs := range params {
		ek, err := c.encode(k)
		if err != nil {
			return "", err
		}
		for _, v := range vs {
			ev, err := c.encode(v)
			if err != nil {
				return "", err
			}
			converted[ek] = append(converted[ek], ev)
		}
	}
	return converted.Encode(), nil
}

// appendQuery joins an encoded query onto rawURL, choosing "?" or "&".
func appendQuery(rawURL, query string) string {
	if query == "" {
		return rawURL
	}
	fragment := ""
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL, fragment = rawURL[:i], rawURL[i:]
	}
	switch {
	case !strings.Contains(rawURL, "?"):
		rawURL += "?" + query
	case strings.HasSuffix(rawURL, "?"), strings.HasSuffix(rawURL, "&"):
		rawURL += query
	default:
		rawURL += "&" + query
	}
	return rawURL + fragment
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody writes params as text/plain parts and files as binary parts.
// Fields are emitted in sorted order so bodies are reproducible.
func (c codec) multipartBody(params url.Values, files map[string][]File) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range params[k] {
			ev, err := c.encode(v)
			if err != nil {
				return nil, "", err
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(k)))
			h.Set("Content-Type", "text/plain; charset="+c.name)
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write([]byte(ev)); err != nil {
				return nil, "", err
			}
		}
	}

	fields := make([]string, 0, len(files))
	for k := range files {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, f := range files[field] {
			part, err := w.CreateFormFile(field, f.Name)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(f.Content); err != nil {
				return nil, "", err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
