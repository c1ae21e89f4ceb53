package webclient_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/webclient"
)

func newTransport(t *testing.T, ts *httptest.Server) *webclient.Transport {
	t.Helper()
	tr := webclient.NewTransport(webclient.Config{}, logging.Nop(), ts.Client())
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// ─── GET ────────────────────────────────────────────────────────────────

func TestTransport_Get_AppendsQueryAndDefaultHeaders(t *testing.T) {
	t.Parallel()
	var gotQuery url.Values
	var gotCT, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotCT = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	params := url.Values{"a": {"1"}, "empty": nil}
	body, err := tr.Get(context.Background(), ts.URL+"/x?pre=0", params, nil, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if body != "ok" {
		t.Errorf("expected body ok, got %q", body)
	}
	if gotQuery.Get("pre") != "0" || gotQuery.Get("a") != "1" {
		t.Errorf("unexpected query %v", gotQuery)
	}
	if _, present := gotQuery["empty"]; present {
		t.Errorf("key without values must not be sent, got %v", gotQuery)
	}
	if gotCT != "application/json" {
		t.Errorf("expected default Content-Type application/json, got %q", gotCT)
	}
	if gotUA != webclient.DefaultUserAgent {
		t.Errorf("expected default User-Agent, got %q", gotUA)
	}
}

func TestTransport_Get_CallerHeadersOverrideDefaults(t *testing.T) {
	t.Parallel()
	var gotCT []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Values("Content-Type")
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	if _, err := tr.Get(context.Background(), ts.URL, nil, h, ""); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(gotCT) != 1 || gotCT[0] != "text/plain" {
		t.Errorf("expected caller Content-Type only, got %v", gotCT)
	}
}

func TestTransport_Get_DecodesCharset(t *testing.T) {
	t.Parallel()
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("缩略图")
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, encoded)
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	body, err := tr.Get(context.Background(), ts.URL, nil, nil, "gbk")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if body != "缩略图" {
		t.Errorf("expected decoded text, got %q", body)
	}
}

func TestTransport_Get_UnknownEncoding(t *testing.T) {
	t.Parallel()
	tr := webclient.NewTransport(webclient.Config{}, nil, nil)
	_, err := tr.Get(context.Background(), "http://127.0.0.1:1", nil, nil, "no-such-charset")
	if !errors.Is(err, webclient.ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}

func TestTransport_Get_ErrorStatusReturnsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "<html>not found</html>")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	body, err := tr.Get(context.Background(), ts.URL, nil, nil, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if body != "<html>not found</html>" {
		t.Errorf("expected the error page body, got %q", body)
	}

	res, err := tr.Do(context.Background(), &webclient.Request{URL: ts.URL}, webclient.ShapeText)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 on the result, got %d", res.StatusCode)
	}
}

func TestTransport_GetBinary_ErrorStatusWithoutEnvelope(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	got, err := tr.GetBinary(context.Background(), ts.URL, nil, nil, "")
	if err != nil {
		t.Fatalf("GetBinary: %v", err)
	}
	if string(got) != "upstream down" {
		t.Errorf("expected raw body, got %q", got)
	}
}

func TestTransport_Get_ConnectionRefusedIsTransportError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := ts.URL
	client := ts.Client()
	ts.Close()

	tr := webclient.NewTransport(webclient.Config{}, logging.Nop(), client)
	_, err := tr.Get(context.Background(), target, nil, nil, "")
	if !webclient.IsTransportError(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if _, ok := webclient.AsServerError(err); ok {
		t.Errorf("transport failure must not be a ServerError")
	}
}

func TestTransport_Do_InvalidRequest(t *testing.T) {
	t.Parallel()
	tr := webclient.NewTransport(webclient.Config{}, nil, nil)
	cases := []*webclient.Request{
		nil,
		{URL: ""},
		{URL: "http://x", Kind: webclient.BodyJSON, Files: map[string][]webclient.File{"f": {{Name: "a"}}}},
		{URL: "http://x", Kind: webclient.BodyForm, Files: map[string][]webclient.File{"f": {{Name: "a"}}}},
		{URL: "http://x", Kind: webclient.BodyForm, JSON: "{}"},
	}
	for i, req := range cases {
		if _, err := tr.Do(context.Background(), req, webclient.ShapeText); !errors.Is(err, webclient.ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

// ─── Binary and status ──────────────────────────────────────────────────

func TestTransport_GetBinary_EnvelopeOn200IsServerError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		_, _ = io.WriteString(w, `{"code":40001,"message":"bad sign"}`)
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	_, err := tr.GetBinary(context.Background(), ts.URL, nil, nil, "")
	se, ok := webclient.AsServerError(err)
	if !ok {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if se.Code != 40001 || se.Message != "bad sign" || se.StatusCode != http.StatusOK {
		t.Errorf("unexpected server error %+v", se)
	}
}

func TestTransport_GetBinary_ReturnsRawBytes(t *testing.T) {
	t.Parallel()
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	got, err := tr.GetBinary(context.Background(), ts.URL, nil, nil, "")
	if err != nil {
		t.Fatalf("GetBinary: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("expected raw payload, got %v", got)
	}
}

func TestTransport_GetStatusCode(t *testing.T) {
	t.Parallel()
	var gotCT string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		if strings.HasSuffix(r.URL.Path, "/missing.jpg") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "img")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	code, err := tr.GetStatusCode(context.Background(), ts.URL+"/ok.jpg")
	if err != nil || code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", code, err)
	}
	code, err = tr.GetStatusCode(context.Background(), ts.URL+"/missing.jpg")
	if err != nil || code != http.StatusNotFound {
		t.Fatalf("expected 404 without error, got %d (%v)", code, err)
	}
	if gotCT != "" {
		t.Errorf("status probe must not set Content-Type, got %q", gotCT)
	}
}

// ─── POST bodies ────────────────────────────────────────────────────────

func TestTransport_PostForm(t *testing.T) {
	t.Parallel()
	var gotCT string
	var gotForm url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotForm = r.PostForm
		_, _ = io.WriteString(w, "done")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	body, err := tr.PostForm(context.Background(), ts.URL, url.Values{"k": {"v"}, "dropped": {}}, nil, "")
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if body != "done" {
		t.Errorf("unexpected body %q", body)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected Content-Type %q", gotCT)
	}
	if gotForm.Get("k") != "v" {
		t.Errorf("unexpected form %v", gotForm)
	}
	if _, present := gotForm["dropped"]; present {
		t.Errorf("key without values must not be sent")
	}
}

func TestTransport_PostJSON_SetsCharset(t *testing.T) {
	t.Parallel()
	var gotCT, gotBody, gotMethod string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = io.WriteString(w, `{"code":200}`)
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	if _, err := tr.PostJSON(context.Background(), ts.URL, `{"vid":"v1"}`, nil, ""); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotCT != "application/json; charset=utf-8" {
		t.Errorf("unexpected Content-Type %q", gotCT)
	}
	if gotBody != `{"vid":"v1"}` {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestTransport_PostMultipleFiles(t *testing.T) {
	t.Parallel()
	type part struct {
		field, filename, ct, content string
	}
	var parts []part
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				break
			}
			b, _ := io.ReadAll(p)
			parts = append(parts, part{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), string(b)})
		}
		_, _ = io.WriteString(w, "uploaded")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	files := map[string][]webclient.File{
		"img": {{Name: "a.jpg", Content: []byte("AAA")}, {Name: "b.jpg", Content: []byte("BBB")}},
	}
	body, err := tr.PostMultipleFiles(context.Background(), ts.URL, url.Values{"title": {"cover"}}, files, nil, "")
	if err != nil {
		t.Fatalf("PostMultipleFiles: %v", err)
	}
	if body != "uploaded" {
		t.Errorf("unexpected body %q", body)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(parts), parts)
	}
	if parts[0].field != "title" || parts[0].content != "cover" || parts[0].ct != "text/plain; charset=utf-8" {
		t.Errorf("unexpected text part %+v", parts[0])
	}
	if parts[1].filename != "a.jpg" || parts[1].content != "AAA" || parts[2].filename != "b.jpg" {
		t.Errorf("unexpected file parts %+v", parts[1:])
	}
}

func TestTransport_PostFile_SingleFile(t *testing.T) {
	t.Parallel()
	var filename string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fh := r.MultipartForm.File["file"]; len(fh) == 1 {
			filename = fh[0].Filename
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	files := map[string]webclient.File{"file": {Name: "cover.png", Content: []byte("png")}}
	if _, err := tr.PostFile(context.Background(), ts.URL, nil, files, nil, ""); err != nil {
		t.Fatalf("PostFile: %v", err)
	}
	if filename != "cover.png" {
		t.Errorf("expected cover.png, got %q", filename)
	}
}

func TestTransport_Post_EnvelopeOnErrorStatusIsText(t *testing.T) {
	t.Parallel()
	const envelope = `{"code":"400","message":"missing userid"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, envelope)
	}))
	defer ts.Close()

	tr := newTransport(t, ts)
	body, err := tr.PostForm(context.Background(), ts.URL, nil, nil, "")
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if body != envelope {
		t.Errorf("expected the envelope as text, got %q", body)
	}
}
