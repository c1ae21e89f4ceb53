package validator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/testutil"
	"github.com/raysh454/thumbscan/internal/validator"
	"github.com/raysh454/thumbscan/internal/webclient"
)

func newValidator(t *testing.T, fc *testutil.FakeCatalog) *validator.Validator {
	t.Helper()
	tr := webclient.NewTransport(webclient.Config{}, logging.Nop(), fc.Client())
	v, err := validator.New(validator.Config{MetadataURL: fc.MetadataURL()}, tr, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}
	return v
}

func TestValidator_Check(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCatalog(10,
		testutil.FakeVideo{ID: "ok", Status: 61},
		testutil.FakeVideo{ID: "broken", Status: 61, ThumbStatus: http.StatusNotFound},
		testutil.FakeVideo{ID: "forbidden", Status: 60, ThumbStatus: http.StatusForbidden},
		testutil.FakeVideo{ID: "deleted", Status: validator.StatusDeleted, ThumbStatus: http.StatusNotFound},
		testutil.FakeVideo{ID: "nothumb", Status: 61, NoThumbnail: true},
		testutil.FakeVideo{ID: "nostatus", Metadata: `{"first_image_b":"http://127.0.0.1:1/x.jpg"}`},
		testutil.FakeVideo{ID: "garbage", Metadata: `var x = {`},
		testutil.FakeVideo{ID: "strstatus", Status: 61, Metadata: `{"status":"-1"}`},
	)
	defer fc.Close()
	v := newValidator(t, fc)

	cases := []struct {
		id     string
		defect bool
	}{
		{"ok", false},
		{"broken", true},
		{"forbidden", true},
		{"deleted", false},
		{"nothumb", true},
		{"nostatus", true},
		{"garbage", true},
		{"strstatus", false},
	}
	for _, tc := range cases {
		got, err := v.Check(context.Background(), tc.id)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.id, err)
			continue
		}
		if got != tc.defect {
			t.Errorf("%s: expected defective=%v, got %v", tc.id, tc.defect, got)
		}
	}
}

func TestValidator_DeletedNeverProbed(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCatalog(10, testutil.FakeVideo{ID: "gone", Status: validator.StatusDeleted})
	defer fc.Close()
	v := newValidator(t, fc)

	verdict, err := v.Inspect(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !verdict.Deleted || verdict.Defective {
		t.Errorf("expected deleted and not defective, got %+v", verdict)
	}
	if fc.ProbeCalls() != 0 {
		t.Errorf("deleted video must not be probed, got %d probes", fc.ProbeCalls())
	}
}

func TestValidator_UnreachableThumbnailIsDefect(t *testing.T) {
	t.Parallel()
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL + "/x.jpg"
	dead.Close()

	fc := testutil.NewFakeCatalog(10, testutil.FakeVideo{
		ID:       "v",
		Metadata: `{"status":61,"first_image_b":"` + deadURL + `"}`,
	})
	defer fc.Close()
	v := newValidator(t, fc)

	verdict, err := v.Inspect(context.Background(), "v")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !verdict.Defective || verdict.Reason != validator.ReasonUnreachable {
		t.Errorf("expected unreachable defect, got %+v", verdict)
	}
}

func TestValidator_MetadataErrorPageIsDefective(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html>not found</html>"))
	}))
	defer ts.Close()

	tr := webclient.NewTransport(webclient.Config{}, logging.Nop(), ts.Client())
	v, err := validator.New(validator.Config{MetadataURL: ts.URL + "/videojson/%s.js"}, tr, nil)
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}

	verdict, err := v.Inspect(context.Background(), "v1")
	if err != nil {
		t.Fatalf("an error page must not be a fetch error, got %v", err)
	}
	if !verdict.Defective || verdict.Reason != validator.ReasonUnparsable {
		t.Errorf("expected unparsable defect, got %+v", verdict)
	}
}

func TestValidator_MetadataServerErrorIsDefective(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCatalog(10, testutil.FakeVideo{ID: "v", MetadataStatus: http.StatusInternalServerError})
	defer fc.Close()
	v := newValidator(t, fc)

	defective, err := v.Check(context.Background(), "v")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !defective {
		t.Error("an empty 500 metadata response must be defective")
	}
	if fc.ProbeCalls() != 0 {
		t.Errorf("no thumbnail may be probed without metadata, got %d probes", fc.ProbeCalls())
	}
}

func TestValidator_MetadataTransportFailureIsError(t *testing.T) {
	t.Parallel()
	wc := &testutil.DummyWebClient{FailURLs: map[string]bool{"http://meta/v.js": true}}
	v, err := validator.New(validator.Config{MetadataURL: "http://meta/%s.js"}, wc, nil)
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}

	defective, err := v.Check(context.Background(), "v")
	if err == nil {
		t.Fatal("expected error when metadata cannot be fetched")
	}
	if defective {
		t.Errorf("a failed fetch must not be reported as defective")
	}
	if !webclient.IsTransportError(err) {
		t.Errorf("expected wrapped TransportError, got %v", err)
	}
}

func TestValidator_ProbeStatusRecorded(t *testing.T) {
	t.Parallel()
	fc := testutil.NewFakeCatalog(10, testutil.FakeVideo{ID: "v3", Status: 61, ThumbStatus: http.StatusNotFound})
	defer fc.Close()
	v := newValidator(t, fc)

	verdict, err := v.Inspect(context.Background(), "v3")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if verdict.ProbeStatus != http.StatusNotFound || !strings.HasPrefix(verdict.Reason, validator.ReasonBadStatus) {
		t.Errorf("unexpected verdict %+v", verdict)
	}
	if verdict.Thumbnail != fc.ThumbURL("v3") {
		t.Errorf("expected thumbnail %s, got %s", fc.ThumbURL("v3"), verdict.Thumbnail)
	}
}

func TestNormalizeDocument(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`{"a":[1,,2]}`:       `{"a":[1,2]}`,
		`{"a":[1,2]}`:        `{"a":[1,2]}`,
		`,,`:                 `,`,
		`{"s":"x,,y","n":1}`: `{"s":"x,y","n":1}`,
	}
	for in, want := range cases {
		if got := validator.NormalizeDocument(in); got != want {
			t.Errorf("NormalizeDocument(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMetadata(t *testing.T) {
	t.Parallel()
	md, err := validator.ParseMetadata(`{"status":60,"hls":[1,,2],"first_image_b":" http://img/x.jpg "}`)
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if md.Status == nil || *md.Status != 60 {
		t.Errorf("expected status 60, got %v", md.Status)
	}
	if md.Thumbnail != "http://img/x.jpg" {
		t.Errorf("unexpected thumbnail %q", md.Thumbnail)
	}

	if _, err := validator.ParseMetadata(`[1,2]`); err == nil {
		t.Error("expected error for non-object document")
	}
	if _, err := validator.ParseMetadata(`null`); err == nil {
		t.Error("expected error for null document")
	}
	md, err = validator.ParseMetadata(`{"status":null}`)
	if err != nil || md.Status != nil {
		t.Errorf("null status must be treated as missing, got %v %v", md.Status, err)
	}
}

func TestNew_RejectsBadTemplate(t *testing.T) {
	t.Parallel()
	if _, err := validator.New(validator.Config{MetadataURL: "http://x/no-placeholder"}, &testutil.DummyWebClient{}, nil); err == nil {
		t.Fatal("expected error for a template without a placeholder verb")
	}
	if _, err := validator.New(validator.Config{}, nil, nil); err == nil {
		t.Fatal("expected error without web client")
	}
}

func TestValidator_WithDummyClient(t *testing.T) {
	t.Parallel()
	meta := "http://meta/%s.js"
	wc := &testutil.DummyWebClient{
		Texts:       map[string]string{"http://meta/a.js": `{"status":61,"first_image_b":"//cdn/a.jpg"}`},
		StatusCodes: map[string]int{"https://cdn/a.jpg": http.StatusOK},
	}
	v, err := validator.New(validator.Config{MetadataURL: meta}, wc, nil)
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}
	verdict, err := v.Inspect(context.Background(), "a")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if verdict.Defective || verdict.Thumbnail != "https://cdn/a.jpg" {
		t.Errorf("expected scheme-relative thumbnail to be probed over https, got %+v", verdict)
	}
}
