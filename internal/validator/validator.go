// Package validator decides whether a single catalog entry has a working
// thumbnail.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/raysh454/thumbscan/internal/logging"
	"github.com/raysh454/thumbscan/internal/webclient"
)

// StatusDeleted marks a video removed from the catalog. Deleted videos are
// skipped and never reported as defective.
const StatusDeleted = -1

// Reasons recorded in a Verdict.
const (
	ReasonOK               = "ok"
	ReasonDeleted          = "deleted"
	ReasonUnparsable       = "unparsable metadata"
	ReasonMissingStatus    = "missing status"
	ReasonMissingThumbnail = "missing thumbnail"
	ReasonBadStatus        = "thumbnail status"
	ReasonUnreachable      = "thumbnail unreachable"
)

// Metadata is the subset of the metadata document the check reads.
type Metadata struct {
	Status    *int
	Thumbnail string
}

// Verdict is the outcome for one video.
type Verdict struct {
	VideoID     string `json:"videoId"`
	Defective   bool   `json:"defective"`
	Deleted     bool   `json:"deleted"`
	Reason      string `json:"reason"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	ProbeStatus int    `json:"probeStatus,omitempty"`
}

type Validator struct {
	cfg    Config
	client webclient.WebClient
	logger logging.Logger
}

func New(cfg Config, client webclient.WebClient, logger logging.Logger) (*Validator, error) {
	if client == nil {
		return nil, errors.New("validator: web client is required")
	}
	if cfg.MetadataURL == "" {
		cfg.MetadataURL = DefaultMetadataURL
	}
	if strings.Count(cfg.MetadataURL, "%s") != 1 {
		return nil, fmt.Errorf("validator: metadata url %q must contain exactly one %%s", cfg.MetadataURL)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Validator{
		cfg:    cfg,
		client: client,
		logger: logger.With(logging.Field{Key: "component", Value: "validator"}),
	}, nil
}

// Check reports whether the video's thumbnail is defective. An error is
// returned only when the metadata document could not be fetched.
func (v *Validator) Check(ctx context.Context, id string) (bool, error) {
	verdict, err := v.Inspect(ctx, id)
	if err != nil {
		return false, err
	}
	return verdict.Defective, nil
}

// Inspect is Check with the reason attached.
func (v *Validator) Inspect(ctx context.Context, id string) (Verdict, error) {
	verdict := Verdict{VideoID: id}

	doc, err := v.client.Get(ctx, v.MetadataURL(id), nil, nil, v.cfg.Encoding)
	if err != nil {
		return verdict, fmt.Errorf("fetch metadata for %s: %w", id, err)
	}

	md, err := ParseMetadata(doc)
	if err != nil {
		v.logger.Warn("unparsable metadata",
			logging.Field{Key: "video_id", Value: id},
			logging.Field{Key: "error", Value: err})
		return defect(verdict, ReasonUnparsable), nil
	}
	if md.Status == nil {
		return defect(verdict, ReasonMissingStatus), nil
	}
	if *md.Status == StatusDeleted {
		v.logger.Debug("video deleted, skipping", logging.Field{Key: "video_id", Value: id})
		verdict.Deleted = true
		verdict.Reason = ReasonDeleted
		return verdict, nil
	}

	thumb := normalizeThumbnail(md.Thumbnail)
	verdict.Thumbnail = thumb
	if thumb == "" {
		return defect(verdict, ReasonMissingThumbnail), nil
	}

	code, err := v.client.GetStatusCode(ctx, thumb)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return verdict, ctxErr
		}
		v.logger.Info("thumbnail unreachable",
			logging.Field{Key: "video_id", Value: id},
			logging.Field{Key: "thumbnail", Value: thumb},
			logging.Field{Key: "error", Value: err})
		return defect(verdict, ReasonUnreachable), nil
	}
	verdict.ProbeStatus = code
	if code != http.StatusOK {
		v.logger.Info("thumbnail broken",
			logging.Field{Key: "video_id", Value: id},
			logging.Field{Key: "thumbnail", Value: thumb},
			logging.Field{Key: "status", Value: code})
		return defect(verdict, fmt.Sprintf("%s %d", ReasonBadStatus, code)), nil
	}

	verdict.Reason = ReasonOK
	return verdict, nil
}

func (v *Validator) MetadataURL(id string) string {
	return fmt.Sprintf(v.cfg.MetadataURL, id)
}

func defect(v Verdict, reason string) Verdict {
	v.Defective = true
	v.Reason = reason
	return v
}

// NormalizeDocument repairs the empty array slots the metadata endpoint
// emits, e.g. [1,,2].
func NormalizeDocument(doc string) string {
	return strings.ReplaceAll(doc, ",,", ",")
}

// ParseMetadata normalizes and decodes a metadata document. The status field
// may be a JSON number or a numeric string.
func ParseMetadata(doc string) (Metadata, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(NormalizeDocument(doc)), &raw); err != nil {
		return Metadata{}, err
	}
	if raw == nil {
		return Metadata{}, errors.New("metadata is not an object")
	}

	var md Metadata
	if s, ok := raw["status"]; ok {
		if n, ok := parseStatus(s); ok {
			md.Status = &n
		}
	}
	if t, ok := raw["first_image_b"]; ok {
		var thumb string
		if err := json.Unmarshal(t, &thumb); err == nil {
			md.Thumbnail = strings.TrimSpace(thumb)
		}
	}
	return md, nil
}

func parseStatus(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// normalizeThumbnail turns a scheme-relative URL into an https one.
func normalizeThumbnail(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
