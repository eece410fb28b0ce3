package tagsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/InverskProperty/propsk-sub012/internal/config"
	"github.com/InverskProperty/propsk-sub012/internal/logger"
)

// tagListResponse accepts the envelopes the tagging API has been seen to use.
type tagListResponse struct {
	Data  []Tag `json:"data"`
	Tags  []Tag `json:"tags"`
	Items []Tag `json:"items"`
}

func (r tagListResponse) tags() []Tag {
	switch {
	case r.Data != nil:
		return r.Data
	case r.Tags != nil:
		return r.Tags
	default:
		return r.Items
	}
}

type createTagRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type applyTagRequest struct {
	TagID string `json:"tag_id"`
}

// HTTPClient talks to the tagging API over REST.
type HTTPClient struct {
	http *resty.Client
	log  *logger.Logger
}

// NewHTTPClient creates a client for the tagging API described by cfg.
func NewHTTPClient(cfg config.TagSyncConfig, log *logger.Logger) *HTTPClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPClient{
		http: client,
		log:  log.WithComponent("tag_client"),
	}
}

// ListTags returns every tag known to the platform.
func (c *HTTPClient) ListTags(ctx context.Context) ([]Tag, error) {
	var body tagListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/tags")
	if err != nil {
		return nil, fmt.Errorf("%w: list tags: %w", ErrRequest, err)
	}
	if resp.IsError() {
		return nil, statusError("list tags", resp)
	}

	tags := body.tags()
	if tags == nil {
		tags = []Tag{}
	}
	return tags, nil
}

// GetTag returns nil, nil when the tag does not exist.
func (c *HTTPClient) GetTag(ctx context.Context, id string) (*Tag, error) {
	var tag Tag
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&tag).
		Get("/tags/{id}")
	if err != nil {
		return nil, fmt.Errorf("%w: get tag %s: %w", ErrRequest, id, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, statusError("get tag "+id, resp)
	}
	return &tag, nil
}

// EnsureTag returns the tag named name, creating it when no tag with that
// name exists. Names are compared case-insensitively.
func (c *HTTPClient) EnsureTag(ctx context.Context, name string) (*Tag, error) {
	tags, err := c.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if strings.EqualFold(tags[i].Name, name) {
			return &tags[i], nil
		}
	}

	c.log.Info("Creating external tag", map[string]interface{}{
		"tag_name": name,
	})

	var created Tag
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createTagRequest{Name: name, Description: "Managed portfolio tag"}).
		SetResult(&created).
		Post("/tags")
	if err != nil {
		return nil, fmt.Errorf("%w: create tag %q: %w", ErrRequest, name, err)
	}
	if resp.IsError() {
		return nil, statusError(fmt.Sprintf("create tag %q", name), resp)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: create tag %q: response carried no id", ErrRequest, name)
	}
	if created.Name == "" {
		created.Name = name
	}
	return &created, nil
}

// ApplyTag attaches tagID to the property. A 409 means the tag is already
// attached and counts as success.
func (c *HTTPClient) ApplyTag(ctx context.Context, propertyRef, tagID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ref", propertyRef).
		SetBody(applyTagRequest{TagID: tagID}).
		Post("/properties/{ref}/tags")
	if err != nil {
		return fmt.Errorf("%w: apply tag %s to %s: %w", ErrRequest, tagID, propertyRef, err)
	}
	if resp.StatusCode() == http.StatusConflict {
		c.log.Debug("Tag already applied", map[string]interface{}{
			"property_ref": propertyRef,
			"tag_id":       tagID,
		})
		return nil
	}
	if resp.IsError() {
		return statusError(fmt.Sprintf("apply tag %s to %s", tagID, propertyRef), resp)
	}
	return nil
}

// RemoveTag detaches tagID from the property. A 404 means the tag was not
// attached and counts as success.
func (c *HTTPClient) RemoveTag(ctx context.Context, propertyRef, tagID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ref", propertyRef).
		SetPathParam("tag", tagID).
		Delete("/properties/{ref}/tags/{tag}")
	if err != nil {
		return fmt.Errorf("%w: remove tag %s from %s: %w", ErrRequest, tagID, propertyRef, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		c.log.Debug("Tag already absent", map[string]interface{}{
			"property_ref": propertyRef,
			"tag_id":       tagID,
		})
		return nil
	}
	if resp.IsError() {
		return statusError(fmt.Sprintf("remove tag %s from %s", tagID, propertyRef), resp)
	}
	return nil
}

func statusError(op string, resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%w: %s: status %d: %s", ErrRequest, op, resp.StatusCode(), body)
}
