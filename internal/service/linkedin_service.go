package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
	"golang.org/x/time/rate"

	config "github.com/maheshrc27/linkedin-scheduler/configs"
	"github.com/maheshrc27/linkedin-scheduler/internal/transfer"
)

var linkedInScopes = []string{"openid", "profile", "email", "w_member_social"}

// ErrUnauthorized is returned by the profile and stats calls when LinkedIn
// rejects the access token.
var ErrUnauthorized = errors.New("linkedin: access token rejected")

type LinkedInService interface {
	DeliveryClient
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, accessToken string) (*transfer.LinkedInUserInfo, error)
	PostStats(ctx context.Context, accessToken, remotePostID string) (json.RawMessage, error)
}

type linkedInService struct {
	oauth   *oauth2.Config
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewLinkedInService(cfg config.Config) LinkedInService {
	limit := rate.Inf
	if cfg.LinkedIn.RatePerSec > 0 {
		limit = rate.Limit(cfg.LinkedIn.RatePerSec)
	}
	return &linkedInService{
		oauth: &oauth2.Config{
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
			RedirectURL:  cfg.LinkedIn.RedirectURI,
			Scopes:       linkedInScopes,
			Endpoint:     linkedin.Endpoint,
		},
		baseURL: strings.TrimRight(cfg.LinkedIn.APIBaseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (s *linkedInService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

func (s *linkedInService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange linkedin code: %w", err)
	}
	return token, nil
}

func (s *linkedInService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh linkedin token: %w", err)
	}
	return token, nil
}

func (s *linkedInService) UserInfo(ctx context.Context, accessToken string) (*transfer.LinkedInUserInfo, error) {
	var info transfer.LinkedInUserInfo
	status, err := s.doJSON(ctx, http.MethodGet, s.baseURL+"/userinfo", accessToken, nil, &info, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("linkedin userinfo: unexpected status %d", status)
	}
	if info.Sub == "" {
		return nil, errors.New("linkedin userinfo: missing subject")
	}
	return &info, nil
}

func (s *linkedInService) PostStats(ctx context.Context, accessToken, remotePostID string) (json.RawMessage, error) {
	var raw json.RawMessage
	status, err := s.doJSON(ctx, http.MethodGet, s.baseURL+"/socialActions/"+url.PathEscape(remotePostID), accessToken, nil, &raw, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("linkedin stats: unexpected status %d", status)
	}
	return raw, nil
}

func personURN(remoteUserID string) string {
	return "urn:li:person:" + remoteUserID
}

func (s *linkedInService) UploadMedia(ctx context.Context, token, remoteUserID string, data []byte) Result {
	req := transfer.RegisterUploadRequest{RegisterUploadRequest: transfer.RegisterUpload{
		Recipes: []string{"urn:li:digitalmediaRecipe:feedshare-image"},
		Owner:   personURN(remoteUserID),
		ServiceRelationships: []transfer.ServiceRelationship{{
			RelationshipType: "OWNER",
			Identifier:       "urn:li:userGeneratedContent",
		}},
	}}

	var reg transfer.RegisterUploadResponse
	status, err := s.doJSON(ctx, http.MethodPost, s.baseURL+"/assets?action=registerUpload", token, req, &reg, nil)
	if res, failed := classify(status, err, MsgUploadFailed); failed {
		return res
	}
	uploadURL := reg.Value.UploadMechanism.HTTPRequest.UploadURL
	if uploadURL == "" || reg.Value.Asset == "" {
		return Failed(FailureTransient, MsgUploadFailed, errors.New("register upload returned no upload url"))
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return Failed(FailureTransient, MsgUploadFailed, err)
	}
	put, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return Failed(FailureTransient, MsgUploadFailed, err)
	}
	put.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.client.Do(put)
	if err != nil {
		return Failed(FailureTransient, MsgUploadFailed, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if res, failed := classify(resp.StatusCode, nil, MsgUploadFailed); failed {
		return res
	}
	return Succeeded(reg.Value.Asset)
}

func (s *linkedInService) Publish(ctx context.Context, token, remoteUserID, content, mediaHandle string) Result {
	share := transfer.UGCShareContent{
		ShareCommentary:    transfer.UGCText{Text: content},
		ShareMediaCategory: "NONE",
	}
	if mediaHandle != "" {
		share.ShareMediaCategory = "IMAGE"
		share.Media = []transfer.UGCMedia{{
			Status:      "READY",
			Description: transfer.UGCText{Text: "Image"},
			Media:       mediaHandle,
			Title:       transfer.UGCText{Text: "Image"},
		}}
	}
	post := transfer.UGCPost{
		Author:          personURN(remoteUserID),
		LifecycleState:  "PUBLISHED",
		SpecificContent: transfer.UGCSpecificContent{ShareContent: share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var out transfer.UGCPostResponse
	header := http.Header{}
	status, err := s.doJSON(ctx, http.MethodPost, s.baseURL+"/ugcPosts", token, post, &out, header)
	if res, failed := classify(status, err, MsgPublishFailed); failed {
		return res
	}
	id := out.ID
	if id == "" {
		id = header.Get("X-RestLi-Id")
	}
	if id == "" {
		return Failed(FailureTransient, MsgPublishFailed, errors.New("response carried no post id"))
	}
	return Succeeded(id)
}

// classify maps a LinkedIn response onto the failure taxonomy. Only a
// rejected token is terminal; every other failure goes through the retry
// policy. It reports false when the call succeeded.
func classify(status int, err error, reason string) (Result, bool) {
	switch {
	case err != nil:
		return Failed(FailureTransient, reason, err), true
	case status >= 200 && status < 300:
		return Result{}, false
	case status == http.StatusUnauthorized:
		return Failed(FailureCredential, MsgTokenExpired, fmt.Errorf("status %d", status)), true
	default:
		return Failed(FailureTransient, reason, fmt.Errorf("status %d", status)), true
	}
}

// doJSON sends body as JSON and decodes a 2xx response into out. Response
// headers are copied into header when it is non-nil. The returned status
// is meaningful only when err is nil.
func (s *linkedInService) doJSON(ctx context.Context, method, endpoint, token string, body, out any, header http.Header) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if header != nil {
		for k, v := range resp.Header {
			header[k] = v
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn().Str("endpoint", endpoint).Int("status", resp.StatusCode).Str("body", string(msg)).Msg("linkedin call failed")
		return resp.StatusCode, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("decode linkedin response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
