package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var errNoAttempt = errors.New("attempt not found")

type fakePosts struct {
	mu     sync.Mutex
	rowMu  sync.Mutex
	posts  map[int64]*models.Post
	nextID int64

	// getErrs and commitErrs are consumed one per GetByID and Update call.
	// A commit error is returned after fn ran, and the change is dropped.
	getErrs    []error
	commitErrs []error
	removeErrs []error
}

func newFakePosts() *fakePosts {
	return &fakePosts{posts: map[int64]*models.Post{}}
}

func (f *fakePosts) put(p *models.Post) *models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.posts[p.ID] = &cp
	return p
}

func (f *fakePosts) get(id int64) *models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (f *fakePosts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	if err := f.pop(&f.getErrs); err != nil {
		return nil, err
	}
	return f.get(id), nil
}

func (f *fakePosts) failCommits(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitErrs = append(f.commitErrs, errs...)
}

func (f *fakePosts) pop(errs *[]error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakePosts) Create(_ context.Context, post *models.Post) (int64, error) {
	if err := post.CheckInvariants(); err != nil {
		return 0, err
	}
	return f.put(post).ID, nil
}

func (f *fakePosts) GetByUserID(_ context.Context, userID int64) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Post
	for _, p := range f.posts {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (f *fakePosts) ListByStatus(_ context.Context, statuses ...models.PostStatus) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Post
	for _, p := range f.posts {
		for _, s := range statuses {
			if p.Status == s {
				cp := *p
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (f *fakePosts) CheckByUserID(_ context.Context, postID, userID int64) (bool, error) {
	p := f.get(postID)
	return p != nil && p.UserID == userID, nil
}

// Update serializes callers like a row lock would.
func (f *fakePosts) Update(_ context.Context, id int64, fn func(*models.Post) error) (*models.Post, error) {
	f.rowMu.Lock()
	defer f.rowMu.Unlock()

	p := f.get(id)
	if p == nil {
		return nil, models.ErrPostNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := p.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := f.pop(&f.commitErrs); err != nil {
		return nil, err
	}
	f.mu.Lock()
	cp := *p
	f.posts[id] = &cp
	f.mu.Unlock()
	return p, nil
}

func (f *fakePosts) Remove(_ context.Context, id int64) error {
	if err := f.pop(&f.removeErrs); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: map[int64]*models.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, false, nil
	}
	cp := *u
	return &cp, true, nil
}

func (f *fakeUsers) GetByLinkedInID(_ context.Context, linkedinID string) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.LinkedInID == linkedinID {
			cp := *u
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeUsers) Upsert(_ context.Context, user *models.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.LinkedInID == user.LinkedInID {
			user.ID = u.ID
			if user.RefreshToken == "" {
				user.RefreshToken = u.RefreshToken
			}
			cp := *user
			f.users[u.ID] = &cp
			return u.ID, nil
		}
	}
	user.ID = int64(len(f.users) + 1)
	cp := *user
	f.users[user.ID] = &cp
	return user.ID, nil
}

func (f *fakeUsers) UpdateToken(_ context.Context, id int64, access, refresh string, exp *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.AccessToken = access
	if refresh != "" {
		u.RefreshToken = refresh
	}
	u.TokenExpiresAt = exp
	return nil
}

func (f *fakeUsers) ListExpiring(_ context.Context, before time.Time) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.User
	for _, u := range f.users {
		if u.RefreshToken != "" && u.TokenExpiresAt != nil && u.TokenExpiresAt.Before(before) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUsers) Remove(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

type fakeAttempts struct {
	mu   sync.Mutex
	list []*models.DeliveryAttempt
}

func (f *fakeAttempts) Create(_ context.Context, a *models.DeliveryAttempt) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.list) + 1)
	f.list = append(f.list, a)
	return a.ID, nil
}

func (f *fakeAttempts) GetByID(_ context.Context, id int64) (*models.DeliveryAttempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.list {
		if a.ID == id {
			cp := *a
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeAttempts) SetRemoteID(_ context.Context, id int64, remotePostID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.list {
		if a.ID == id {
			a.RemotePostID = remotePostID
			return nil
		}
	}
	return errNoAttempt
}

func (f *fakeAttempts) Finish(_ context.Context, id int64, outcome models.AttemptOutcome, remotePostID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.list {
		if a.ID == id {
			a.Outcome = outcome
			if remotePostID != "" {
				a.RemotePostID = remotePostID
			}
			a.ErrorMessage = errorMessage
			return nil
		}
	}
	return errNoAttempt
}

func (f *fakeAttempts) last() *models.DeliveryAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.list) == 0 {
		return nil
	}
	cp := *f.list[len(f.list)-1]
	return &cp
}

func (f *fakeAttempts) GetByPostID(_ context.Context, postID int64) ([]*models.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.DeliveryAttempt
	for _, a := range f.list {
		if a.PostID == postID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttempts) outcomes() []models.AttemptOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AttemptOutcome
	for _, a := range f.list {
		out = append(out, a.Outcome)
	}
	return out
}

type fakeTimers struct {
	mu       sync.Mutex
	armed    map[int64]time.Time
	arms     int
	disarms  int
	armErr   error
	nowValue time.Time
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{armed: map[int64]time.Time{}, nowValue: now}
}

func (f *fakeTimers) Arm(_ context.Context, postID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armErr != nil {
		return f.armErr
	}
	f.arms++
	f.armed[postID] = at
	return nil
}

func (f *fakeTimers) PublishNow(ctx context.Context, postID int64) error {
	return f.Arm(ctx, postID, f.nowValue)
}

func (f *fakeTimers) Disarm(_ context.Context, postID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disarms++
	_, ok := f.armed[postID]
	delete(f.armed, postID)
	return ok, nil
}

func (f *fakeTimers) ListArmed() []models.ScheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScheduledJob
	for id, at := range f.armed {
		out = append(out, models.ScheduledJob{PostID: id, FireAt: at})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].PostID < out[k].PostID })
	return out
}

func (f *fakeTimers) HasTimer(_ context.Context, postID int64) (bool, error) {
	return f.IsArmed(postID), nil
}

func (f *fakeTimers) Timer(_ context.Context, postID int64) (models.ScheduledJob, bool, error) {
	at, ok := f.at(postID)
	if !ok {
		return models.ScheduledJob{}, false, nil
	}
	return models.ScheduledJob{PostID: postID, FireAt: at}, true, nil
}

func (f *fakeTimers) IsArmed(postID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[postID]
	return ok
}

func (f *fakeTimers) at(postID int64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.armed[postID]
	return at, ok
}

type fakeClient struct {
	mu        sync.Mutex
	publish   []Result
	upload    []Result
	published []string
	uploaded  int
	onPublish func()
	panicNext bool
}

func (f *fakeClient) UploadMedia(_ context.Context, _, _ string, _ []byte) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded++
	if len(f.upload) == 0 {
		return Succeeded("urn:li:digitalmediaAsset:1")
	}
	r := f.upload[0]
	f.upload = f.upload[1:]
	return r
}

func (f *fakeClient) Publish(_ context.Context, token, _, content, _ string) Result {
	f.mu.Lock()
	if f.panicNext {
		f.panicNext = false
		f.mu.Unlock()
		panic("nil map")
	}
	f.published = append(f.published, content)
	var r Result
	if len(f.publish) == 0 {
		r = Succeeded("urn:li:share:1")
	} else {
		r = f.publish[0]
		f.publish = f.publish[1:]
	}
	hook := f.onPublish
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeMedia struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{files: map[string][]byte{}}
}

func (f *fakeMedia) Save(_ context.Context, img *Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, err := newObjectName(img.Extension)
	if err != nil {
		return "", err
	}
	f.files[ref] = img.Data
	return ref, nil
}

func (f *fakeMedia) Load(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[ref]
	if !ok {
		return nil, models.ErrMediaNotFound
	}
	return b, nil
}

func (f *fakeMedia) Remove(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, ref)
	return nil
}

func (f *fakeMedia) has(ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[ref]
	return ok
}

// plainSealer stores tokens as-is.
type plainSealer struct{}

func (plainSealer) Seal(s string) (string, error) { return s, nil }
func (plainSealer) Open(s string) (string, error) { return s, nil }
