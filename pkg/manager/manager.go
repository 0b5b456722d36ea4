package manager

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"

	// Packages
	clock "github.com/OpenTTD/bananas-api/pkg/clock"
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	resolve "github.com/OpenTTD/bananas-api/pkg/resolve"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	session "github.com/OpenTTD/bananas-api/pkg/session"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	attribute "go.opentelemetry.io/otel/attribute"
	metric "go.opentelemetry.io/otel/metric"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manager keeps the upload sessions. Each user has at most one session,
// which is removed after a period without activity.
type Manager struct {
	opts
	sync.Mutex
	byUser   map[string]*entry
	byToken  map[string]*entry
	decodes  metric.Int64Counter
	publishs metric.Int64Counter
}

type entry struct {
	session *session.Session
	timer   clock.Timer
	gen     uint64
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	ErrSessionNotFound = httpresponse.ErrNotFound.With("no upload session for this token")
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a session manager. A storage and an index are required.
func New(ctx context.Context, opts ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}

	// Counters
	if counter, err := self.meter.Int64Counter(schema.SchemaName+".decode", metric.WithDescription("Files decoded")); err != nil {
		return nil, err
	} else {
		self.decodes = counter
	}
	if counter, err := self.meter.Int64Counter(schema.SchemaName+".publish", metric.WithDescription("Packages published")); err != nil {
		return nil, err
	} else {
		self.publishs = counter
	}

	self.byUser = make(map[string]*entry)
	self.byToken = make(map[string]*entry)

	// Return success
	return self, nil
}

// Close removes every session, and closes the storage
func (manager *Manager) Close() error {
	manager.Lock()
	entries := make([]*entry, 0, len(manager.byToken))
	for _, e := range manager.byToken {
		manager.remove(e)
		entries = append(entries, e)
	}
	manager.Unlock()

	var result error
	for _, e := range entries {
		result = errors.Join(result, e.session.Cleanup())
	}
	if closer, ok := manager.storage.(io.Closer); ok {
		result = errors.Join(result, closer.Close())
	}

	// Return any errors
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Start creates a new session for a user, removing any session the user
// already has
func (manager *Manager) Start(ctx context.Context, user schema.User) (_ session.Status, err error) {
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Start"))
	defer func() { endFunc(err) }()

	manager.Lock()
	previous := manager.byUser[user.FullID()]
	if previous != nil {
		manager.remove(previous)
	}
	token := session.NewID()
	for manager.byToken[token] != nil {
		token = session.NewID()
	}
	s, err := session.New(user, token, filepath.Join(manager.dir, token), session.WithMaxFileSize(manager.maxSize))
	if err != nil {
		manager.Unlock()
		return session.Status{}, httpresponse.ErrInternalError.Withf("%v", err)
	}
	e := &entry{session: s}
	manager.byUser[user.FullID()] = e
	manager.byToken[token] = e
	manager.touch(e)
	manager.Unlock()

	if previous != nil {
		manager.logger.InfoContext(ctx, "session replaced", "user", user.FullID(), "token", previous.session.Token())
		if err := previous.session.Cleanup(); err != nil {
			manager.logger.WarnContext(ctx, "session cleanup failed", "token", previous.session.Token(), "error", err)
		}
	}
	manager.logger.InfoContext(ctx, "session started", "user", user.FullID(), "token", token)

	// Return success
	return s.Status(), nil
}

// Status returns the state of a session
func (manager *Manager) Status(ctx context.Context, token string) (session.Status, error) {
	s, err := manager.get(token)
	if err != nil {
		return session.Status{}, err
	}
	return s.Status(), nil
}

// Announce registers an upload which has started
func (manager *Manager) Announce(ctx context.Context, token, id, filename string) (err error) {
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Announce"))
	defer func() { endFunc(err) }()

	s, err := manager.get(token)
	if err != nil {
		return err
	}
	return s.Announce(id, filename)
}

// Attach adds a file to a session and returns its id. A new id is used
// when id is empty.
func (manager *Manager) Attach(ctx context.Context, token, id, filename string, r io.Reader) (_ string, err error) {
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Attach"))
	defer func() { endFunc(err) }()

	s, err := manager.get(token)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = session.NewID()
	}
	if err := s.Attach(id, filename, r); err != nil {
		return "", err
	}
	manager.logger.DebugContext(ctx, "file attached", "token", token, "filename", filename)

	// Return success
	return id, nil
}

// Detach removes a file from a session
func (manager *Manager) Detach(ctx context.Context, token, id string) (err error) {
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Detach"))
	defer func() { endFunc(err) }()

	s, err := manager.get(token)
	if err != nil {
		return err
	}
	return s.Detach(id)
}

// Update changes the fields of a session
func (manager *Manager) Update(ctx context.Context, token string, u *session.Update) (_ session.Status, err error) {
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Update"))
	defer func() { endFunc(err) }()

	s, err := manager.get(token)
	if err != nil {
		return session.Status{}, err
	}
	if err := s.Update(u); err != nil {
		return session.Status{}, err
	}
	return s.Status(), nil
}

// Validate checks the files and fields of a session
func (manager *Manager) Validate(ctx context.Context, token string) (_ session.Status, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Validate"))
	defer func() { endFunc(err) }()

	s, err := manager.get(token)
	if err != nil {
		return session.Status{}, err
	}
	status, err := s.Validate(child, manager.validator(child))
	if err != nil {
		return session.Status{}, err
	}
	manager.logger.InfoContext(ctx, "session validated", "token", token, "files", len(status.Files), "status", status.Status, "content_type", status.ContentType)

	// Return success
	return status, nil
}

// Publish stores the package of a session which validates without
// errors, and removes the session
func (manager *Manager) Publish(ctx context.Context, token string) (_ *schema.Package, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Publish"))
	defer func() { endFunc(err) }()

	s, err := manager.get(token)
	if err != nil {
		return nil, err
	}
	pkg, err := s.Publish(child, manager.validator(child), &session.Publisher{
		Storage:  manager.storage,
		Index:    manager.index,
		Licenses: manager.licenses,
		Now:      manager.clock.Now,
		Logger:   manager.logger,
	})
	if err != nil {
		return nil, err
	}
	manager.publishs.Add(child, 1, metric.WithAttributes(attribute.String("content_type", string(pkg.ContentType))))
	manager.logger.InfoContext(ctx, "package published", "user", s.User().FullID(), "token", token, "content_type", pkg.ContentType, "unique_id", pkg.UniqueID)

	// The session is done
	manager.Lock()
	if e := manager.byToken[token]; e != nil && e.session == s {
		manager.remove(e)
	}
	manager.Unlock()
	if err := s.Cleanup(); err != nil {
		manager.logger.WarnContext(ctx, "session cleanup failed", "token", token, "error", err)
	}

	// Return success
	return pkg, nil
}

// Cancel removes a session and its files
func (manager *Manager) Cancel(ctx context.Context, token string) (err error) {
	_, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Cancel"))
	defer func() { endFunc(err) }()

	manager.Lock()
	e := manager.byToken[token]
	if e != nil {
		manager.remove(e)
	}
	manager.Unlock()
	if e == nil {
		return ErrSessionNotFound
	}
	manager.logger.InfoContext(ctx, "session cancelled", "token", token)
	return e.session.Cleanup()
}

// Len returns the number of sessions
func (manager *Manager) Len() int {
	manager.Lock()
	defer manager.Unlock()
	return len(manager.byToken)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// get returns the session for a token, and restarts its timer
func (manager *Manager) get(token string) (*session.Session, error) {
	manager.Lock()
	defer manager.Unlock()
	e := manager.byToken[token]
	if e == nil {
		return nil, ErrSessionNotFound
	}
	manager.touch(e)
	return e.session, nil
}

// touch restarts the timer of a session. The generation makes a timer
// which fires while it is being replaced do nothing.
func (manager *Manager) touch(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = manager.clock.AfterFunc(manager.timeout, func() {
		manager.expire(e, gen)
	})
}

func (manager *Manager) expire(e *entry, gen uint64) {
	manager.Lock()
	if e.gen != gen || manager.byToken[e.session.Token()] != e {
		manager.Unlock()
		return
	}
	manager.remove(e)
	manager.Unlock()

	manager.logger.Info("session expired", "user", e.session.User().FullID(), "token", e.session.Token())
	if err := e.session.Cleanup(); err != nil {
		manager.logger.Warn("session cleanup failed", "token", e.session.Token(), "error", err)
	}
}

// remove forgets a session, with the manager locked
func (manager *Manager) remove(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	delete(manager.byToken, e.session.Token())
	if manager.byUser[e.session.User().FullID()] == e {
		delete(manager.byUser, e.session.User().FullID())
	}
}

func (manager *Manager) validator(ctx context.Context) *session.Validator {
	return &session.Validator{
		Index:   manager.index,
		Resolve: []resolve.Opt{resolve.WithClassifier(manager.classifier)},
		Reader:  []reader.Opt{reader.WithMaxPixels(manager.maxPixels)},
		Workers: manager.workers,
		OnDecode: func(filename string, err error) {
			result := "ok"
			if err != nil {
				result = "error"
				manager.logger.DebugContext(ctx, "decode failed", "filename", filename, "error", err)
			}
			manager.decodes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		},
	}
}

func spanManagerName(op string) string {
	return schema.SchemaName + ".manager." + op
}
