package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"richpres/internal/archive"
	"richpres/internal/calendar"
	"richpres/internal/config"
	"richpres/internal/database"
	"richpres/internal/database/migrations"
	"richpres/internal/encryption"
	"richpres/internal/model"
	"richpres/internal/presence"
)

// ErrNoArchive is returned by archive commands when no archive is configured.
var ErrNoArchive = errors.New("no archive configured")

// App is the application layer between the CLI and presence.Session.
// It constructs all dependencies from config, runs sessions against the
// dry-run transport, and manages the journal lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        database.Database
	archive   archive.Archive // nil when tracing is disabled
	encryptor encryption.Encryptor
	calendar  presence.Calendar // nil when no calendar is configured
	logger    presence.Logger
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// command identifies the CLI command being run (e.g. "simulate").
// The caller must call Close when done.
func NewApp(cfg *config.Config, command, parameters string) (*App, error) {
	if cfg.Account.URI == "" {
		return nil, fmt.Errorf("account uri is not configured")
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, DatabaseName(cfg.Account.URI), nil)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run `richpres db migrate`): %w", err)
	}

	arc, err := archive.NewArchiveFromConfig(cfg.Archive)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	a := &App{cfg: cfg, db: db, archive: arc, encryptor: enc}

	if cfg.Calendar.Path != "" {
		cal, err := calendar.Load(cfg.Calendar.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("loading calendar: %w", err)
		}
		a.calendar = cal
	}

	sessionID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, sessionID, slog.LevelWarn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logger = &slogAdapter{l: logger}
	a.logFile = logFile
	a.op = NewOperation(sessionID, command, parameters)
	return a, nil
}

// DatabaseName derives the journal file name from an account uri.
func DatabaseName(uri string) string {
	name := strings.TrimPrefix(strings.ToLower(uri), "sip:")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// session is a presence session wired to the dry-run transport and the
// virtual scheduler.
type session struct {
	*presence.Session
	transport *DryRunTransport
	scheduler *VirtualScheduler
	clock     *VirtualClock
	tracer    *Tracer
}

func (a *App) newSession(respond Responder, start time.Time) (*session, error) {
	if start.IsZero() {
		start = time.Now()
	}
	h := &session{
		transport: NewDryRunTransport(respond),
		clock:     NewVirtualClock(start),
	}
	h.scheduler = NewVirtualScheduler(h.clock)

	var transport presence.Transport = h.transport
	if a.archive != nil {
		h.tracer = NewTracer(a.archive, a.encryptor, a.op.SessionID, a.logger)
		transport = h.tracer.Transport(h.transport)
	}

	hostName := a.cfg.Account.HostName
	if hostName == "" {
		hostName, _ = os.Hostname()
	}
	opts := presence.Options{
		SelfURI:         a.cfg.Account.URI,
		Contact:         a.cfg.Account.Contact,
		EndpointUUID:    a.cfg.Account.EndpointID,
		HostName:        hostName,
		Mailbox:         a.cfg.Account.Email,
		Timezone:        a.cfg.Publish.Timezone,
		FreeBusyRefresh: a.cfg.Publish.FreeBusyRefresh,
	}

	s, err := presence.NewSession(opts, transport, a.calendar, a.db, h.scheduler, a.db,
		a.logger, h.clock, presence.UUIDGenerator{})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	h.Session = s
	a.op.MarkJournaled()
	return h, nil
}

// ingest archives the snapshot and feeds it to the session.
func (s *session) ingest(snapshot []byte) error {
	if s.tracer != nil {
		s.tracer.Record("roaming", snapshot)
	}
	if err := s.Ingest(snapshot); err != nil {
		return fmt.Errorf("ingesting roaming data: %w", err)
	}
	s.transport.Drain()
	return nil
}

// SimulateOptions drives one simulated session.
type SimulateOptions struct {
	Snapshot []byte    // roaming-self document ingested first
	Fault    []byte    // fault document answered to the first publish, if any
	Ticks    int       // scheduler jobs to run after ingestion
	Status   string    // user status to publish after ingestion, if any
	Note     string    // note to publish with the status
	Start    time.Time // virtual start time; now when zero
}

// SimulateResult is the outcome of a simulated session.
type SimulateResult struct {
	Exchanges    []*Exchange
	Pending      []string // scheduler jobs still pending
	Status       presence.Status
	Publications int // cache entries at the end of the session
}

// Simulate runs a session against the dry-run transport.
func (a *App) Simulate(opts SimulateOptions) (*SimulateResult, error) {
	var respond Responder = AcceptAll
	if len(opts.Fault) > 0 {
		if _, _, err := presence.ParseFault(opts.Fault); err != nil {
			a.op.Fail()
			return nil, fmt.Errorf("reading fault document: %w", err)
		}
		respond = FaultFirstPublish(presence.Response{
			Status:      409,
			ContentType: presence.ContentTypeFault,
			Body:        opts.Fault,
		})
	}

	var status presence.Status
	if opts.Status != "" {
		st, err := presence.ParseStatus(opts.Status)
		if err != nil {
			a.op.Fail()
			return nil, err
		}
		status = st
	}

	s, err := a.newSession(respond, opts.Start)
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	if err := s.ingest(opts.Snapshot); err != nil {
		a.op.Fail()
		return nil, err
	}

	if status != "" || opts.Note != "" {
		if status != "" {
			s.SetStatus(status, true)
		}
		if opts.Note != "" {
			s.SetNote(opts.Note, false)
		}
		if err := s.PublishStatus(); err != nil {
			a.op.Fail()
			return nil, fmt.Errorf("publishing status: %w", err)
		}
		s.transport.Drain()
	}

	for i := 0; i < opts.Ticks; i++ {
		if !s.scheduler.Tick() {
			break
		}
		s.transport.Drain()
	}

	current, _ := s.Status()
	return &SimulateResult{
		Exchanges:    s.transport.Exchanges(),
		Pending:      s.scheduler.Pending(),
		Status:       current,
		Publications: s.Cache().Len(),
	}, nil
}

// principal classifies uri as a user ("sip:bob@fabrikam.com" or
// "bob@fabrikam.com") or a domain ("fabrikam.com").
func principal(uri string) (presence.MemberType, string) {
	if strings.Contains(uri, "@") {
		return presence.MemberUser, uri
	}
	return presence.MemberDomain, strings.ToLower(uri)
}

// ResolveAccess returns the access level uri holds according to the
// containers of a roaming-self snapshot.
func (a *App) ResolveAccess(snapshot []byte, uri string) (presence.Access, bool, error) {
	snap, err := presence.ParseSnapshot(snapshot)
	if err != nil {
		return presence.Access{}, false, err
	}
	selfDomain := ""
	if _, d, ok := strings.Cut(a.cfg.Account.URI, "@"); ok {
		selfDomain = strings.ToLower(d)
	}
	store := presence.NewContainerStore(selfDomain)
	for _, c := range snap.Containers {
		store.Replace(c)
	}

	t, value := principal(uri)
	access, ok := store.FindAccessLevel(t, value)
	return access, ok, nil
}

// ChangeAccess ingests snapshot, then moves uri to level. A level of "none"
// removes uri from every level. It returns the requests sent by the change.
func (a *App) ChangeAccess(snapshot []byte, uri, level string) ([]*Exchange, error) {
	remove := strings.EqualFold(level, "none")
	var target presence.Level
	if !remove {
		l, err := presence.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		target = l
	}

	s, err := a.newSession(AcceptAll, time.Time{})
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	if err := s.ingest(snapshot); err != nil {
		a.op.Fail()
		return nil, err
	}
	before := len(s.transport.Exchanges())

	t, value := principal(uri)
	if remove {
		err = s.RemoveAccess(t, value)
	} else {
		err = s.ChangeAccessLevel(target, t, value)
	}
	if err != nil {
		a.op.Fail()
		return nil, fmt.Errorf("changing access level: %w", err)
	}
	s.transport.Drain()
	return s.transport.Exchanges()[before:], nil
}

// History returns the most recent journaled requests.
func (a *App) History(limit int) ([]*model.Request, error) {
	return a.db.ListRequests(limit)
}

// Contacts returns the contact list.
func (a *App) Contacts() ([]*model.Contact, error) {
	return a.db.List()
}

// ArchiveList returns the names of archived traces starting with prefix.
func (a *App) ArchiveList(prefix string) ([]string, error) {
	if a.archive == nil {
		return nil, ErrNoArchive
	}
	return a.archive.List(prefix)
}

// ArchiveShow decrypts the named trace into w.
func (a *App) ArchiveShow(name, passphrase string, w io.Writer) error {
	if a.archive == nil {
		return ErrNoArchive
	}
	var sealed bytes.Buffer
	if err := a.archive.Get(name, &sealed); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking key: %w", err)
	}
	if err := dec.Decrypt(&sealed, w); err != nil {
		return fmt.Errorf("decrypting %s: %w", name, err)
	}
	return nil
}

// MigrateDatabase applies pending migrations to the configured journal.
func MigrateDatabase(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, DatabaseName(cfg.Account.URI), nil)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return migrations.Status{}, err
	}
	return db.SchemaStatus()
}

// DatabaseStatus reports the schema version of the configured journal.
func DatabaseStatus(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, DatabaseName(cfg.Account.URI), nil)
	if err != nil {
		return migrations.Status{}, fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()
	return db.SchemaStatus()
}

// Close closes all resources. When the session wrote to the journal and an
// archive is configured, a snapshot of the journal is archived as
// "<sessionID>/journal.db.age" first.
func (a *App) Close() error {
	var firstErr error

	if a.op.Journaled() && a.archive != nil {
		if err := a.archiveJournal(); err != nil {
			firstErr = err
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.logger.Info("session finished", "command", a.op.Command, "status", a.op.Status)
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func (a *App) archiveJournal() error {
	tmpFile, err := os.CreateTemp("", "richpres-journal-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for journal snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return err
	}

	plain, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening journal snapshot: %w", err)
	}
	defer plain.Close()

	var sealed bytes.Buffer
	if err := a.encryptor.Encrypt(plain, &sealed); err != nil {
		return fmt.Errorf("sealing journal snapshot: %w", err)
	}
	name := a.op.SessionID + "/journal.db.age"
	if err := a.archive.Put(name, &sealed, int64(sealed.Len())); err != nil {
		return fmt.Errorf("archiving journal snapshot: %w", err)
	}
	return nil
}
