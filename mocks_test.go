package accounts_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var (
	testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	testEncryptionIV  = []byte("fedcba9876543210")
)

// testConfig implements accounts.Config with fixed test secrets
type testConfig struct {
	authKey    string
	refreshKey string
	issuer     string
	audience   []string
	dev        bool
}

func newTestConfig() testConfig {
	return testConfig{
		authKey:    "auth-signing-secret",
		refreshKey: "refresh-signing-secret",
		issuer:     "accounts-test",
		audience:   []string{"accounts:test"},
	}
}

func (c testConfig) GetAuthSigningKey() string    { return c.authKey }
func (c testConfig) GetRefreshSigningKey() string { return c.refreshKey }
func (c testConfig) GetEncryptionKey() []byte     { return testEncryptionKey }
func (c testConfig) GetEncryptionIV() []byte      { return testEncryptionIV }
func (c testConfig) GetIssuer() string            { return c.issuer }
func (c testConfig) GetAudience() []string        { return c.audience }
func (c testConfig) GetAuthTokenMinutes() int     { return 15 }
func (c testConfig) GetRefreshTokenMinutes() int  { return 60 }
func (c testConfig) GetRefreshCookieName() string { return "refresh_token" }
func (c testConfig) GetXSRFCookieName() string    { return "XSRF-TOKEN" }
func (c testConfig) GetDev() bool                 { return c.dev }

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

func notFound(meta map[string]any) error {
	return repository.NewRecordNotFound().WithMetadata(meta)
}

// captureMailer records outgoing messages and can simulate delivery failures
type captureMailer struct {
	mu   sync.Mutex
	sent []accounts.MailMessage
	fail error
}

func (m *captureMailer) Send(_ context.Context, msg accounts.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) accounts.MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "expected at least one mail to be sent")
	return m.sent[len(m.sent)-1]
}

// capturingSink collects activity events in memory
type capturingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *capturingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *capturingSink) has(eventType accounts.ActivityEventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// memorySettingsStore is an in-memory SettingsStore with the same lazy
// creation semantics as the bun-backed store
type memorySettingsStore struct {
	mu     sync.Mutex
	record *accounts.Settings
	getErr error
	saves  int
}

func (s *memorySettingsStore) Get(_ context.Context) (*accounts.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.record == nil {
		s.record = accounts.DefaultSettings()
	}
	clone := *s.record
	return &clone, nil
}

func (s *memorySettingsStore) GetTx(ctx context.Context, _ bun.IDB) (*accounts.Settings, error) {
	return s.Get(ctx)
}

func (s *memorySettingsStore) Save(_ context.Context, record *accounts.Settings) (*accounts.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = accounts.SettingsID
	clone := *record
	s.record = &clone
	s.saves++
	return record, nil
}

func (s *memorySettingsStore) SaveTx(ctx context.Context, _ bun.IDB, record *accounts.Settings) (*accounts.Settings, error) {
	return s.Save(ctx, record)
}

func (s *memorySettingsStore) mutate(fn func(*accounts.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		s.record = accounts.DefaultSettings()
	}
	fn(s.record)
}

// stubAccounts is an in-memory Accounts store. Only the methods the
// services exercise are implemented; the embedded interface covers the rest.
type stubAccounts struct {
	accounts.Accounts

	mu      sync.Mutex
	byID    map[uuid.UUID]*accounts.Account
	creds   map[uuid.UUID]*accounts.Credentials
	byEmail map[string]uuid.UUID

	attempted       int
	succeeded       int
	lastIP          string
	statusUpdates   []accounts.AccountStatus
	deleted         []uuid.UUID
	updateStatusErr error
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{
		byID:    map[uuid.UUID]*accounts.Account{},
		creds:   map[uuid.UUID]*accounts.Credentials{},
		byEmail: map[string]uuid.UUID{},
	}
}

func (s *stubAccounts) add(account *accounts.Account, creds *accounts.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	creds.AccountID = account.ID
	s.byID[account.ID] = account
	s.creds[account.ID] = creds
	s.byEmail[creds.Email] = account.ID
}

func (s *stubAccounts) GetWithCredentials(_ context.Context, id uuid.UUID) (*accounts.Account, *accounts.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return nil, nil, notFound(map[string]any{"id": id.String()})
	}
	return account, s.creds[id], nil
}

func (s *stubAccounts) GetWithCredentialsTx(ctx context.Context, _ bun.IDB, id uuid.UUID) (*accounts.Account, *accounts.Credentials, error) {
	return s.GetWithCredentials(ctx, id)
}

func (s *stubAccounts) GetByEmail(_ context.Context, sealedEmail string) (*accounts.Account, *accounts.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[sealedEmail]
	if !ok {
		return nil, nil, notFound(map[string]any{"identifier": "email"})
	}
	return s.byID[id], s.creds[id], nil
}

func (s *stubAccounts) GetByEmailTx(ctx context.Context, _ bun.IDB, sealedEmail string) (*accounts.Account, *accounts.Credentials, error) {
	return s.GetByEmail(ctx, sealedEmail)
}

func (s *stubAccounts) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, notFound(map[string]any{"id": id})
	}
	account, ok := s.byID[parsed]
	if !ok {
		return nil, notFound(map[string]any{"id": id})
	}
	return account, nil
}

func (s *stubAccounts) GetByLastLoginIPTx(_ context.Context, _ bun.IDB, ip string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.byID {
		if account.LastLoginIP == ip {
			return account, nil
		}
	}
	return nil, notFound(map[string]any{"identifier": "last_login_ip"})
}

func (s *stubAccounts) CreateWithCredentialsTx(_ context.Context, _ bun.IDB, account *accounts.Account, creds *accounts.Credentials) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.EnsureStatus()
	if account.Role == "" {
		account.Role = accounts.RoleUser
	}
	if account.Status == accounts.AccountStatusPending && account.PendingUntil == nil {
		until := time.Now().Add(accounts.PendingWindow)
		account.PendingUntil = &until
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	creds.AccountID = account.ID
	if creds.ID == uuid.Nil {
		creds.ID = uuid.New()
	}

	s.byID[account.ID] = account
	s.creds[account.ID] = creds
	s.byEmail[creds.Email] = account.ID

	return account, nil
}

func (s *stubAccounts) UpdateStatus(_ context.Context, id uuid.UUID, status accounts.AccountStatus) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateStatusErr != nil {
		return nil, s.updateStatusErr
	}
	account, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id.String()})
	}
	account.Status = status
	s.statusUpdates = append(s.statusUpdates, status)
	return account, nil
}

func (s *stubAccounts) UpdateStatusTx(ctx context.Context, _ bun.IDB, id uuid.UUID, status accounts.AccountStatus) (*accounts.Account, error) {
	return s.UpdateStatus(ctx, id, status)
}

func (s *stubAccounts) SetPasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.creds[id]
	if !ok {
		return notFound(map[string]any{"account_id": id.String()})
	}
	creds.PasswordHash = passwordHash
	return nil
}

func (s *stubAccounts) SetEmailTx(_ context.Context, _ bun.IDB, id uuid.UUID, sealedEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.creds[id]
	if !ok {
		return notFound(map[string]any{"account_id": id.String()})
	}
	delete(s.byEmail, creds.Email)
	creds.Email = sealedEmail
	s.byEmail[sealedEmail] = id
	return nil
}

func (s *stubAccounts) ListAll(context.Context) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*accounts.Account, 0, len(s.byID))
	for _, account := range s.byID {
		out = append(out, account)
	}
	return out, nil
}

func (s *stubAccounts) ListCredentialsTx(context.Context, bun.IDB) ([]*accounts.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*accounts.Credentials, 0, len(s.creds))
	for _, creds := range s.creds {
		out = append(out, creds)
	}
	return out, nil
}

func (s *stubAccounts) TrackAttemptedLogin(_ context.Context, account *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted++
	if live, ok := s.byID[account.ID]; ok {
		live.LoginAttempts++
		now := time.Now()
		live.LoginAttemptAt = &now
	}
	return nil
}

func (s *stubAccounts) TrackSuccessfulLogin(_ context.Context, account *accounts.Account, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.lastIP = ip
	if live, ok := s.byID[account.ID]; ok {
		live.LoginAttempts = 0
		live.LoginAttemptAt = nil
	}
	return nil
}

func (s *stubAccounts) DeleteCascadeTx(_ context.Context, _ bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if creds, ok := s.creds[id]; ok {
		delete(s.byEmail, creds.Email)
	}
	delete(s.byID, id)
	delete(s.creds, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// stubRoles keeps roles keyed by name
type stubRoles struct {
	accounts.Roles

	mu      sync.Mutex
	byName  map[string]*accounts.Role
	created []*accounts.Role
	updated []*accounts.Role
	dropped []string
}

func newStubRoles() *stubRoles {
	return &stubRoles{byName: map[string]*accounts.Role{}}
}

func (s *stubRoles) add(role *accounts.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	s.byName[role.Name] = role
}

func (s *stubRoles) GetByName(_ context.Context, name string) (*accounts.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.byName[name]
	if !ok {
		return nil, notFound(map[string]any{"name": name})
	}
	return role, nil
}

func (s *stubRoles) GetByNameTx(ctx context.Context, _ bun.IDB, name string) (*accounts.Role, error) {
	return s.GetByName(ctx, name)
}

func (s *stubRoles) List(context.Context) ([]*accounts.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*accounts.Role, 0, len(s.byName))
	for _, role := range s.byName {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubRoles) Create(_ context.Context, record *accounts.Role, _ ...repository.InsertCriteria) (*accounts.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.byName[record.Name] = record
	s.created = append(s.created, record)
	return record, nil
}

func (s *stubRoles) Update(_ context.Context, record *accounts.Role, _ ...repository.UpdateCriteria) (*accounts.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[record.Name] = record
	s.updated = append(s.updated, record)
	return record, nil
}

func (s *stubRoles) DeleteReassigningTx(_ context.Context, _ bun.IDB, name, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return notFound(map[string]any{"name": name})
	}
	delete(s.byName, name)
	s.dropped = append(s.dropped, name)
	return nil
}

// stubModifications keeps pending modifications keyed by id
type stubModifications struct {
	accounts.Modifications

	mu   sync.Mutex
	byID map[string]*accounts.UserModification
}

func newStubModifications() *stubModifications {
	return &stubModifications{byID: map[string]*accounts.UserModification{}}
}

func (s *stubModifications) add(record *accounts.UserModification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[record.ID.String()] = record
}

func (s *stubModifications) CreateReplacingTx(_ context.Context, _ bun.IDB, record *accounts.UserModification) (*accounts.UserModification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.byID {
		if existing.AccountID == record.AccountID && existing.Kind == record.Kind {
			delete(s.byID, id)
		}
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(accounts.ModificationWindow)
	}
	s.byID[record.ID.String()] = record
	return record, nil
}

func (s *stubModifications) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*accounts.UserModification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id})
	}
	return record, nil
}

func (s *stubModifications) GetByAccountKind(_ context.Context, accountID uuid.UUID, kind accounts.ModificationKind) (*accounts.UserModification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.byID {
		if record.AccountID == accountID && record.Kind == kind {
			return record, nil
		}
	}
	return nil, notFound(map[string]any{"account_id": accountID.String(), "kind": kind})
}

func (s *stubModifications) DeleteByAccountKindTx(_ context.Context, _ bun.IDB, accountID uuid.UUID, kind accounts.ModificationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.byID {
		if record.AccountID == accountID && record.Kind == kind {
			delete(s.byID, id)
		}
	}
	return nil
}

func (s *stubModifications) DeleteByIDTx(_ context.Context, _ bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id.String()]; !ok {
		return notFound(map[string]any{"id": id.String()})
	}
	delete(s.byID, id.String())
	return nil
}

func (s *stubModifications) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// stubTwoFactorCodes keeps one challenge per account
type stubTwoFactorCodes struct {
	accounts.TwoFactorCodes

	mu   sync.Mutex
	byID map[string]*accounts.TwoFactorCode
}

func newStubTwoFactorCodes() *stubTwoFactorCodes {
	return &stubTwoFactorCodes{byID: map[string]*accounts.TwoFactorCode{}}
}

func (s *stubTwoFactorCodes) add(record *accounts.TwoFactorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[record.ID.String()] = record
}

func (s *stubTwoFactorCodes) CreateReplacingTx(_ context.Context, _ bun.IDB, record *accounts.TwoFactorCode) (*accounts.TwoFactorCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.byID {
		if existing.AccountID == record.AccountID {
			delete(s.byID, id)
		}
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(accounts.TwoFactorWindow)
	}
	s.byID[record.ID.String()] = record
	return record, nil
}

func (s *stubTwoFactorCodes) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*accounts.TwoFactorCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id})
	}
	return record, nil
}

func (s *stubTwoFactorCodes) DeleteByIDTx(_ context.Context, _ bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id.String()]; !ok {
		return notFound(map[string]any{"id": id.String()})
	}
	delete(s.byID, id.String())
	return nil
}

func (s *stubTwoFactorCodes) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *stubTwoFactorCodes) only(t *testing.T) *accounts.TwoFactorCode {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.byID, 1, "expected exactly one pending challenge")
	for _, record := range s.byID {
		return record
	}
	return nil
}

// stubInvitations keeps invitations keyed by id
type stubInvitations struct {
	accounts.Invitations

	mu   sync.Mutex
	byID map[string]*accounts.UserInvitation
}

func newStubInvitations() *stubInvitations {
	return &stubInvitations{byID: map[string]*accounts.UserInvitation{}}
}

func (s *stubInvitations) add(record *accounts.UserInvitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[record.ID.String()] = record
}

func (s *stubInvitations) CreateReplacingTx(_ context.Context, _ bun.IDB, record *accounts.UserInvitation) (*accounts.UserInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.byID {
		if existing.Email == record.Email {
			delete(s.byID, id)
		}
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(accounts.InvitationWindow)
	}
	s.byID[record.ID.String()] = record
	return record, nil
}

func (s *stubInvitations) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*accounts.UserInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id})
	}
	return record, nil
}

func (s *stubInvitations) GetByEmail(_ context.Context, sealedEmail string) (*accounts.UserInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.byID {
		if record.Email == sealedEmail {
			return record, nil
		}
	}
	return nil, notFound(map[string]any{"identifier": "email"})
}

func (s *stubInvitations) DeleteByIDTx(_ context.Context, _ bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id.String()]; !ok {
		return notFound(map[string]any{"id": id.String()})
	}
	delete(s.byID, id.String())
	return nil
}

func (s *stubInvitations) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// stubBlacklistStore keeps entries keyed by value
type stubBlacklistStore struct {
	accounts.Blacklist

	mu      sync.Mutex
	byIP    map[string]*accounts.BlacklistEntry
	byEmail map[string]*accounts.BlacklistEntry
}

func newStubBlacklistStore() *stubBlacklistStore {
	return &stubBlacklistStore{
		byIP:    map[string]*accounts.BlacklistEntry{},
		byEmail: map[string]*accounts.BlacklistEntry{},
	}
}

func (s *stubBlacklistStore) GetByIP(_ context.Context, ip string) (*accounts.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byIP[ip]
	if !ok {
		return nil, notFound(map[string]any{"ip": ip})
	}
	return entry, nil
}

func (s *stubBlacklistStore) GetByEmail(_ context.Context, sealedEmail string) (*accounts.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byEmail[sealedEmail]
	if !ok {
		return nil, notFound(map[string]any{"identifier": "email"})
	}
	return entry, nil
}

func (s *stubBlacklistStore) Create(_ context.Context, record *accounts.BlacklistEntry, _ ...repository.InsertCriteria) (*accounts.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(record)
	return record, nil
}

func (s *stubBlacklistStore) CreateTx(_ context.Context, _ bun.IDB, record *accounts.BlacklistEntry, _ ...repository.InsertCriteria) (*accounts.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(record)
	return record, nil
}

func (s *stubBlacklistStore) store(record *accounts.BlacklistEntry) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.IP != "" {
		s.byIP[record.IP] = record
	}
	if record.Email != "" {
		s.byEmail[record.Email] = record
	}
}

func (s *stubBlacklistStore) List(context.Context) ([]*accounts.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries(), nil
}

func (s *stubBlacklistStore) ListTx(context.Context, bun.IDB) ([]*accounts.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries(), nil
}

func (s *stubBlacklistStore) entries() []*accounts.BlacklistEntry {
	out := make([]*accounts.BlacklistEntry, 0, len(s.byIP)+len(s.byEmail))
	for _, entry := range s.byIP {
		out = append(out, entry)
	}
	for _, entry := range s.byEmail {
		out = append(out, entry)
	}
	return out
}

func (s *stubBlacklistStore) UpdateEmailTx(_ context.Context, _ bun.IDB, id uuid.UUID, sealedEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, entry := range s.byEmail {
		if entry.ID == id {
			delete(s.byEmail, email)
			entry.Email = sealedEmail
			s.byEmail[sealedEmail] = entry
			return nil
		}
	}
	return notFound(map[string]any{"id": id.String()})
}

func (s *stubBlacklistStore) DeleteByIP(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIP[ip]; !ok {
		return notFound(map[string]any{"ip": ip})
	}
	delete(s.byIP, ip)
	return nil
}

func (s *stubBlacklistStore) DeleteByIPTx(ctx context.Context, _ bun.IDB, ip string) error {
	return s.DeleteByIP(ctx, ip)
}

func (s *stubBlacklistStore) DeleteByEmailTx(_ context.Context, _ bun.IDB, sealedEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[sealedEmail]; !ok {
		return notFound(map[string]any{"identifier": "email"})
	}
	delete(s.byEmail, sealedEmail)
	return nil
}

// stubAccessTokens keeps personal access token records
type stubAccessTokens struct {
	accounts.AccessTokens

	mu     sync.Mutex
	byID   map[uuid.UUID]*accounts.AccessToken
	byName map[string]*accounts.AccessToken
}

func newStubAccessTokens() *stubAccessTokens {
	return &stubAccessTokens{
		byID:   map[uuid.UUID]*accounts.AccessToken{},
		byName: map[string]*accounts.AccessToken{},
	}
}

func (s *stubAccessTokens) add(record *accounts.AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[record.ID] = record
	s.byName[record.Name] = record
}

func (s *stubAccessTokens) GetAccessToken(_ context.Context, id uuid.UUID) (*accounts.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, notFound(map[string]any{"id": id.String()})
	}
	return record, nil
}

func (s *stubAccessTokens) GetByName(_ context.Context, name string) (*accounts.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byName[name]
	if !ok {
		return nil, notFound(map[string]any{"name": name})
	}
	return record, nil
}

func (s *stubAccessTokens) Create(_ context.Context, record *accounts.AccessToken, _ ...repository.InsertCriteria) (*accounts.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.byID[record.ID] = record
	s.byName[record.Name] = record
	return record, nil
}

func (s *stubAccessTokens) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*accounts.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*accounts.AccessToken, 0)
	for _, record := range s.byID {
		if record.AccountID == accountID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubAccessTokens) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return notFound(map[string]any{"id": id.String()})
	}
	delete(s.byID, id)
	delete(s.byName, record.Name)
	return nil
}

// stubRepo wires the in-memory stores behind the RepositoryManager
// interface. RunInTx executes the callback with a zero transaction since
// the stores ignore the handle.
type stubRepo struct {
	accounts.RepositoryManager

	accts    *stubAccounts
	roles    *stubRoles
	mods     *stubModifications
	codes    *stubTwoFactorCodes
	invites  *stubInvitations
	blocked  *stubBlacklistStore
	tokens   *stubAccessTokens
	settings *memorySettingsStore

	txErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accts:    newStubAccounts(),
		roles:    newStubRoles(),
		mods:     newStubModifications(),
		codes:    newStubTwoFactorCodes(),
		invites:  newStubInvitations(),
		blocked:  newStubBlacklistStore(),
		tokens:   newStubAccessTokens(),
		settings: &memorySettingsStore{},
	}
}

func (r *stubRepo) Accounts() accounts.Accounts             { return r.accts }
func (r *stubRepo) Roles() accounts.Roles                   { return r.roles }
func (r *stubRepo) Modifications() accounts.Modifications   { return r.mods }
func (r *stubRepo) TwoFactorCodes() accounts.TwoFactorCodes { return r.codes }
func (r *stubRepo) Invitations() accounts.Invitations       { return r.invites }
func (r *stubRepo) Blacklist() accounts.Blacklist           { return r.blocked }
func (r *stubRepo) AccessTokens() accounts.AccessTokens     { return r.tokens }
func (r *stubRepo) Settings() accounts.SettingsStore        { return r.settings }

func (r *stubRepo) Validate() error { return nil }
func (r *stubRepo) MustValidate()   {}

func (r *stubRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if r.txErr != nil {
		return r.txErr
	}
	return f(ctx, bun.Tx{})
}

func newTestCipher(t *testing.T) *accounts.EmailCipher {
	t.Helper()
	c, err := accounts.NewEmailCipher(testEncryptionKey, testEncryptionIV)
	require.NoError(t, err)
	return c
}

func newTestCodec(t *testing.T, store accounts.SettingsStore) *accounts.EmailCodec {
	t.Helper()
	return accounts.NewEmailCodec(newTestCipher(t), accounts.NewSettingsService(store))
}

func newTestTokens() accounts.TokenService {
	return accounts.NewTokenService(newTestConfig(), quietLogger{})
}

func seedAccount(t *testing.T, repo *stubRepo, email, password string, mutate ...func(*accounts.Account)) (*accounts.Account, *accounts.Credentials) {
	t.Helper()

	hash, err := accounts.HashPassword(password)
	require.NoError(t, err)

	account := &accounts.Account{
		ID:     uuid.New(),
		Name:   "Test Account",
		Role:   accounts.RoleUser,
		Status: accounts.AccountStatusActive,
	}
	for _, fn := range mutate {
		fn(account)
	}

	creds := &accounts.Credentials{
		ID:           uuid.New(),
		Email:        accounts.NormalizeEmail(email),
		PasswordHash: hash,
	}

	repo.accts.add(account, creds)

	if _, ok := repo.roles.byName[account.Role]; !ok {
		repo.roles.add(&accounts.Role{Name: account.Role, Scopes: []string{}})
	}

	return account, creds
}
