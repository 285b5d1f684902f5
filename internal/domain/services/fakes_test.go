package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/internal/reliability/retry"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memStore backs every in-memory repository used by the service tests. One
// mutex guards all tables, which keeps each repository call atomic the same
// way a single SQL statement is.
type memStore struct {
	mu sync.Mutex

	users      map[uuid.UUID]models.User
	docTypes   map[uuid.UUID]models.DocumentType
	docs       map[uuid.UUID]models.Document
	versions   map[uuid.UUID]models.DocumentVersion
	grants     []models.UserPermissionGrant
	signatures []models.Signature
	processes  map[uuid.UUID]models.VotingProcess
	votes      []models.Vote
	subs       map[uuid.UUID]models.Substitution
	subSeq     map[uuid.UUID]int
	audits     []models.AuditLog
	seq        int

	casApplied int

	// afterSignatureCreate and afterProcessCreate run outside the lock once
	// the row is stored, letting tests interleave a competing writer.
	afterSignatureCreate func(versionID uuid.UUID)
	afterProcessCreate   func(versionID uuid.UUID)
	// afterPendingCheck and beforeVoteCreate run outside the lock between a
	// workflow's read and its write.
	afterPendingCheck func(versionID, userID uuid.UUID)
	beforeVoteCreate  func(processID, userID uuid.UUID)
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]models.User{},
		docTypes:  map[uuid.UUID]models.DocumentType{},
		docs:      map[uuid.UUID]models.Document{},
		versions:  map[uuid.UUID]models.DocumentVersion{},
		processes: map[uuid.UUID]models.VotingProcess{},
		subs:      map[uuid.UUID]models.Substitution{},
		subSeq:    map[uuid.UUID]int{},
	}
}

func (s *memStore) next() int {
	s.seq++
	return s.seq
}

func (s *memStore) setStatus(versionID uuid.UUID, status models.DocumentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.versions[versionID]
	v.Status = status
	v.LockVersion++
	s.versions[versionID] = v
}

func (s *memStore) appliedTransitions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casApplied
}

func (s *memStore) auditCount(resourceID uuid.UUID, action models.AuditAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.audits {
		if a.ResourceID == resourceID && a.Action == action {
			n++
		}
	}
	return n
}

func (s *memStore) lastAudit(resourceID uuid.UUID, action models.AuditAction) (models.AuditLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.audits) - 1; i >= 0; i-- {
		if a := s.audits[i]; a.ResourceID == resourceID && a.Action == action {
			return a, true
		}
	}
	return models.AuditLog{}, false
}

func missing(entity string) error {
	return fmt.Errorf("%s not found: %w", entity, repositories.ErrNotFound)
}

// users

type memUsers struct{ *memStore }

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range r.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = *user
	return nil
}

func (r memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, missing("user")
	}
	return &u, nil
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, missing("user")
}

func (r memUsers) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r memUsers) List(ctx context.Context, params repositories.ListParams) ([]models.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

// document types

type memDocTypes struct{ *memStore }

func (r memDocTypes) Create(ctx context.Context, docType *models.DocumentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if docType.ID == uuid.Nil {
		docType.ID = uuid.New()
	}
	r.docTypes[docType.ID] = *docType
	return nil
}

func (r memDocTypes) GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dt, ok := r.docTypes[id]
	if !ok {
		return nil, missing("document type")
	}
	return &dt, nil
}

func (r memDocTypes) List(ctx context.Context) ([]models.DocumentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.DocumentType, 0, len(r.docTypes))
	for _, dt := range r.docTypes {
		out = append(out, dt)
	}
	return out, nil
}

// documents

type memDocs struct{ *memStore }

func (r memDocs) Create(ctx context.Context, doc *models.Document, version *models.DocumentVersion, grant *models.UserPermissionGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	doc.CurrentVersionID = &version.ID
	version.DocumentID = doc.ID
	version.CreatedAt = time.Now()
	grant.DocumentID = doc.ID
	r.docs[doc.ID] = *doc
	r.versions[version.ID] = *version
	r.grants = append(r.grants, *grant)
	return nil
}

func (r memDocs) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, missing("document")
	}
	d.DocumentType = r.docTypes[d.DocumentTypeID]
	d.Versions = nil
	for _, v := range r.versions {
		if v.DocumentID == id {
			d.Versions = append(d.Versions, v)
		}
	}
	sort.Slice(d.Versions, func(i, j int) bool { return d.Versions[i].VersionNumber < d.Versions[j].VersionNumber })
	d.Grants = nil
	for _, g := range r.grants {
		if g.DocumentID == id {
			d.Grants = append(d.Grants, g)
		}
	}
	return &d, nil
}

func (r memDocs) Rename(ctx context.Context, id uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return missing("document")
	}
	d.Name = name
	r.docs[id] = d
	return nil
}

func (r memDocs) SetCurrentVersion(ctx context.Context, id, versionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return missing("document")
	}
	d.CurrentVersionID = &versionID
	r.docs[id] = d
	return nil
}

func (r memDocs) List(ctx context.Context, params repositories.ListParams) ([]models.Document, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (r memDocs) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return missing("document")
	}
	for _, v := range r.versions {
		if v.DocumentID == id && v.Status != models.StatusDraft && v.Status != models.StatusArchived {
			return repositories.ErrConflict
		}
	}
	for vid, v := range r.versions {
		if v.DocumentID == id {
			delete(r.versions, vid)
		}
	}
	kept := r.grants[:0]
	for _, g := range r.grants {
		if g.DocumentID != id {
			kept = append(kept, g)
		}
	}
	r.grants = kept
	delete(r.docs, id)
	return nil
}

// versions

type memVersions struct{ *memStore }

func (r memVersions) Create(ctx context.Context, version *models.DocumentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.DocumentID == version.DocumentID && v.VersionNumber == version.VersionNumber {
			return repositories.ErrDuplicate
		}
	}
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	version.CreatedAt = time.Now()
	r.versions[version.ID] = *version
	return nil
}

func (r memVersions) GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return nil, missing("document version")
	}
	v.Signatures = nil
	for _, sig := range r.signatures {
		if sig.VersionID == id {
			v.Signatures = append(v.Signatures, sig)
		}
	}
	v.VotingProcesses = nil
	for _, p := range r.processes {
		if p.VersionID == id {
			p.Voters, p.Votes = nil, nil
			v.VotingProcesses = append(v.VotingProcesses, p)
		}
	}
	return &v, nil
}

func (r memVersions) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentVersion
	for _, v := range r.versions {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (r memVersions) LatestNumber(ctx context.Context, documentID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := 0
	for _, v := range r.versions {
		if v.DocumentID == documentID && v.VersionNumber > latest {
			latest = v.VersionNumber
		}
	}
	return latest, nil
}

func (r memVersions) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, expectedLock int64, status models.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok || v.LockVersion != expectedLock {
		return fmt.Errorf("document version %s lock %d: %w", id, expectedLock, repositories.ErrConflict)
	}
	if v.Status != status {
		r.casApplied++
	}
	v.Status = status
	v.LockVersion++
	r.versions[id] = v
	return nil
}

// grants

type memGrants struct{ *memStore }

func (r memGrants) Grant(ctx context.Context, grant *models.UserPermissionGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.DocumentID == grant.DocumentID && g.UserID == grant.UserID && g.Permission == grant.Permission {
			return fmt.Errorf("permission '%s' already granted: %w", grant.Permission, repositories.ErrDuplicate)
		}
	}
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	r.grants = append(r.grants, *grant)
	return nil
}

func (r memGrants) Revoke(ctx context.Context, documentID, userID uuid.UUID, permission models.DocumentPermissionName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, g := range r.grants {
		if g.DocumentID == documentID && g.UserID == userID && g.Permission == permission {
			r.grants = append(r.grants[:i], r.grants[i+1:]...)
			return nil
		}
	}
	return missing("grant")
}

func (r memGrants) ListForUser(ctx context.Context, documentID, userID uuid.UUID) ([]models.DocumentPermissionName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentPermissionName
	for _, g := range r.grants {
		if g.DocumentID == documentID && g.UserID == userID {
			out = append(out, g.Permission)
		}
	}
	return out, nil
}

func (r memGrants) ListForDocument(ctx context.Context, documentID uuid.UUID) ([]models.UserPermissionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserPermissionGrant
	for _, g := range r.grants {
		if g.DocumentID == documentID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r memGrants) HoldersOf(ctx context.Context, documentID uuid.UUID, permission models.DocumentPermissionName) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, g := range r.grants {
		if g.DocumentID == documentID && g.Permission == permission {
			out = append(out, g.UserID)
		}
	}
	return out, nil
}

// signatures

type memSignatures struct{ *memStore }

func (r memSignatures) Create(ctx context.Context, sig *models.Signature) error {
	r.mu.Lock()
	if _, ok := r.versions[sig.VersionID]; !ok {
		r.mu.Unlock()
		return missing("document version")
	}
	for _, existing := range r.signatures {
		if existing.VersionID == sig.VersionID && existing.UserID == sig.UserID && existing.Status == models.SignaturePending {
			r.mu.Unlock()
			return fmt.Errorf("signer already has a pending signature: %w", repositories.ErrDuplicate)
		}
	}
	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	r.signatures = append(r.signatures, *sig)
	hook := r.afterSignatureCreate
	r.mu.Unlock()

	if hook != nil {
		hook(sig.VersionID)
	}
	return nil
}

func (r memSignatures) GetByID(ctx context.Context, id uuid.UUID) (*models.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sig := range r.signatures {
		if sig.ID == id {
			sig.User = r.users[sig.UserID]
			return &sig, nil
		}
	}
	return nil, missing("signature")
}

func (r memSignatures) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Signature
	for _, sig := range r.signatures {
		if sig.VersionID == versionID {
			sig.User = r.users[sig.UserID]
			out = append(out, sig)
		}
	}
	return out, nil
}

func (r memSignatures) CountByVersion(ctx context.Context, versionID uuid.UUID) (int64, error) {
	list, _ := r.ListByVersion(ctx, versionID)
	return int64(len(list)), nil
}

func (r memSignatures) HasPending(ctx context.Context, versionID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	pending := false
	for _, sig := range r.signatures {
		if sig.VersionID == versionID && sig.UserID == userID && sig.Status == models.SignaturePending {
			pending = true
			break
		}
	}
	hook := r.afterPendingCheck
	r.mu.Unlock()

	if hook != nil {
		hook(versionID, userID)
	}
	return pending, nil
}

func (r memSignatures) Complete(ctx context.Context, id uuid.UUID, status models.SignatureStatus, signedAt time.Time, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.signatures {
		sig := &r.signatures[i]
		if sig.ID != id {
			continue
		}
		if sig.Status != models.SignaturePending {
			return repositories.ErrConflict
		}
		sig.Status = status
		sig.SignedAt = &signedAt
		sig.SignatureData = data
		return nil
	}
	return missing("signature")
}

func (r memSignatures) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sig := range r.signatures {
		if sig.ID == id {
			r.signatures = append(r.signatures[:i], r.signatures[i+1:]...)
			return nil
		}
	}
	return missing("signature")
}

// voting processes

type memProcesses struct{ *memStore }

func (r memProcesses) Create(ctx context.Context, process *models.VotingProcess) error {
	r.mu.Lock()
	if process.ID == uuid.Nil {
		process.ID = uuid.New()
	}
	for i := range process.Voters {
		process.Voters[i].ProcessID = process.ID
		process.Voters[i].Position = i
	}
	process.CreatedAt = time.Now()
	r.processes[process.ID] = *process
	hook := r.afterProcessCreate
	r.mu.Unlock()

	if hook != nil {
		hook(process.VersionID)
	}
	return nil
}

func (r memProcesses) load(id uuid.UUID) (models.VotingProcess, bool) {
	p, ok := r.processes[id]
	if !ok {
		return p, false
	}
	p.Voters = append([]models.VotingProcessVoter(nil), p.Voters...)
	p.Votes = nil
	for _, v := range r.votes {
		if v.ProcessID == id {
			p.Votes = append(p.Votes, v)
		}
	}
	return p, true
}

func (r memProcesses) GetByID(ctx context.Context, id uuid.UUID) (*models.VotingProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.load(id)
	if !ok {
		return nil, missing("voting process")
	}
	return &p, nil
}

func (r memProcesses) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.VotingProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.VotingProcess
	for id, p := range r.processes {
		if p.VersionID == versionID {
			full, _ := r.load(id)
			out = append(out, full)
		}
	}
	return out, nil
}

func (r memProcesses) CountByVersion(ctx context.Context, versionID uuid.UUID) (int64, error) {
	list, _ := r.ListByVersion(ctx, versionID)
	return int64(len(list)), nil
}

func (r memProcesses) Resolve(ctx context.Context, id uuid.UUID, status models.VotingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[id]
	if !ok {
		return missing("voting process")
	}
	if p.Status != models.VotingInProgress {
		return repositories.ErrConflict
	}
	p.Status = status
	r.processes[id] = p
	return nil
}

func (r memProcesses) Reconfigure(ctx context.Context, id uuid.UUID, voters []uuid.UUID, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[id]
	if !ok {
		return missing("voting process")
	}
	if p.Status != models.VotingInProgress {
		return repositories.ErrConflict
	}
	for _, v := range r.votes {
		if v.ProcessID == id {
			return repositories.ErrConflict
		}
	}
	if voters != nil {
		p.Voters = nil
		for i, uid := range voters {
			p.Voters = append(p.Voters, models.VotingProcessVoter{ProcessID: id, UserID: uid, Position: i})
		}
	}
	p.Deadline = deadline
	r.processes[id] = p
	return nil
}

func (r memProcesses) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processes[id]; !ok {
		return missing("voting process")
	}
	delete(r.processes, id)
	kept := r.votes[:0]
	for _, v := range r.votes {
		if v.ProcessID != id {
			kept = append(kept, v)
		}
	}
	r.votes = kept
	return nil
}

// votes

type memVotes struct{ *memStore }

func (r memVotes) Create(ctx context.Context, vote *models.Vote) error {
	r.mu.Lock()
	hook := r.beforeVoteCreate
	r.mu.Unlock()
	if hook != nil {
		hook(vote.ProcessID, vote.UserID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[vote.ProcessID]
	if !ok {
		return missing("voting process")
	}
	if p.Status != models.VotingInProgress {
		return repositories.ErrConflict
	}
	if !p.IsEligible(vote.UserID) {
		return repositories.ErrNotEligible
	}
	for _, v := range r.votes {
		if v.ProcessID == vote.ProcessID && v.UserID == vote.UserID {
			return repositories.ErrDuplicate
		}
	}
	if vote.ID == uuid.Nil {
		vote.ID = uuid.New()
	}
	r.votes = append(r.votes, *vote)
	return nil
}

func (r memVotes) ListByProcess(ctx context.Context, processID uuid.UUID) ([]models.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Vote
	for _, v := range r.votes {
		if v.ProcessID == processID {
			out = append(out, v)
		}
	}
	return out, nil
}

// substitutions

type memSubs struct{ *memStore }

func (r memSubs) Upsert(ctx context.Context, sub *models.Substitution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.subs[sub.PrincipalID]; ok {
		sub.ID = prev.ID
	} else if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	r.subs[sub.PrincipalID] = *sub
	r.subSeq[sub.PrincipalID] = r.next()
	return nil
}

func (r memSubs) GetByPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Substitution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[principalID]
	if !ok {
		return nil, missing("substitution")
	}
	sub.Substitute = r.users[sub.SubstituteID]
	return &sub, nil
}

func (r memSubs) ListActiveForSubstitute(ctx context.Context, substituteID uuid.UUID, now time.Time) ([]models.Substitution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Substitution
	for _, sub := range r.subs {
		if sub.SubstituteID == substituteID && now.Before(sub.Until) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.subSeq[out[i].PrincipalID] > r.subSeq[out[j].PrincipalID] })
	return out, nil
}

func (r memSubs) DeleteByPrincipal(ctx context.Context, principalID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[principalID]; !ok {
		return missing("substitution")
	}
	delete(r.subs, principalID)
	return nil
}

// audit

type memAudit struct{ *memStore }

func (r memAudit) Create(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	r.audits = append(r.audits, *entry)
	return nil
}

func (r memAudit) ListByResource(ctx context.Context, resourceID uuid.UUID, params repositories.ListParams) ([]models.AuditLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditLog
	for i := len(r.audits) - 1; i >= 0; i-- {
		if r.audits[i].ResourceID == resourceID {
			out = append(out, r.audits[i])
		}
	}
	return out, int64(len(out)), nil
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []WorkflowEvent
}

func (e *recordingEmitter) Emit(ctx context.Context, event WorkflowEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) recipients(eventType EventType) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		if ev.EventType == eventType {
			out = append(out, ev.UserEmail)
		}
	}
	sort.Strings(out)
	return out
}

// testClock is a settable clock shared by every service in a harness.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires the engine over one memStore.
type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memStore
	clock    *testClock
	emitter  *recordingEmitter
	tenantID uuid.UUID

	delegation  *DelegationResolver
	permissions *PermissionEvaluator
	machine     *DocumentStateMachine
	documents   *DocumentService
	signatures  *SignatureWorkflow
	voting      *VotingWorkflow

	docType *models.DocumentType
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	emitter := &recordingEmitter{}
	log := logger.NewForTesting()
	retryCfg := &retry.Config{MaxAttempts: 20, InitialBackoff: 0, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}

	users := memUsers{store}
	versions := memVersions{store}
	grants := memGrants{store}
	audit := memAudit{store}

	h := &harness{
		t:        t,
		store:    store,
		clock:    clock,
		emitter:  emitter,
		tenantID: uuid.New(),
	}
	h.ctx = tenant.WithScope(context.Background(), h.tenantID)

	h.delegation = NewDelegationResolver(memSubs{store}, users, audit, clock.Now, log)
	h.permissions = NewPermissionEvaluator(grants, h.delegation)
	h.machine = NewDocumentStateMachine(versions, audit, retryCfg, log)
	h.documents = NewDocumentService(memDocs{store}, memDocTypes{store}, versions, grants, users, audit, h.permissions, h.machine, log)
	h.signatures = NewSignatureWorkflow(versions, memSignatures{store}, users, grants, audit,
		h.permissions, h.delegation, h.machine, emitter, retryCfg, clock.Now, log)
	h.voting = NewVotingWorkflow(versions, memProcesses{store}, memVotes{store}, users, grants, audit,
		h.permissions, h.delegation, h.machine, emitter, retryCfg, clock.Now, 7, log)

	docType, err := h.documents.RegisterDocumentType(h.ctx, "Contract", models.JSONB{
		"title":  map[string]interface{}{"type": "string", "required": true},
		"amount": map[string]interface{}{"type": "number", "required": false},
	})
	require.NoError(t, err)
	h.docType = docType
	return h
}

func (h *harness) user(email string) Actor {
	h.t.Helper()
	u := &models.User{TenantID: h.tenantID, Email: email}
	require.NoError(h.t, memUsers{h.store}.Create(h.ctx, u))
	return Actor{UserID: u.ID, Email: u.Email}
}

// document creates a document owned by creator and returns it with its draft version.
func (h *harness) document(creator Actor) (*models.Document, *models.DocumentVersion) {
	h.t.Helper()
	doc, err := h.documents.CreateDocument(h.ctx, creator, CreateDocumentParams{
		Name:           "Supply agreement",
		DocumentTypeID: h.docType.ID,
		Attributes:     map[string]interface{}{"title": "Supply agreement"},
	})
	require.NoError(h.t, err)
	require.Len(h.t, doc.Versions, 1)
	return doc, &doc.Versions[0]
}

func (h *harness) grant(doc *models.Document, creator Actor, to Actor, permission models.DocumentPermissionName) {
	h.t.Helper()
	_, err := h.documents.GrantPermission(h.ctx, creator, doc.ID, to.Email, permission)
	require.NoError(h.t, err)
}

func (h *harness) status(versionID uuid.UUID) models.DocumentStatus {
	h.t.Helper()
	v, err := memVersions{h.store}.GetByID(h.ctx, versionID)
	require.NoError(h.t, err)
	return v.Status
}

// allowRead gives each actor READ on the version's document unless they can
// already read it. Signers and voters need it to act.
func (h *harness) allowRead(versionID uuid.UUID, actors ...Actor) {
	h.t.Helper()
	v, err := memVersions{h.store}.GetByID(h.ctx, versionID)
	require.NoError(h.t, err)
	grants := memGrants{h.store}
	for _, a := range actors {
		names, err := grants.ListForUser(h.ctx, v.DocumentID, a.UserID)
		require.NoError(h.t, err)
		if NewPermissionSet(names...).CanRead() {
			continue
		}
		require.NoError(h.t, grants.Grant(h.ctx, &models.UserPermissionGrant{
			DocumentID: v.DocumentID,
			UserID:     a.UserID,
			Permission: models.PermissionRead,
		}))
	}
}
