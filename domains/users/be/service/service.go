package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/agronova/tracker-backend/domains/users/be/repo"
	"github.com/agronova/tracker-backend/platform/go/auth"
	"github.com/agronova/tracker-backend/platform/go/persistence"
	generic "github.com/agronova/tracker-backend/platform/go/service"
)

// ErrInvalidCredentials is returned for unknown emails, wrong passwords and
// deactivated accounts alike, so login failures never reveal which it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// LoginResult carries the signed token plus the authenticated user record.
type LoginResult struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
}

// EntityOps is the generic entity surface the users service builds on;
// *service.Service satisfies it.
type EntityOps interface {
	FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error)
	Save(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error)
	UpdateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error)
	DeleteByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	Audit(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]generic.AuditEntry, error)
}

// Service is the users domain service. It exposes the full generic entity
// surface, hashing incoming passwords and scrubbing stored hashes from every
// response, and adds Login on top.
type Service struct {
	entity EntityOps
	users  repo.Repository
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// New constructs the users service.
func New(entity EntityOps, users repo.Repository, tokens *auth.TokenIssuer, logger *zap.Logger) *Service {
	if entity == nil {
		panic("entity service is required")
	}
	if users == nil {
		panic("users repository is required")
	}
	if tokens == nil {
		panic("token issuer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{entity: entity, users: users, tokens: tokens, logger: logger}
}

// Login authenticates by email and password and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	record, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if record == nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if active, ok := record["is_active"].(bool); ok && !active {
		return LoginResult{}, ErrInvalidCredentials
	}

	hash, _ := record["password"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	creds := auth.UserCredentials{
		ID:      asInt64(record["id"]),
		Email:   email,
		IsAdmin: asBool(record["is_admin"]),
	}
	token, err := s.tokens.Issue(creds)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user logged in", zap.Int64("user_id", creds.ID))

	return LoginResult{Token: token, User: scrub(record)}, nil
}

// Me returns the authenticated user's own record.
func (s *Service) Me(ctx context.Context, id int64) (map[string]any, error) {
	record, err := s.entity.FindByID(ctx, repo.Descriptor(), id)
	if err != nil {
		return nil, err
	}
	return scrub(record), nil
}

// FindAll lists users without their password hashes.
func (s *Service) FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	records, err := s.entity.FindAll(ctx, desc, orderBy, ascending, filters)
	return scrubAll(records), err
}

func (s *Service) FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	records, err := s.entity.FindAllPaginated(ctx, desc, start, limit, orderBy, ascending, filters)
	return scrubAll(records), err
}

func (s *Service) FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error) {
	record, err := s.entity.FindByID(ctx, desc, id)
	return scrub(record), err
}

// Save hashes the incoming plaintext password before handing the payload to
// the generic save.
func (s *Service) Save(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
	payload, err := hashPasswordField(payload)
	if err != nil {
		return nil, err
	}

	record, err := s.entity.Save(ctx, desc, payload, sess, actorID)
	return scrub(record), err
}

func (s *Service) UpdateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
	payload, err := hashPasswordField(payload)
	if err != nil {
		return nil, err
	}

	record, err := s.entity.UpdateByID(ctx, desc, id, payload, sess, actorID)
	return scrub(record), err
}

func (s *Service) DeleteByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	record, err := s.entity.DeleteByID(ctx, desc, id, actorID)
	return scrub(record), err
}

func (s *Service) DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	record, err := s.entity.DeactivateByID(ctx, desc, id, actorID)
	return scrub(record), err
}

func (s *Service) ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	record, err := s.entity.ActivateByID(ctx, desc, id, actorID)
	return scrub(record), err
}

func (s *Service) Audit(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]generic.AuditEntry, error) {
	entries, err := s.entity.Audit(ctx, desc, actorID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Data = scrub(entries[i].Data)
		delete(entries[i].Changes, "password")
	}
	return entries, nil
}

func hashPasswordField(payload map[string]any) (map[string]any, error) {
	plain, ok := payload["password"].(string)
	if !ok || plain == "" {
		return payload, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	copied["password"] = string(hashed)
	return copied, nil
}

func scrub(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	delete(record, "password")
	return record
}

func scrubAll(records []map[string]any) []map[string]any {
	for i := range records {
		records[i] = scrub(records[i])
	}
	return records
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
